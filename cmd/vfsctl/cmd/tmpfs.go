// Copyright 2024 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/misttech/mistos-vfs/pkg/sentry/fsimpl/tmpfs"
	"github.com/misttech/mistos-vfs/pkg/sentry/kernel"
	"github.com/misttech/mistos-vfs/pkg/sentry/vfs"
	"github.com/prometheus/client_golang/prometheus"
)

// Tmpfs implements subcommands.Command for the "tmpfs" command.
type Tmpfs struct {
	data    string
	noExec  bool
	metrics bool
}

// Name implements subcommands.Command.Name.
func (*Tmpfs) Name() string {
	return "tmpfs"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Tmpfs) Synopsis() string {
	return "create files in a new tmpfs and list them"
}

// Usage implements subcommands.Command.Usage.
func (*Tmpfs) Usage() string {
	return `tmpfs [flags] <path>... - create each path in a new tmpfs mount, then print the tree.

Paths that end in "/" are created as directories. Missing parent directories
are created.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (t *Tmpfs) SetFlags(f *flag.FlagSet) {
	f.StringVar(&t.data, "o", "", "comma-separated mount options, e.g. mode=0755,uid=1000")
	f.BoolVar(&t.noExec, "noexec", false, "mount with MS_NOEXEC")
	f.BoolVar(&t.metrics, "metrics", false, "print vfs metrics after listing")
}

// Execute implements subcommands.Command.Execute.
func (t *Tmpfs) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	k := args[0].(*kernel.Kernel)
	ctx := newContext(k)

	data, err := vfs.ParseMountData(t.data)
	if err != nil {
		return Errorf("parsing mount options %q: %v", t.data, err)
	}
	fs, err := tmpfs.NewFileSystem(ctx, k, vfs.FileSystemOptions{Source: "none", Data: data})
	if err != nil {
		return Errorf("creating tmpfs: %v", err)
	}
	defer fs.Release()

	var flags vfs.MountFlags
	if t.noExec {
		flags |= vfs.MountNoExec
	}
	mnt, err := k.MountFileSystem(fs, flags)
	if err != nil {
		return Errorf("mounting tmpfs: %v", err)
	}
	defer mnt.DecRef()
	ctx.Debugf("Mounted %s as mount %d (%v)", fs.Name(), mnt.ID(), mnt.Flags())

	root := mnt.Root()
	defer root.DecRef()
	for _, path := range f.Args() {
		if err := makePath(ctx, root, path); err != nil {
			return Errorf("%v", err)
		}
	}
	if err := printTree(ctx, os.Stdout, root, tmpfs.ChildNames); err != nil {
		return Errorf("listing tmpfs: %v", err)
	}
	if t.metrics {
		if err := vfs.WriteMetrics(os.Stdout, prometheus.DefaultGatherer); err != nil {
			return Errorf("writing metrics: %v", err)
		}
	}
	return subcommands.ExitSuccess
}

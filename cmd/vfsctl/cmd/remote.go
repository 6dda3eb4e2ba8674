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
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/sentry/fsimpl/remotefs"
	"github.com/misttech/mistos-vfs/pkg/sentry/fsimpl/tmpfs"
	"github.com/misttech/mistos-vfs/pkg/sentry/kernel"
	"github.com/misttech/mistos-vfs/pkg/sentry/vfs"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// remoteMountpoint is the directory of the host tmpfs at which the remote
// filesystem is grafted.
const remoteMountpoint = "mnt/"

// Remote implements subcommands.Command for the "remote" command.
type Remote struct {
	qps     float64
	burst   int
	replace stringSlice
	metrics bool
}

// Name implements subcommands.Command.Name.
func (*Remote) Name() string {
	return "remote"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Remote) Synopsis() string {
	return "look up paths in a remote filesystem through the entry cache"
}

// Usage implements subcommands.Command.Usage.
func (*Remote) Usage() string {
	return `remote [flags] <path>... - populate a remote store with each path, mount it at /mnt and look the paths up.

The lookups are repeated after the paths named by -replace have been replaced
in the store out of band, so that cached entries must be revalidated.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Remote) SetFlags(f *flag.FlagSet) {
	f.Float64Var(&r.qps, "qps", 0, "maximum store requests per second, 0 for no limit")
	f.IntVar(&r.burst, "burst", 1, "maximum burst of store requests")
	f.Var(&r.replace, "replace", "path to replace in the store between lookup passes; may be repeated")
	f.BoolVar(&r.metrics, "metrics", false, "print vfs metrics after the lookups")
}

// Execute implements subcommands.Command.Execute.
func (r *Remote) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	k := args[0].(*kernel.Kernel)
	ctx := newContext(k)

	opts := remotefs.StoreOptions{Burst: r.burst}
	if r.qps > 0 {
		opts.Limit = rate.Limit(r.qps)
	}
	store := remotefs.NewStore(opts)
	for _, path := range f.Args() {
		if err := populate(store, path); err != nil {
			return Errorf("populating store: %v", err)
		}
	}

	hostFS, err := tmpfs.NewFileSystem(ctx, k, vfs.FileSystemOptions{Source: "none"})
	if err != nil {
		return Errorf("creating tmpfs: %v", err)
	}
	defer hostFS.Release()
	hostMnt, err := k.MountFileSystem(hostFS, 0)
	if err != nil {
		return Errorf("mounting tmpfs: %v", err)
	}
	defer hostMnt.DecRef()
	hostRoot := hostMnt.Root()
	defer hostRoot.DecRef()
	if err := makePath(ctx, hostRoot, remoteMountpoint); err != nil {
		return Errorf("%v", err)
	}
	point, err := walkPath(ctx, hostRoot, remoteMountpoint)
	if err != nil {
		return Errorf("%v", err)
	}
	defer point.DecRef()

	remoteFS := remotefs.NewFileSystem(k, store, vfs.FileSystemOptions{Source: "remote:/"})
	defer remoteFS.Release()
	remoteMnt, err := k.MountFileSystem(remoteFS, vfs.MountNoDev)
	if err != nil {
		return Errorf("mounting remotefs: %v", err)
	}
	defer remoteMnt.DecRef()
	if err := remoteMnt.Graft(point); err != nil {
		return Errorf("grafting remotefs at %q: %v", point.Pathname(ctx), err)
	}
	remoteRoot := remoteMnt.Root()
	defer remoteRoot.DecRef()

	if err := lookupAll(ctx, os.Stdout, remoteRoot, f.Args()); err != nil {
		return Errorf("%v", err)
	}
	if len(r.replace) > 0 {
		for _, path := range r.replace {
			if err := store.Replace(path); err != nil {
				return Errorf("replacing %q: %v", path, err)
			}
		}
		if err := lookupAll(ctx, os.Stdout, remoteRoot, f.Args()); err != nil {
			return Errorf("%v", err)
		}
	}
	fmt.Printf("cached entries: %d, open handles: %d\n", remoteFS.CachedEntries(), store.Handles())
	if r.metrics {
		if err := vfs.WriteMetrics(os.Stdout, prometheus.DefaultGatherer); err != nil {
			return Errorf("writing metrics: %v", err)
		}
	}
	return subcommands.ExitSuccess
}

// populate creates path in store, along with any missing parent directories.
func populate(store *remotefs.Store, path string) error {
	components, isDir, err := splitPath(path)
	if err != nil {
		return err
	}
	for i := range components {
		mode := defaultDirMode
		if i == len(components)-1 && !isDir {
			mode = defaultFileMode
		}
		p := strings.Join(components[:i+1], "/")
		if err := store.Create(p, mode); err != nil && err != linuxerr.EEXIST {
			return errors.Wrapf(err, "creating %q", p)
		}
	}
	return nil
}

// stringSlice is a flag.Value that accumulates repeated flags.
type stringSlice []string

// String implements flag.Value.String.
func (s *stringSlice) String() string {
	return strings.Join(*s, ",")
}

// Set implements flag.Value.Set.
func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

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

// Package cmd holds implementations of the vfsctl commands.
package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/subcommands"
	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/log"
	"github.com/misttech/mistos-vfs/pkg/sentry/context"
	"github.com/misttech/mistos-vfs/pkg/sentry/kernel"
	"github.com/misttech/mistos-vfs/pkg/sentry/kernel/auth"
	"github.com/misttech/mistos-vfs/pkg/sentry/vfs"
	"github.com/pkg/errors"
)

const (
	defaultDirMode  linux.FileMode = linux.ModeDirectory | 0755
	defaultFileMode linux.FileMode = linux.ModeRegular | 0644
)

// Errorf logs the error to stderr and returns subcommands.ExitFailure.
func Errorf(format string, args ...any) subcommands.ExitStatus {
	log.Warningf(format, args...)
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return subcommands.ExitFailure
}

// newContext returns a context with root credentials executing in k.
func newContext(k *kernel.Kernel) context.Context {
	return auth.ContextWithCredentials(kernel.WithKernel(context.Background(), k), auth.NewRootCredentials())
}

// splitPath returns the components of path and whether it names a
// directory, i.e. ends in a slash.
func splitPath(path string) ([]string, bool, error) {
	isDir := strings.HasSuffix(path, "/")
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, false, errors.Errorf("invalid path %q", path)
	}
	return strings.Split(trimmed, "/"), isDir, nil
}

// makePath creates path below root, along with any missing parent
// directories. Paths that end in a slash are created as directories.
func makePath(ctx context.Context, root vfs.NamespaceLocation, path string) error {
	components, isDir, err := splitPath(path)
	if err != nil {
		return err
	}
	cur := root
	cur.IncRef()
	defer func() { cur.DecRef() }()
	for i, name := range components {
		mode := defaultDirMode
		if i == len(components)-1 && !isDir {
			mode = defaultFileMode
		}
		next, err := cur.OpenCreateNode(ctx, name, mode, false)
		if err != nil {
			return errors.Wrapf(err, "creating %q in %q", name, path)
		}
		cur.DecRef()
		cur = next
		if i < len(components)-1 && !cur.Entry().Node().IsDir() {
			return errors.Wrapf(linuxerr.ENOTDIR, "walking %q", path)
		}
	}
	return nil
}

// walkPath returns the location of path below root. The caller must DecRef
// the returned location.
func walkPath(ctx context.Context, root vfs.NamespaceLocation, path string) (vfs.NamespaceLocation, error) {
	components, _, err := splitPath(path)
	if err != nil {
		return vfs.NamespaceLocation{}, err
	}
	cur := root
	cur.IncRef()
	for _, name := range components {
		next, err := cur.LookupChild(ctx, name)
		cur.DecRef()
		if err != nil {
			return vfs.NamespaceLocation{}, errors.Wrapf(err, "looking up %q in %q", name, path)
		}
		cur = next
	}
	return cur, nil
}

// childNamesFunc lists the children of a directory entry.
type childNamesFunc func(d *vfs.DirectoryEntry) ([]string, error)

// printTree writes the pathname and mode of loc and everything below it to
// w, in depth-first order. Children are visited in lexical order.
func printTree(ctx context.Context, w io.Writer, loc vfs.NamespaceLocation, list childNamesFunc) error {
	d := loc.Entry()
	fmt.Fprintf(w, "%s\t%v\n", loc.Pathname(ctx), d.Node().Mode())
	if !d.Node().IsDir() {
		return nil
	}
	names, err := list(d)
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		child, err := loc.LookupChild(ctx, name)
		if err != nil {
			return errors.Wrapf(err, "looking up %q", name)
		}
		err = printTree(ctx, w, child, list)
		child.DecRef()
		if err != nil {
			return err
		}
	}
	return nil
}

// lookupAll looks up each of paths below root and writes its pathname and
// mode to w.
func lookupAll(ctx context.Context, w io.Writer, root vfs.NamespaceLocation, paths []string) error {
	for _, path := range paths {
		loc, err := walkPath(ctx, root, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%v\n", loc.Pathname(ctx), loc.Entry().Node().Mode())
		loc.DecRef()
	}
	return nil
}

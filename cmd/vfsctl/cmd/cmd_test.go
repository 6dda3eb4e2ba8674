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
	"bytes"
	"context"
	"flag"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/subcommands"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/sentry/fsimpl/remotefs"
	"github.com/misttech/mistos-vfs/pkg/sentry/fsimpl/tmpfs"
	"github.com/misttech/mistos-vfs/pkg/sentry/kernel"
	"github.com/misttech/mistos-vfs/pkg/sentry/kernel/config"
	"github.com/misttech/mistos-vfs/pkg/sentry/vfs"
	"github.com/pkg/errors"
)

func newTestKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	k := &kernel.Kernel{}
	if err := k.Init(kernel.InitKernelArgs{Config: config.Default()}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return k
}

// pathnames returns the first column of each line of out.
func pathnames(out string) []string {
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		names = append(names, strings.SplitN(line, "\t", 2)[0])
	}
	return names
}

func TestSplitPath(t *testing.T) {
	for _, tc := range []struct {
		path       string
		components []string
		isDir      bool
		wantErr    bool
	}{
		{path: "a", components: []string{"a"}},
		{path: "/a/b", components: []string{"a", "b"}},
		{path: "a/b/", components: []string{"a", "b"}, isDir: true},
		{path: "/", wantErr: true},
		{path: "", wantErr: true},
	} {
		t.Run(tc.path, func(t *testing.T) {
			components, isDir, err := splitPath(tc.path)
			if gotErr := err != nil; gotErr != tc.wantErr {
				t.Fatalf("splitPath(%q) got error %v, want error %t", tc.path, err, tc.wantErr)
			}
			if diff := cmp.Diff(tc.components, components); diff != "" {
				t.Errorf("splitPath(%q) components mismatch (-want +got):\n%s", tc.path, diff)
			}
			if isDir != tc.isDir {
				t.Errorf("splitPath(%q) isDir got %t, want %t", tc.path, isDir, tc.isDir)
			}
		})
	}
}

func TestMakePathAndPrintTree(t *testing.T) {
	k := newTestKernel(t)
	ctx := newContext(k)
	fs, err := tmpfs.NewFileSystem(ctx, k, vfs.FileSystemOptions{})
	if err != nil {
		t.Fatalf("NewFileSystem: %v", err)
	}
	defer fs.Release()
	mnt, err := k.MountFileSystem(fs, 0)
	if err != nil {
		t.Fatalf("MountFileSystem: %v", err)
	}
	defer mnt.DecRef()
	root := mnt.Root()
	defer root.DecRef()

	for _, path := range []string{"b/c", "a/", "b/d/e", "b/c"} {
		if err := makePath(ctx, root, path); err != nil {
			t.Fatalf("makePath(%q): %v", path, err)
		}
	}
	if err := makePath(ctx, root, "b/c/f"); !errors.Is(err, linuxerr.ENOTDIR) {
		t.Errorf("makePath through a file got error %v, want ENOTDIR", err)
	}

	loc, err := walkPath(ctx, root, "b/d")
	if err != nil {
		t.Fatalf("walkPath: %v", err)
	}
	if !loc.Entry().Node().IsDir() {
		t.Errorf("b/d is not a directory")
	}
	loc.DecRef()
	if _, err := walkPath(ctx, root, "b/x"); !errors.Is(err, linuxerr.ENOENT) {
		t.Errorf("walkPath(b/x) got error %v, want ENOENT", err)
	}

	var buf bytes.Buffer
	if err := printTree(ctx, &buf, root, tmpfs.ChildNames); err != nil {
		t.Fatalf("printTree: %v", err)
	}
	want := []string{"/", "/a", "/b", "/b/c", "/b/d", "/b/d/e"}
	if diff := cmp.Diff(want, pathnames(buf.String())); diff != "" {
		t.Errorf("printTree mismatch (-want +got):\n%s", diff)
	}
}

func TestLookupAllThroughGraft(t *testing.T) {
	k := newTestKernel(t)
	ctx := newContext(k)

	store := remotefs.NewStore(remotefs.StoreOptions{})
	for _, path := range []string{"x/y", "z"} {
		if err := populate(store, path); err != nil {
			t.Fatalf("populate(%q): %v", path, err)
		}
	}

	hostFS, err := tmpfs.NewFileSystem(ctx, k, vfs.FileSystemOptions{})
	if err != nil {
		t.Fatalf("NewFileSystem: %v", err)
	}
	defer hostFS.Release()
	hostMnt, err := k.MountFileSystem(hostFS, 0)
	if err != nil {
		t.Fatalf("MountFileSystem: %v", err)
	}
	defer hostMnt.DecRef()
	hostRoot := hostMnt.Root()
	defer hostRoot.DecRef()
	if err := makePath(ctx, hostRoot, remoteMountpoint); err != nil {
		t.Fatalf("makePath: %v", err)
	}
	point, err := walkPath(ctx, hostRoot, remoteMountpoint)
	if err != nil {
		t.Fatalf("walkPath: %v", err)
	}
	defer point.DecRef()

	remoteFS := remotefs.NewFileSystem(k, store, vfs.FileSystemOptions{})
	defer remoteFS.Release()
	remoteMnt, err := k.MountFileSystem(remoteFS, 0)
	if err != nil {
		t.Fatalf("MountFileSystem: %v", err)
	}
	defer remoteMnt.DecRef()
	if err := remoteMnt.Graft(point); err != nil {
		t.Fatalf("Graft: %v", err)
	}
	remoteRoot := remoteMnt.Root()
	defer remoteRoot.DecRef()

	var buf bytes.Buffer
	if err := lookupAll(ctx, &buf, remoteRoot, []string{"x/y", "z"}); err != nil {
		t.Fatalf("lookupAll: %v", err)
	}
	if err := store.Replace("x/y"); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := lookupAll(ctx, &buf, remoteRoot, []string{"x/y"}); err != nil {
		t.Fatalf("lookupAll after Replace: %v", err)
	}
	want := []string{"/mnt/x/y", "/mnt/z", "/mnt/x/y"}
	if diff := cmp.Diff(want, pathnames(buf.String())); diff != "" {
		t.Errorf("lookupAll mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteUsage(t *testing.T) {
	k := newTestKernel(t)
	for _, c := range []subcommands.Command{new(Tmpfs), new(Remote)} {
		t.Run(c.Name(), func(t *testing.T) {
			f := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
			f.Usage = func() {}
			c.SetFlags(f)
			if got := c.Execute(context.Background(), f, k); got != subcommands.ExitUsageError {
				t.Errorf("Execute with no paths got %v, want %v", got, subcommands.ExitUsageError)
			}
		})
	}
}

func TestTmpfsRejectsBadOptions(t *testing.T) {
	k := newTestKernel(t)
	c := new(Tmpfs)
	f := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	c.SetFlags(f)
	if err := f.Parse([]string{"-o", "size=1G", "file"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := c.Execute(context.Background(), f, k); got != subcommands.ExitFailure {
		t.Errorf("Execute with unknown option got %v, want %v", got, subcommands.ExitFailure)
	}
}

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

package vfs

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/sentry/context"
	"github.com/misttech/mistos-vfs/pkg/sentry/context/contexttest"
	"golang.org/x/sync/errgroup"
)

// mknod creates a child of parent with the given mode and returns it with a
// reference held until t finishes.
func mknod(t *testing.T, ctx context.Context, parent *DirectoryEntry, name string, mode linux.FileMode) *DirectoryEntry {
	t.Helper()
	d, err := parent.CreateEntry(ctx, Detached(), name, MknodFunc(mode))
	if err != nil {
		t.Fatalf("CreateEntry(%q) failed: %v", name, err)
	}
	t.Cleanup(d.DecRef)
	return d
}

func TestUnlink(t *testing.T) {
	ctx := contexttest.Context(t)
	rootNode, root := newTestRoot(t, CachePermanent)
	file := mknod(t, ctx, root, "file", linux.ModeRegular|0644)
	dir := mknod(t, ctx, root, "dir", linux.ModeDirectory|0755)
	mknod(t, ctx, dir, "child", linux.ModeRegular|0644)
	updates := rootNode.CtimeUpdates.Load()

	for _, test := range []struct {
		name    string
		entry   string
		kind    UnlinkKind
		wantErr error
	}{
		{name: "rmdir file", entry: "file", kind: UnlinkDirectory, wantErr: linuxerr.ENOTDIR},
		{name: "unlink dir", entry: "dir", kind: UnlinkNonDirectory, wantErr: linuxerr.EISDIR},
		{name: "rmdir non-empty", entry: "dir", kind: UnlinkDirectory, wantErr: linuxerr.ENOTEMPTY},
		{name: "missing", entry: "missing", kind: UnlinkNonDirectory, wantErr: linuxerr.ENOENT},
		{name: "dot", entry: ".", kind: UnlinkDirectory, wantErr: linuxerr.EBUSY},
		{name: "separator", entry: "a/b", kind: UnlinkNonDirectory, wantErr: linuxerr.EINVAL},
	} {
		t.Run(test.name, func(t *testing.T) {
			if err := root.Unlink(ctx, Detached(), test.entry, test.kind); err != test.wantErr {
				t.Errorf("Unlink(%q): got error %v, want %v", test.entry, err, test.wantErr)
			}
		})
	}
	if file.IsDead() || dir.IsDead() {
		t.Fatalf("failed unlinks killed an entry")
	}

	if err := root.Unlink(ctx, Detached(), "file", UnlinkNonDirectory); err != nil {
		t.Fatalf("Unlink(file) failed: %v", err)
	}
	if !file.IsDead() {
		t.Errorf("unlinked entry is not dead")
	}
	if rootNode.Child("file") != nil {
		t.Errorf("backing node still has the unlinked child")
	}
	if diff := cmp.Diff([]string{"dir"}, root.CopyChildNames()); diff != "" {
		t.Errorf("CopyChildNames mismatch (-want +got):\n%s", diff)
	}
	if got := rootNode.CtimeUpdates.Load() - updates; got != 1 {
		t.Errorf("parent timestamps updated %d times, want 1", got)
	}
	if _, err := root.ComponentLookup(ctx, Detached(), "file"); err != linuxerr.ENOENT {
		t.Errorf("ComponentLookup after unlink: got error %v, want ENOENT", err)
	}
}

func TestRenameSameDirectory(t *testing.T) {
	ctx := contexttest.Context(t)
	rootNode, root := newTestRoot(t, CachePermanent)
	a := mknod(t, ctx, root, "a", linux.ModeRegular|0644)

	if err := Rename(ctx, Detached(), root, "a", root, "b"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if got := a.LocalName(); got != "b" {
		t.Errorf("LocalName after rename = %q, want b", got)
	}
	b, err := root.ComponentLookup(ctx, Detached(), "b")
	if err != nil {
		t.Fatalf("ComponentLookup(b) failed: %v", err)
	}
	defer b.DecRef()
	if b != a {
		t.Errorf("ComponentLookup(b) returned entry %d, want %d", b.ID(), a.ID())
	}
	if _, err := root.ComponentLookup(ctx, Detached(), "a"); err != linuxerr.ENOENT {
		t.Errorf("ComponentLookup(a) after rename: got error %v, want ENOENT", err)
	}
	if rootNode.Child("b") != a.Node() {
		t.Errorf("backing store was not updated")
	}
}

func TestRenameAcrossDirectories(t *testing.T) {
	ctx := contexttest.Context(t)
	_, root := newTestRoot(t, CachePermanent)
	src := mknod(t, ctx, root, "src", linux.ModeDirectory|0755)
	dst := mknod(t, ctx, root, "dst", linux.ModeDirectory|0755)
	moved := mknod(t, ctx, src, "f", linux.ModeRegular|0644)
	replaced := mknod(t, ctx, dst, "g", linux.ModeRegular|0644)
	srcRefs := src.ReadRefs()

	if err := Rename(ctx, Detached(), src, "f", dst, "g"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if !replaced.IsDead() {
		t.Errorf("replaced entry is not dead")
	}
	if moved.IsDead() {
		t.Errorf("renamed entry is dead")
	}
	parent := moved.ParentOrSelf()
	defer parent.DecRef()
	if parent != dst {
		t.Errorf("renamed entry's parent is entry %d, want %d", parent.ID(), dst.ID())
	}
	if got := src.ReadRefs(); got != srcRefs-1 {
		t.Errorf("old parent has %d references, want %d", got, srcRefs-1)
	}
	if names := src.CopyChildNames(); len(names) != 0 {
		t.Errorf("old parent still lists %v", names)
	}
	if diff := cmp.Diff([]string{"g"}, dst.CopyChildNames()); diff != "" {
		t.Errorf("new parent children mismatch (-want +got):\n%s", diff)
	}
	if got, want := DebugPathname(moved), "/dst/g"; got != want {
		t.Errorf("DebugPathname = %q, want %q", got, want)
	}
	if got, want := DebugPathname(replaced), "/dst/g (deleted)"; got != want {
		t.Errorf("DebugPathname(replaced) = %q, want %q", got, want)
	}
}

func TestRenameErrors(t *testing.T) {
	ctx := contexttest.Context(t)
	_, root := newTestRoot(t, CachePermanent)
	dir := mknod(t, ctx, root, "dir", linux.ModeDirectory|0755)
	sub := mknod(t, ctx, dir, "sub", linux.ModeDirectory|0755)
	mknod(t, ctx, root, "file", linux.ModeRegular|0644)
	mknod(t, ctx, root, "full", linux.ModeDirectory|0755)
	mknod(t, ctx, sub, "x", linux.ModeRegular|0644)

	_, otherRoot := newTestRoot(t, CachePermanent)
	ro, _ := newTestMount(t, &TestKernel{}, MountReadOnly)

	for _, test := range []struct {
		name      string
		mnt       MountContext
		oldParent *DirectoryEntry
		oldName   string
		newParent *DirectoryEntry
		newName   string
		wantErr   error
	}{
		{"read-only", Attached(ro), root, "file", root, "file2", linuxerr.EROFS},
		{"reserved", Detached(), root, "..", root, "x", linuxerr.EBUSY},
		{"cross filesystem", Detached(), root, "file", otherRoot, "file", linuxerr.EXDEV},
		{"missing", Detached(), root, "missing", root, "x", linuxerr.ENOENT},
		{"dir over file", Detached(), root, "dir", root, "file", linuxerr.ENOTDIR},
		{"file over dir", Detached(), root, "file", root, "dir", linuxerr.EISDIR},
		{"into own subdirectory", Detached(), root, "dir", sub, "dir", linuxerr.EINVAL},
		{"over ancestor", Detached(), sub, "x", root, "dir", linuxerr.EISDIR},
		{"dir over ancestor", Detached(), dir, "sub", root, "dir", linuxerr.ENOTEMPTY},
		{"over non-empty dir", Detached(), root, "full", dir, "sub", linuxerr.ENOTEMPTY},
	} {
		t.Run(test.name, func(t *testing.T) {
			if err := Rename(ctx, test.mnt, test.oldParent, test.oldName, test.newParent, test.newName); err != test.wantErr {
				t.Errorf("Rename: got error %v, want %v", err, test.wantErr)
			}
		})
	}
}

func TestRenameSameNode(t *testing.T) {
	ctx := contexttest.Context(t)
	_, root := newTestRoot(t, CachePermanent)
	f := mknod(t, ctx, root, "f", linux.ModeRegular|0644)
	if err := Rename(ctx, Detached(), root, "f", root, "f"); err != nil {
		t.Fatalf("Rename onto itself failed: %v", err)
	}
	if f.IsDead() {
		t.Errorf("entry renamed onto itself is dead")
	}
}

func TestRenameMountpointBusy(t *testing.T) {
	ctx := contexttest.Context(t)
	k := &TestKernel{}
	parent, _ := newTestMount(t, k, 0)
	child, _ := newTestMount(t, k, 0)
	root := parent.Root()
	defer root.DecRef()
	point, err := root.CreateNode(ctx, "mnt", linux.ModeDirectory|0755)
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	defer point.DecRef()
	if err := child.Graft(point); err != nil {
		t.Fatalf("Graft failed: %v", err)
	}
	defer child.Ungraft()

	if err := Rename(ctx, root.MountContext(), root.Entry(), "mnt", root.Entry(), "moved"); err != linuxerr.EBUSY {
		t.Errorf("Rename of a mount point: got error %v, want EBUSY", err)
	}
}

// TestConcurrentCrissCrossRenames moves files between two directories in
// opposite directions while other goroutines look them up.
func TestConcurrentCrissCrossRenames(t *testing.T) {
	const (
		numFiles  = 8
		numRounds = 50
	)
	ctx := contexttest.Context(t)
	_, root := newTestRoot(t, CachePermanent)
	a := mknod(t, ctx, root, "a", linux.ModeDirectory|0755)
	b := mknod(t, ctx, root, "b", linux.ModeDirectory|0755)
	for i := 0; i < numFiles; i++ {
		mknod(t, ctx, a, fmt.Sprintf("a%d", i), linux.ModeRegular|0644)
		mknod(t, ctx, b, fmt.Sprintf("b%d", i), linux.ModeRegular|0644)
	}

	var g errgroup.Group
	for i := 0; i < numFiles; i++ {
		aName, bName := fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i)
		g.Go(func() error {
			for r := 0; r < numRounds; r++ {
				if err := Rename(ctx, Detached(), a, aName, b, aName); err != nil {
					return fmt.Errorf("rename a/%s to b: %w", aName, err)
				}
				if err := Rename(ctx, Detached(), b, aName, a, aName); err != nil {
					return fmt.Errorf("rename b/%s to a: %w", aName, err)
				}
			}
			return nil
		})
		g.Go(func() error {
			for r := 0; r < numRounds; r++ {
				if err := Rename(ctx, Detached(), b, bName, a, bName); err != nil {
					return fmt.Errorf("rename b/%s to a: %w", bName, err)
				}
				if err := Rename(ctx, Detached(), a, bName, b, bName); err != nil {
					return fmt.Errorf("rename a/%s to b: %w", bName, err)
				}
			}
			return nil
		})
		g.Go(func() error {
			for r := 0; r < numRounds; r++ {
				for _, dir := range []*DirectoryEntry{a, b} {
					d, err := dir.ComponentLookup(ctx, Detached(), aName)
					if err == nil {
						d.DecRef()
					} else if err != linuxerr.ENOENT {
						return err
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	want := make([]string, 0, numFiles)
	for i := 0; i < numFiles; i++ {
		want = append(want, fmt.Sprintf("a%d", i))
	}
	if diff := cmp.Diff(want, a.CopyChildNames()); diff != "" {
		t.Errorf("a children mismatch (-want +got):\n%s", diff)
	}
}

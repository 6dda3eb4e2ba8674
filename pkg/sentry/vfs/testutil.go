// Copyright 2019 The gVisor Authors.
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
	"sync/atomic"

	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/sentry/context"
	"github.com/misttech/mistos-vfs/pkg/sync"
)

// TestKernel is a test-only Kernel that only allocates mount IDs.
type TestKernel struct {
	lastMountID atomic.Uint64
}

// NextMountID implements Kernel.NextMountID.
func (k *TestKernel) NextMountID() uint64 {
	return k.lastMountID.Add(1)
}

// testFileSystemImpl is the FileSystemImpl of test filesystems.
type testFileSystemImpl struct{}

// Name implements FileSystemImpl.Name.
func (testFileSystemImpl) Name() string {
	return "testfs"
}

// NewTestFileSystem returns a test-only FileSystem with the given cache mode
// and its root directory node. The nodes of a test filesystem live in
// memory, may be changed out of band with AddChild and RemoveChild, and
// revalidate with a hook set by SetRevalidate.
func NewTestFileSystem(k Kernel, mode CacheMode) (*FileSystem, *TestNode) {
	fs := NewFileSystem(k, testFileSystemImpl{}, mode, FileSystemOptions{})
	root := newTestNode(fs, linux.ModeDirectory|0755)
	fs.SetRoot(root)
	return fs, root
}

// TestNode is a Node of a test filesystem.
type TestNode struct {
	fs   *FileSystem
	mode linux.FileMode

	// ino is unique within fs.
	ino uint64

	// Timestamp updates on this directory.
	CtimeUpdates atomic.Int32

	mu sync.Mutex

	// +checklocks:mu
	children map[string]*TestNode

	// +checklocks:mu
	revalidate func() (bool, error)
}

func newTestNode(fs *FileSystem, mode linux.FileMode) *TestNode {
	n := &TestNode{
		fs:   fs,
		mode: mode,
		ino:  fs.NextNodeID(),
	}
	if mode.IsDir() {
		n.children = make(map[string]*TestNode)
	}
	return n
}

// Ino returns n's node number.
func (n *TestNode) Ino() uint64 {
	return n.ino
}

// Mode implements Node.Mode.
func (n *TestNode) Mode() linux.FileMode {
	return n.mode
}

// IsDir implements Node.IsDir.
func (n *TestNode) IsDir() bool {
	return n.mode.IsDir()
}

// FileSystem implements Node.FileSystem.
func (n *TestNode) FileSystem() *FileSystem {
	return n.fs
}

// Lookup implements Node.Lookup.
func (n *TestNode) Lookup(ctx context.Context, mnt MountContext, name string) (Node, error) {
	if !n.IsDir() {
		return nil, linuxerr.ENOTDIR
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if child, ok := n.children[name]; ok {
		return child, nil
	}
	return nil, linuxerr.ENOENT
}

// AddChild creates a child node called name of the given mode, bypassing
// the entry cache, and returns it.
func (n *TestNode) AddChild(name string, mode linux.FileMode) *TestNode {
	child := newTestNode(n.fs, mode)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.children[name] = child
	return child
}

// RemoveChild removes the child called name, bypassing the entry cache.
func (n *TestNode) RemoveChild(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.children, name)
}

// Child returns the child node called name, or nil.
func (n *TestNode) Child(name string) *TestNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.children[name]
}

// Mknod implements Creator.Mknod.
func (n *TestNode) Mknod(ctx context.Context, mnt MountContext, name string, mode linux.FileMode) (Node, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.children[name]; ok {
		return nil, linuxerr.EEXIST
	}
	child := newTestNode(n.fs, mode)
	n.children[name] = child
	return child, nil
}

// Unlink implements Unlinker.Unlink.
func (n *TestNode) Unlink(ctx context.Context, mnt MountContext, name string, child Node) error {
	c := child.(*TestNode)
	if c.IsDir() {
		c.mu.Lock()
		empty := len(c.children) == 0
		c.mu.Unlock()
		if !empty {
			return linuxerr.ENOTEMPTY
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.children[name] != c {
		return linuxerr.ENOENT
	}
	delete(n.children, name)
	return nil
}

// Rename implements Renamer.Rename.
func (n *TestNode) Rename(ctx context.Context, mnt MountContext, oldName string, newParent Node, newName string, renamed, replaced Node) error {
	np := newParent.(*TestNode)
	if replaced != nil && replaced.IsDir() {
		r := replaced.(*TestNode)
		r.mu.Lock()
		empty := len(r.children) == 0
		r.mu.Unlock()
		if !empty {
			return linuxerr.ENOTEMPTY
		}
	}
	// Renames are serialized by FileSystem.renameMu, so the two directories
	// can be locked in any order.
	n.mu.Lock()
	delete(n.children, oldName)
	n.mu.Unlock()
	np.mu.Lock()
	np.children[newName] = renamed.(*TestNode)
	np.mu.Unlock()
	return nil
}

// UpdateCtimeMtime implements TimestampUpdater.UpdateCtimeMtime.
func (n *TestNode) UpdateCtimeMtime() {
	n.CtimeUpdates.Add(1)
}

// SetRevalidate sets the function that decides the outcome of revalidating
// entries that name n. A nil function makes them always valid.
func (n *TestNode) SetRevalidate(fn func() (bool, error)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.revalidate = fn
}

// EntryOps implements EntryOpsProvider.EntryOps.
func (n *TestNode) EntryOps() EntryOps {
	return testEntryOps{}
}

type testEntryOps struct{}

// Revalidate implements EntryOps.Revalidate.
func (testEntryOps) Revalidate(ctx context.Context, d *DirectoryEntry) (bool, error) {
	n := d.Node().(*TestNode)
	n.mu.Lock()
	fn := n.revalidate
	n.mu.Unlock()
	if fn == nil {
		return true, nil
	}
	return fn()
}

// NewTestFileFunc returns a CreateNodeFunc that creates regular files in test
// directories and counts its invocations in calls.
func NewTestFileFunc(calls *atomic.Int32) CreateNodeFunc {
	return func(ctx context.Context, dir Node, mnt MountContext, name string) (Node, error) {
		calls.Add(1)
		return dir.(*TestNode).Mknod(ctx, mnt, name, linux.ModeRegular|0644)
	}
}

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

// Package remotefs provides a filesystem backed by a Store, a model of a
// remote file server whose contents may change without the filesystem's
// knowledge. Its directory entries are kept in an LRU cache and revalidated
// against the store on every cache hit.
package remotefs

import (
	"fmt"

	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/sentry/context"
	"github.com/misttech/mistos-vfs/pkg/sentry/kernel"
	"github.com/misttech/mistos-vfs/pkg/sentry/vfs"
)

// Name is the default filesystem name.
const Name = "remotefs"

// filesystem implements vfs.FileSystemImpl.
type filesystem struct {
	vfsfs *vfs.FileSystem

	// store is immutable.
	store *Store
}

// Name implements vfs.FileSystemImpl.Name.
func (*filesystem) Name() string {
	return Name
}

// NewFileSystem returns a filesystem over store. Its entry cache holds as
// many unreferenced entries as k's configuration allows.
func NewFileSystem(k *kernel.Kernel, store *Store, opts vfs.FileSystemOptions) *vfs.FileSystem {
	fs := &filesystem{store: store}
	fs.vfsfs = vfs.NewFileSystem(k, fs, k.CachedFileSystemMode(), opts)
	store.mu.Lock()
	root := store.objects[rootIno]
	a := attr{ino: root.ino, generation: root.generation, mode: root.mode}
	store.mu.Unlock()
	fs.vfsfs.SetRoot(fs.newNode(a))
	return fs.vfsfs
}

// node is a handle on a Store object.
type node struct {
	fs *filesystem

	// attr is the object's attributes when it was looked up. attr is
	// immutable.
	attr attr
}

func (fs *filesystem) newNode(a attr) *node {
	fs.store.handles.Add(1)
	return &node{fs: fs, attr: a}
}

// Mode implements vfs.Node.Mode.
func (n *node) Mode() linux.FileMode {
	return n.attr.mode
}

// IsDir implements vfs.Node.IsDir.
func (n *node) IsDir() bool {
	return n.attr.mode.IsDir()
}

// FileSystem implements vfs.Node.FileSystem.
func (n *node) FileSystem() *vfs.FileSystem {
	return n.fs.vfsfs
}

// Ino returns the store's inode number for n.
func (n *node) Ino() uint64 {
	return n.attr.ino
}

// Lookup implements vfs.Node.Lookup.
func (n *node) Lookup(ctx context.Context, mnt vfs.MountContext, name string) (vfs.Node, error) {
	if !n.IsDir() {
		return nil, linuxerr.ENOTDIR
	}
	a, err := n.fs.store.lookup(ctx, n.attr.ino, name)
	if err != nil {
		return nil, err
	}
	return n.fs.newNode(a), nil
}

// Mknod implements vfs.Creator.Mknod.
func (n *node) Mknod(ctx context.Context, mnt vfs.MountContext, name string, mode linux.FileMode) (vfs.Node, error) {
	a, err := n.fs.store.mknod(ctx, n.attr.ino, name, mode)
	if err != nil {
		return nil, err
	}
	return n.fs.newNode(a), nil
}

// Unlink implements vfs.Unlinker.Unlink.
func (n *node) Unlink(ctx context.Context, mnt vfs.MountContext, name string, child vfs.Node) error {
	return n.fs.store.unlink(ctx, n.attr.ino, name, child.(*node).attr.ino)
}

// Rename implements vfs.Renamer.Rename.
func (n *node) Rename(ctx context.Context, mnt vfs.MountContext, oldName string, newParent vfs.Node, newName string, renamed, replaced vfs.Node) error {
	var replacedIno uint64
	if replaced != nil {
		replacedIno = replaced.(*node).attr.ino
	}
	return n.fs.store.rename(ctx, n.attr.ino, oldName, newParent.(*node).attr.ino, newName, renamed.(*node).attr.ino, replacedIno)
}

// Release implements vfs.Releaser.Release.
func (n *node) Release() {
	n.fs.store.handles.Add(-1)
}

// EntryOps implements vfs.EntryOpsProvider.EntryOps.
func (n *node) EntryOps() vfs.EntryOps {
	return entryOps{}
}

func (n *node) String() string {
	return fmt.Sprintf("remotefs node %d.%d (%v)", n.attr.ino, n.attr.generation, n.attr.mode)
}

// entryOps implements vfs.EntryOps.
type entryOps struct{}

// Revalidate implements vfs.EntryOps.Revalidate. An entry is valid while its
// name in the store still refers to the object it was looked up as.
func (entryOps) Revalidate(ctx context.Context, d *vfs.DirectoryEntry) (bool, error) {
	n := d.Node().(*node)
	parent := d.ParentOrSelf()
	defer parent.DecRef()
	if parent == d {
		// Roots are never replaced.
		return true, nil
	}
	a, err := n.fs.store.lookup(ctx, parent.Node().(*node).attr.ino, d.LocalName())
	switch {
	case err == nil:
	case linuxerr.Equals(linuxerr.ENOENT, err), linuxerr.Equals(linuxerr.ESTALE, err):
		ctx.Debugf("remotefs: %s was removed", vfs.DebugPathname(d))
		return false, nil
	default:
		return false, err
	}
	if a.ino != n.attr.ino || a.generation != n.attr.generation {
		ctx.Debugf("remotefs: %s was replaced", vfs.DebugPathname(d))
		return false, nil
	}
	return true, nil
}

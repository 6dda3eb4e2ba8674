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
	"fmt"
	"sync/atomic"

	"github.com/misttech/mistos-vfs/pkg/sync"
)

// Kernel is the part of the kernel that filesystems and mounts depend on.
type Kernel interface {
	// NextMountID returns a new mount ID. IDs are unique and increase
	// monotonically.
	NextMountID() uint64
}

// FileSystemImpl is implemented by backing filesystems.
type FileSystemImpl interface {
	// Name returns the filesystem type name, as shown in /proc/mounts.
	Name() string
}

// FileSystem is one instance of a backing filesystem. It owns the residency
// policy for the DirectoryEntries that name its nodes.
type FileSystem struct {
	// kernel is immutable.
	kernel Kernel

	// impl is immutable.
	impl FileSystemImpl

	// opts is immutable.
	opts FileSystemOptions

	rootMu sync.Mutex

	// root is the filesystem's root entry, on which a reference is held.
	// +checklocks:rootMu
	root *DirectoryEntry

	lastNodeID atomic.Uint64

	// renameMu serializes operations that move or remove entries, which keeps
	// parent links stable while a rename checks ancestry.
	renameMu sync.Mutex

	// entries implements the filesystem's CacheMode.
	entries entryCache
}

// NewFileSystem returns a new FileSystem for impl whose entries are retained
// according to mode.
func NewFileSystem(k Kernel, impl FileSystemImpl, mode CacheMode, opts FileSystemOptions) *FileSystem {
	return &FileSystem{
		kernel:  k,
		impl:    impl,
		opts:    opts,
		entries: mode.newEntryCache(impl.Name()),
	}
}

// Kernel returns the kernel fs belongs to.
func (fs *FileSystem) Kernel() Kernel {
	return fs.kernel
}

// Impl returns fs's implementation.
func (fs *FileSystem) Impl() FileSystemImpl {
	return fs.impl
}

// Name returns fs's type name.
func (fs *FileSystem) Name() string {
	return fs.impl.Name()
}

// Options returns the options fs was created with.
func (fs *FileSystem) Options() FileSystemOptions {
	return fs.opts
}

// NextNodeID returns a node number that is unique within fs.
func (fs *FileSystem) NextNodeID() uint64 {
	return fs.lastNodeID.Add(1)
}

// SetRoot sets fs's root node. It may only be called once.
func (fs *FileSystem) SetRoot(node Node) {
	if !node.IsDir() {
		panic(fmt.Sprintf("%s: root node has mode %v", fs.Name(), node.Mode()))
	}
	fs.rootMu.Lock()
	defer fs.rootMu.Unlock()
	if fs.root != nil {
		panic(fmt.Sprintf("%s: root already set", fs.Name()))
	}
	fs.root = NewUnrooted(node)
}

// Root returns fs's root entry. A reference is taken on the returned entry.
//
// Preconditions: SetRoot has been called.
func (fs *FileSystem) Root() *DirectoryEntry {
	fs.rootMu.Lock()
	defer fs.rootMu.Unlock()
	if fs.root == nil {
		panic(fmt.Sprintf("%s has no root", fs.Name()))
	}
	fs.root.IncRef()
	return fs.root
}

// DidCreateEntry is called after d is inserted into its parent's children
// cache.
func (fs *FileSystem) DidCreateEntry(d *DirectoryEntry) {
	fs.entries.created(d)
}

// DidAccessEntry is called when a cached d is returned by a lookup.
func (fs *FileSystem) DidAccessEntry(d *DirectoryEntry) {
	fs.entries.accessed(d)
}

// PurgeOldEntries drops references that the residency policy no longer
// wants to hold.
//
// Preconditions: No DirectoryEntry locks are held.
func (fs *FileSystem) PurgeOldEntries() {
	fs.entries.purge()
}

// WillDestroyEntry is called when d has been removed from the backing store,
// so that the residency policy releases it.
//
// Preconditions: No DirectoryEntry locks are held.
func (fs *FileSystem) WillDestroyEntry(d *DirectoryEntry) {
	fs.entries.forget(d)
}

// CachedEntries returns the number of entries retained by fs's residency
// policy.
func (fs *FileSystem) CachedEntries() int {
	return fs.entries.len()
}

// Release drops every reference held by fs, including the one on its root.
// Entries that are still referenced elsewhere stay alive.
func (fs *FileSystem) Release() {
	fs.entries.release()
	fs.rootMu.Lock()
	root := fs.root
	fs.root = nil
	fs.rootMu.Unlock()
	if root != nil {
		root.DecRef()
	}
}

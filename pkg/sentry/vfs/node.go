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
	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/sentry/context"
)

// Node is the authoritative filesystem object that a DirectoryEntry names,
// analogous to an inode. Nodes are owned by backing filesystem
// implementations; this package only caches bindings to them.
type Node interface {
	// Mode returns the node's file type and permission bits. The file type
	// bits must be populated.
	Mode() linux.FileMode

	// IsDir returns true if the node is a directory.
	IsDir() bool

	// FileSystem returns the filesystem the node belongs to.
	FileSystem() *FileSystem

	// Lookup returns the child of this directory called name, or
	// linuxerr.ENOENT if there is none.
	//
	// Lookup is called with the parent entry's children cache locked and
	// must not call back into the parent DirectoryEntry.
	Lookup(ctx context.Context, mnt MountContext, name string) (Node, error)
}

// CreateNodeFunc creates a new backing node called name in the directory
// dir. It is called with the parent's children cache locked, under the same
// restrictions as Node.Lookup.
type CreateNodeFunc func(ctx context.Context, dir Node, mnt MountContext, name string) (Node, error)

// EntryOpsProvider is implemented by nodes that need non-default EntryOps for
// the DirectoryEntries that name them.
type EntryOpsProvider interface {
	EntryOps() EntryOps
}

// TimestampUpdater is implemented by directory nodes that track change and
// modification times. UpdateCtimeMtime is called when an entry is added to
// or removed from the directory.
type TimestampUpdater interface {
	UpdateCtimeMtime()
}

// Creator is implemented by directory nodes that support creating new
// children of an arbitrary type.
type Creator interface {
	// Mknod creates a node of the given mode called name. Ownership is
	// derived from the credentials carried by ctx.
	Mknod(ctx context.Context, mnt MountContext, name string, mode linux.FileMode) (Node, error)
}

// Unlinker is implemented by directory nodes that support removing children.
type Unlinker interface {
	// Unlink removes child, which is bound to name in this directory. It
	// returns linuxerr.ENOTEMPTY for non-empty directories.
	Unlink(ctx context.Context, mnt MountContext, name string, child Node) error
}

// Renamer is implemented by directory nodes that support moving children.
type Renamer interface {
	// Rename moves renamed from oldName in this directory to newName in
	// newParent. If replaced is not nil, it is the node currently bound to
	// newName and is replaced by the rename.
	Rename(ctx context.Context, mnt MountContext, oldName string, newParent Node, newName string, renamed, replaced Node) error
}

// Releaser is implemented by nodes that hold resources on behalf of the
// DirectoryEntry naming them. Release is called once, when that entry's last
// reference is dropped.
type Releaser interface {
	Release()
}

// UnlinkKind specifies what kind of node an unlink expects to remove.
type UnlinkKind int

const (
	// UnlinkNonDirectory removes anything but a directory, as unlink(2).
	UnlinkNonDirectory UnlinkKind = iota

	// UnlinkDirectory removes only directories, as rmdir(2).
	UnlinkDirectory
)

// MknodFunc returns a CreateNodeFunc that creates a node of the given mode
// through the parent's Creator implementation.
func MknodFunc(mode linux.FileMode) CreateNodeFunc {
	return func(ctx context.Context, dir Node, mnt MountContext, name string) (Node, error) {
		c, ok := dir.(Creator)
		if !ok {
			return nil, linuxerr.EPERM
		}
		return c.Mknod(ctx, mnt, name, mode)
	}
}

// EntryOps holds the operations that backing filesystems may customize per
// DirectoryEntry.
type EntryOps interface {
	// Revalidate reports whether a cached entry still reflects the state of
	// the backing store. It is called whenever an entry that already existed
	// is returned by DirectoryEntry.GetOrCreateChild. Returning false evicts
	// the entry; returning an error leaves it cached.
	Revalidate(ctx context.Context, d *DirectoryEntry) (bool, error)
}

// DefaultEntryOps implements EntryOps for backing stores that are only
// mutated through this package and so can never go stale.
type DefaultEntryOps struct{}

// Revalidate implements EntryOps.Revalidate.
func (DefaultEntryOps) Revalidate(context.Context, *DirectoryEntry) (bool, error) {
	return true, nil
}

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

// Package tmpfs provides a filesystem implementation that behaves like tmpfs:
// the inode tree is the sole source of truth for the state of the filesystem.
// Since every change to the tree is made through the vfs package, its
// directory entries are cached permanently and never go stale.
//
// Lock order:
//
//	vfs.DirectoryEntry.childrenMu
//	  filesystem.mu
//	    inode.mu
package tmpfs

import (
	"fmt"
	"time"

	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/sentry/context"
	"github.com/misttech/mistos-vfs/pkg/sentry/kernel/auth"
	"github.com/misttech/mistos-vfs/pkg/sentry/vfs"
	"github.com/misttech/mistos-vfs/pkg/sentry/vfs/memxattr"
	"github.com/misttech/mistos-vfs/pkg/sync"
)

// Name is the default filesystem name.
const Name = "tmpfs"

// defaultRootMode is the mode of the root directory when no mode= option is
// given.
const defaultRootMode = linux.FileMode(01777)

// filesystem implements vfs.FileSystemImpl.
type filesystem struct {
	vfsfs *vfs.FileSystem

	// readOnly is true if the filesystem was created with MountReadOnly.
	// readOnly is immutable.
	readOnly bool

	// mu serializes changes to the inode tree.
	mu sync.RWMutex
}

// Name implements vfs.FileSystemImpl.Name.
func (*filesystem) Name() string {
	return Name
}

// NewFileSystem returns a new, empty tmpfs. opts.Data may contain the mode,
// uid and gid of the root directory; any other option is rejected with
// linuxerr.EINVAL. The root is owned by the credentials of ctx unless
// overridden.
func NewFileSystem(ctx context.Context, k vfs.Kernel, opts vfs.FileSystemOptions) (*vfs.FileSystem, error) {
	if opts.Flags&^vfs.StoredOnFileSystem != 0 {
		return nil, linuxerr.EINVAL
	}
	rootMode := defaultRootMode
	owner := auth.CredentialsFromContext(ctx).FileOwner()
	for key, value := range opts.Data {
		switch key {
		case "mode":
			mode, err := vfs.ParseModeOption(value)
			if err != nil {
				ctx.Warningf("tmpfs: invalid mode: %q", value)
				return nil, err
			}
			rootMode = mode
		case "uid":
			uid, err := vfs.ParseIDOption(value)
			if err != nil {
				ctx.Warningf("tmpfs: invalid uid: %q", value)
				return nil, err
			}
			owner.UID = auth.KUID(uid)
		case "gid":
			gid, err := vfs.ParseIDOption(value)
			if err != nil {
				ctx.Warningf("tmpfs: invalid gid: %q", value)
				return nil, err
			}
			owner.GID = auth.KGID(gid)
		default:
			ctx.Warningf("tmpfs: unknown option: %q", key)
			return nil, linuxerr.EINVAL
		}
	}

	fs := &filesystem{
		readOnly: opts.Flags.Contains(vfs.MountReadOnly),
	}
	fs.vfsfs = vfs.NewFileSystem(k, fs, vfs.CachePermanent, opts)
	fs.vfsfs.SetRoot(fs.newDirectory(owner, rootMode))
	return fs.vfsfs, nil
}

// inode represents a filesystem object. Multiple DirectoryEntries may share a
// single non-directory inode (with hard links).
type inode struct {
	fs *filesystem

	// ino and mode are immutable.
	ino  uint64
	mode linux.FileMode

	// nlink is protected by filesystem.mu.
	nlink uint32

	// mu protects the fields below.
	mu    sync.Mutex
	owner auth.FileOwner

	// Linux's tmpfs has no concept of btime.
	atime int64 // nanoseconds
	ctime int64 // nanoseconds
	mtime int64 // nanoseconds

	// xattrs holds the inode's user extended attributes.
	xattrs memxattr.SimpleExtendedAttributes

	// impl is one of *directory, *symlink or *regularFile. impl is
	// immutable.
	impl any
}

// regularFile is the impl of every inode that is neither a directory nor a
// symlink. tmpfs stores no file data.
type regularFile struct{}

func (fs *filesystem) newInode(owner auth.FileOwner, mode linux.FileMode, impl any) *inode {
	i := &inode{
		fs:    fs,
		ino:   fs.vfsfs.NextNodeID(),
		mode:  mode,
		nlink: 1, // from parent directory
		owner: owner,
		impl:  impl,
	}
	// Tmpfs creation sets atime, ctime, and mtime to current time.
	now := time.Now().UnixNano()
	i.atime = now
	i.ctime = now
	i.mtime = now
	return i
}

// Mode implements vfs.Node.Mode.
func (i *inode) Mode() linux.FileMode {
	return i.mode
}

// IsDir implements vfs.Node.IsDir.
func (i *inode) IsDir() bool {
	_, ok := i.impl.(*directory)
	return ok
}

// FileSystem implements vfs.Node.FileSystem.
func (i *inode) FileSystem() *vfs.FileSystem {
	return i.fs.vfsfs
}

// Ino returns i's inode number.
func (i *inode) Ino() uint64 {
	return i.ino
}

// Stat describes an inode.
type Stat struct {
	Ino   uint64
	Mode  linux.FileMode
	Nlink uint32
	Owner auth.FileOwner
	Atime time.Time
	Ctime time.Time
	Mtime time.Time
}

// Stat returns the current metadata of i.
func (i *inode) Stat() Stat {
	i.fs.mu.RLock()
	nlink := i.nlink
	i.fs.mu.RUnlock()

	i.mu.Lock()
	defer i.mu.Unlock()
	return Stat{
		Ino:   i.ino,
		Mode:  i.mode,
		Nlink: nlink,
		Owner: i.owner,
		Atime: time.Unix(0, i.atime),
		Ctime: time.Unix(0, i.ctime),
		Mtime: time.Unix(0, i.mtime),
	}
}

// StatEntry returns the metadata of the tmpfs inode named by d.
func StatEntry(d *vfs.DirectoryEntry) (Stat, error) {
	i, ok := d.Node().(*inode)
	if !ok {
		return Stat{}, linuxerr.EXDEV
	}
	return i.Stat(), nil
}

// checkPermissions checks that the credentials of ctx have the given access
// rights on i.
func (i *inode) checkPermissions(ctx context.Context, ats vfs.AccessTypes) error {
	i.mu.Lock()
	owner := i.owner
	i.mu.Unlock()
	return vfs.GenericCheckPermissions(auth.CredentialsFromContext(ctx), ats, i.mode, owner)
}

// UpdateCtimeMtime implements vfs.TimestampUpdater.UpdateCtimeMtime.
func (i *inode) UpdateCtimeMtime() {
	now := time.Now().UnixNano()
	i.mu.Lock()
	i.ctime = now
	i.mtime = now
	i.mu.Unlock()
}

func (i *inode) touchCtime() {
	now := time.Now().UnixNano()
	i.mu.Lock()
	i.ctime = now
	i.mu.Unlock()
}

// incLinksLocked increments i's link count.
//
// Preconditions: filesystem.mu must be locked for writing. i.nlink != 0.
func (i *inode) incLinksLocked() {
	if i.nlink == 0 {
		panic("tmpfs.inode.incLinksLocked() called with no existing links")
	}
	i.nlink++
}

// decLinksLocked decrements i's link count.
//
// Preconditions: filesystem.mu must be locked for writing. i.nlink != 0.
func (i *inode) decLinksLocked() {
	if i.nlink == 0 {
		panic("tmpfs.inode.decLinksLocked() called with no existing links")
	}
	i.nlink--
}

func (i *inode) String() string {
	return fmt.Sprintf("tmpfs inode %d (%v)", i.ino, i.mode)
}

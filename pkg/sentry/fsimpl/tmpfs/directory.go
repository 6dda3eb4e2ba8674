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

package tmpfs

import (
	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/sentry/context"
	"github.com/misttech/mistos-vfs/pkg/sentry/kernel/auth"
	"github.com/misttech/mistos-vfs/pkg/sentry/vfs"
)

type directory struct {
	// childMap maps names to child inodes. childMap is protected by
	// filesystem.mu.
	childMap map[string]*inode
}

func (fs *filesystem) newDirectory(owner auth.FileOwner, mode linux.FileMode) *inode {
	dir := fs.newInode(owner, linux.ModeDirectory|mode.Permissions()|mode.ExtraBits(), &directory{
		childMap: make(map[string]*inode),
	})
	dir.nlink = 2 // from "." and parent directory or ".." for root
	return dir
}

// Lookup implements vfs.Node.Lookup.
func (i *inode) Lookup(ctx context.Context, mnt vfs.MountContext, name string) (vfs.Node, error) {
	dir, ok := i.impl.(*directory)
	if !ok {
		return nil, linuxerr.ENOTDIR
	}
	if err := i.checkPermissions(ctx, vfs.MayExec); err != nil {
		return nil, err
	}
	i.fs.mu.RLock()
	defer i.fs.mu.RUnlock()
	child, ok := dir.childMap[name]
	if !ok {
		return nil, linuxerr.ENOENT
	}
	return child, nil
}

// Mknod implements vfs.Creator.Mknod. Symlinks are created with SymlinkFunc
// instead.
func (i *inode) Mknod(ctx context.Context, mnt vfs.MountContext, name string, mode linux.FileMode) (vfs.Node, error) {
	var child *inode
	owner := auth.CredentialsFromContext(ctx).FileOwner()
	switch mode.FileType() {
	case linux.ModeDirectory:
		child = i.fs.newDirectory(owner, mode)
	case linux.ModeRegular, linux.ModeNamedPipe, linux.ModeSocket, linux.ModeCharacterDevice, linux.ModeBlockDevice:
		child = i.fs.newInode(owner, mode, &regularFile{})
	default:
		return nil, linuxerr.EINVAL
	}
	if err := i.insertChild(ctx, name, child); err != nil {
		return nil, err
	}
	return child, nil
}

// insertChild binds a new inode to name in directory i.
func (i *inode) insertChild(ctx context.Context, name string, child *inode) error {
	dir, ok := i.impl.(*directory)
	if !ok {
		return linuxerr.ENOTDIR
	}
	if err := i.checkMutable(ctx); err != nil {
		return err
	}
	i.fs.mu.Lock()
	defer i.fs.mu.Unlock()
	if _, ok := dir.childMap[name]; ok {
		return linuxerr.EEXIST
	}
	dir.insertChildLocked(i, name, child)
	return nil
}

// checkMutable returns an error if the caller may not add or remove children
// of directory i.
func (i *inode) checkMutable(ctx context.Context) error {
	if i.fs.readOnly {
		return linuxerr.EROFS
	}
	return i.checkPermissions(ctx, vfs.MayWrite|vfs.MayExec)
}

// insertChildLocked binds child to name. child's own link count already
// accounts for the new link.
//
// Preconditions: filesystem.mu must be locked for writing. name is unbound
// in dir.
func (dir *directory) insertChildLocked(parent *inode, name string, child *inode) {
	dir.childMap[name] = child
	if child.IsDir() {
		parent.incLinksLocked()
	}
}

// removeChildLocked unbinds child from name.
//
// Preconditions: filesystem.mu must be locked for writing. name is bound to
// child in dir.
func (dir *directory) removeChildLocked(parent *inode, name string, child *inode) {
	delete(dir.childMap, name)
	if child.IsDir() {
		// Drop both "." and the parent's ".." link.
		parent.decLinksLocked()
		child.nlink = 0
	} else {
		child.decLinksLocked()
	}
	child.touchCtime()
}

// Unlink implements vfs.Unlinker.Unlink.
func (i *inode) Unlink(ctx context.Context, mnt vfs.MountContext, name string, child vfs.Node) error {
	dir, ok := i.impl.(*directory)
	if !ok {
		return linuxerr.ENOTDIR
	}
	if err := i.checkMutable(ctx); err != nil {
		return err
	}
	c := child.(*inode)
	i.fs.mu.Lock()
	defer i.fs.mu.Unlock()
	if dir.childMap[name] != c {
		return linuxerr.ENOENT
	}
	if cd, ok := c.impl.(*directory); ok && len(cd.childMap) != 0 {
		return linuxerr.ENOTEMPTY
	}
	dir.removeChildLocked(i, name, c)
	return nil
}

// Rename implements vfs.Renamer.Rename.
func (i *inode) Rename(ctx context.Context, mnt vfs.MountContext, oldName string, newParent vfs.Node, newName string, renamed, replaced vfs.Node) error {
	oldDir, ok := i.impl.(*directory)
	if !ok {
		return linuxerr.ENOTDIR
	}
	np, ok := newParent.(*inode)
	if !ok {
		return linuxerr.EXDEV
	}
	newDir, ok := np.impl.(*directory)
	if !ok {
		return linuxerr.ENOTDIR
	}
	if err := i.checkMutable(ctx); err != nil {
		return err
	}
	if np != i {
		if err := np.checkMutable(ctx); err != nil {
			return err
		}
	}
	r := renamed.(*inode)

	i.fs.mu.Lock()
	defer i.fs.mu.Unlock()
	if oldDir.childMap[oldName] != r {
		return linuxerr.ENOENT
	}
	if replaced != nil {
		rp := replaced.(*inode)
		if newDir.childMap[newName] != rp {
			return linuxerr.ENOENT
		}
		if rd, ok := rp.impl.(*directory); ok && len(rd.childMap) != 0 {
			return linuxerr.ENOTEMPTY
		}
		newDir.removeChildLocked(np, newName, rp)
	} else if _, ok := newDir.childMap[newName]; ok {
		return linuxerr.EEXIST
	}

	delete(oldDir.childMap, oldName)
	if r.IsDir() {
		i.decLinksLocked()
	}
	newDir.insertChildLocked(np, newName, r)
	r.touchCtime()
	return nil
}

// LinkFunc returns a vfs.CreateNodeFunc that binds a new name to target, as
// link(2). Directories cannot be linked.
func LinkFunc(target vfs.Node) vfs.CreateNodeFunc {
	return func(ctx context.Context, dir vfs.Node, mnt vfs.MountContext, name string) (vfs.Node, error) {
		parent, ok := dir.(*inode)
		if !ok {
			return nil, linuxerr.EPERM
		}
		t, ok := target.(*inode)
		if !ok || t.fs != parent.fs {
			return nil, linuxerr.EXDEV
		}
		if t.IsDir() {
			return nil, linuxerr.EPERM
		}
		d, ok := parent.impl.(*directory)
		if !ok {
			return nil, linuxerr.ENOTDIR
		}
		if err := parent.checkMutable(ctx); err != nil {
			return nil, err
		}
		parent.fs.mu.Lock()
		defer parent.fs.mu.Unlock()
		if _, ok := d.childMap[name]; ok {
			return nil, linuxerr.EEXIST
		}
		if t.nlink == 0 {
			return nil, linuxerr.ENOENT
		}
		t.incLinksLocked()
		d.insertChildLocked(parent, name, t)
		t.touchCtime()
		return t, nil
	}
}

// ChildNames returns the names bound in the directory named by d, in no
// particular order. Unlike DirectoryEntry.CopyChildNames, it lists every
// child and not only those that are cached.
func ChildNames(d *vfs.DirectoryEntry) ([]string, error) {
	i, ok := d.Node().(*inode)
	if !ok {
		return nil, linuxerr.EXDEV
	}
	dir, ok := i.impl.(*directory)
	if !ok {
		return nil, linuxerr.ENOTDIR
	}
	i.fs.mu.RLock()
	defer i.fs.mu.RUnlock()
	names := make([]string, 0, len(dir.childMap))
	for name := range dir.childMap {
		names = append(names, name)
	}
	return names, nil
}

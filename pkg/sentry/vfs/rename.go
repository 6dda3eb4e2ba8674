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
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/fspath"
	"github.com/misttech/mistos-vfs/pkg/sentry/context"
)

// isAncestorOrSelf returns true if a is d or one of d's ancestors.
//
// Preconditions: The filesystem's renameMu is held, so parent links are
// stable.
func isAncestorOrSelf(a, d *DirectoryEntry) bool {
	for d != nil {
		if d == a {
			return true
		}
		d.stateMu.RLock()
		next := d.parent
		d.stateMu.RUnlock()
		d = next
	}
	return false
}

func checkMutableComponent(name string) error {
	if fspath.IsReservedComponent(name) {
		return linuxerr.EBUSY
	}
	return checkComponent(name)
}

// Unlink removes the child of d called name from the backing store and from
// the cache, and marks it dead. kind selects between unlink(2) and rmdir(2)
// semantics.
func (d *DirectoryEntry) Unlink(ctx context.Context, mnt MountContext, name string, kind UnlinkKind) error {
	if err := mnt.CheckReadonlyFilesystem(); err != nil {
		return err
	}
	if err := checkMutableComponent(name); err != nil {
		return err
	}
	unlinker, ok := d.node.(Unlinker)
	if !ok {
		return linuxerr.EPERM
	}

	fs := d.node.FileSystem()
	fs.renameMu.Lock()
	defer fs.renameMu.Unlock()

	child, err := d.ComponentLookup(ctx, mnt, name)
	if err != nil {
		return err
	}
	defer child.DecRef()

	switch kind {
	case UnlinkDirectory:
		if !child.node.IsDir() {
			return linuxerr.ENOTDIR
		}
	case UnlinkNonDirectory:
		if child.node.IsDir() {
			return linuxerr.EISDIR
		}
	}

	unlockChildren := lockChildren(d, d)
	unlockStates := lockStates(child)
	if child.mountCount > 0 {
		unlockStates()
		unlockChildren()
		return linuxerr.EBUSY
	}
	if err := unlinker.Unlink(ctx, mnt, name, child.node); err != nil {
		unlockStates()
		unlockChildren()
		return err
	}
	child.dead = true
	d.removeChildLocked(name, child)
	unlockStates()
	unlockChildren()

	if u, ok := d.node.(TimestampUpdater); ok {
		u.UpdateCtimeMtime()
	}
	fs.WillDestroyEntry(child)
	return nil
}

// Rename moves the child of oldParent called oldName to newName in
// newParent, replacing any entry already bound there.
//
// Rename holds the filesystem's renameMu throughout, then the children caches
// of both parents and the states of both parents and both children, all
// acquired through lockChildren and lockStates.
func Rename(ctx context.Context, mnt MountContext, oldParent *DirectoryEntry, oldName string, newParent *DirectoryEntry, newName string) error {
	if err := mnt.CheckReadonlyFilesystem(); err != nil {
		return err
	}
	if err := checkMutableComponent(oldName); err != nil {
		return err
	}
	if err := checkMutableComponent(newName); err != nil {
		return err
	}
	fs := oldParent.node.FileSystem()
	if newParent.node.FileSystem() != fs {
		return linuxerr.EXDEV
	}
	if !newParent.node.IsDir() {
		return linuxerr.ENOTDIR
	}
	renamer, ok := oldParent.node.(Renamer)
	if !ok {
		return linuxerr.EPERM
	}

	fs.renameMu.Lock()
	defer fs.renameMu.Unlock()

	renamed, err := oldParent.ComponentLookup(ctx, mnt, oldName)
	if err != nil {
		return err
	}
	defer renamed.DecRef()

	replaced, err := newParent.ComponentLookup(ctx, mnt, newName)
	switch {
	case err == nil:
		defer replaced.DecRef()
	case linuxerr.Equals(linuxerr.ENOENT, err):
		replaced = nil
	default:
		return err
	}

	var replacedNode Node
	if replaced != nil {
		if replaced.node == renamed.node {
			// Both names refer to the same node; rename(2) does nothing.
			return nil
		}
		replacedNode = replaced.node
		if renamed.node.IsDir() && !replacedNode.IsDir() {
			return linuxerr.ENOTDIR
		}
		if !renamed.node.IsDir() && replacedNode.IsDir() {
			return linuxerr.EISDIR
		}
		if isAncestorOrSelf(replaced, oldParent) {
			return linuxerr.ENOTEMPTY
		}
	}
	if renamed.node.IsDir() && isAncestorOrSelf(renamed, newParent) {
		return linuxerr.EINVAL
	}

	unlockChildren := lockChildren(oldParent, newParent)
	unlockStates := lockStates(oldParent, newParent, renamed, replaced)
	unlock := func() {
		unlockStates()
		unlockChildren()
	}
	if renamed.mountCount > 0 || (replaced != nil && replaced.mountCount > 0) {
		unlock()
		return linuxerr.EBUSY
	}
	if err := renamer.Rename(ctx, mnt, oldName, newParent.node, newName, renamed.node, replacedNode); err != nil {
		unlock()
		return err
	}
	oldParent.removeChildLocked(oldName, renamed)
	if replaced != nil {
		replaced.dead = true
		newParent.removeChildLocked(newName, replaced)
	}
	newParent.setChildLocked(newName, renamed)
	prevParent := renamed.parent
	if prevParent != newParent {
		newParent.IncRef()
		renamed.parent = newParent
	}
	renamed.localName = newName
	unlock()

	if prevParent != newParent {
		prevParent.DecRef()
	}
	for _, p := range []*DirectoryEntry{oldParent, newParent} {
		if u, ok := p.node.(TimestampUpdater); ok {
			u.UpdateCtimeMtime()
		}
		if oldParent == newParent {
			break
		}
	}
	if replaced != nil {
		fs.WillDestroyEntry(replaced)
	}
	return nil
}

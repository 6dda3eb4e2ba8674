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
	"strings"

	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/log"
	"github.com/misttech/mistos-vfs/pkg/refs"
	"github.com/misttech/mistos-vfs/pkg/sync"
)

// MountFlags is a set of mount(2) flags that persist past the mount call.
type MountFlags uint32

// Persistent mount flags. Values match their MS_* counterparts.
const (
	MountReadOnly    MountFlags = linux.MS_RDONLY
	MountNoSUID      MountFlags = linux.MS_NOSUID
	MountNoDev       MountFlags = linux.MS_NODEV
	MountNoExec      MountFlags = linux.MS_NOEXEC
	MountSynchronous MountFlags = linux.MS_SYNCHRONOUS
	MountMandLock    MountFlags = linux.MS_MANDLOCK
	MountDirSync     MountFlags = linux.MS_DIRSYNC
	MountNoATime     MountFlags = linux.MS_NOATIME
	MountNoDirATime  MountFlags = linux.MS_NODIRATIME
	MountSilent      MountFlags = linux.MS_SILENT
	MountRelATime    MountFlags = linux.MS_RELATIME
	MountStrictATime MountFlags = linux.MS_STRICTATIME
	MountLazyTime    MountFlags = linux.MS_LAZYTIME

	// StoredOnMount is the set of flags kept per Mount. A Mount may only be
	// created with these.
	StoredOnMount = MountReadOnly | MountNoSUID | MountNoDev | MountNoExec |
		MountNoATime | MountNoDirATime | MountRelATime | MountStrictATime

	// StoredOnFileSystem is the set of flags kept per FileSystem, i.e. the
	// superblock flags.
	StoredOnFileSystem = MountReadOnly | MountDirSync | MountLazyTime |
		MountMandLock | MountSilent | MountSynchronous
)

// Contains returns true if all flags in other are set in f.
func (f MountFlags) Contains(other MountFlags) bool {
	return f&other == other
}

var mountFlagNames = []struct {
	flag MountFlags
	name string
}{
	{MountNoSUID, "nosuid"},
	{MountNoDev, "nodev"},
	{MountNoExec, "noexec"},
	{MountSynchronous, "sync"},
	{MountMandLock, "mand"},
	{MountDirSync, "dirsync"},
	{MountNoATime, "noatime"},
	{MountNoDirATime, "nodiratime"},
	{MountSilent, "silent"},
	{MountRelATime, "relatime"},
	{MountStrictATime, "strictatime"},
	{MountLazyTime, "lazytime"},
}

// String returns f in the format used by /proc/mounts, e.g. "ro,nosuid".
func (f MountFlags) String() string {
	opts := []string{"rw"}
	if f.Contains(MountReadOnly) {
		opts[0] = "ro"
	}
	for _, n := range mountFlagNames {
		if f.Contains(n.flag) {
			opts = append(opts, n.name)
		}
	}
	return strings.Join(opts, ",")
}

// WhatToMount describes the source of a new Mount: either a FileSystem,
// mounted at its root, or an existing location, for bind mounts.
type WhatToMount struct {
	fs   *FileSystem
	bind NamespaceLocation
}

// WhatFileSystem returns a WhatToMount that mounts the root of fs.
func WhatFileSystem(fs *FileSystem) WhatToMount {
	return WhatToMount{fs: fs}
}

// WhatBind returns a WhatToMount that bind mounts loc. The caller retains
// its references on loc.
func WhatBind(loc NamespaceLocation) WhatToMount {
	return WhatToMount{bind: loc}
}

// A Mount is one instance of a FileSystem mounted in a namespace, with a
// root entry from that FileSystem. The same FileSystem may be mounted by
// multiple Mounts.
//
// Mounts are reference-counted. Unless otherwise specified, all Mount
// methods require that a reference is held.
type Mount struct {
	refs refs.AtomicRefCount

	// id is unique among all Mounts of a Kernel. id is immutable.
	id uint64

	// fs is immutable.
	fs *FileSystem

	// root is the entry at which the Mount is rooted. A reference is held on
	// root. root is immutable.
	root *DirectoryEntry

	mu sync.Mutex

	// +checklocks:mu
	flags MountFlags

	// mountpoint is where the Mount is grafted, or nil.
	// +checklocks:mu
	mountpoint *mountpoint
}

// mountpoint records where a Mount is grafted. The parent Mount is held
// weakly. A reference is held on point.
type mountpoint struct {
	parent *Mount
	point  *DirectoryEntry
}

// NewMount creates a Mount of what. It returns linuxerr.EINVAL if what does
// not name anything to mount.
//
// Preconditions: flags is a subset of StoredOnMount.
func NewMount(what WhatToMount, flags MountFlags) (*Mount, error) {
	switch {
	case what.fs != nil:
		return NewMountWithRoot(what.fs.Root(), flags), nil
	case what.bind.Ok():
		d := what.bind.Entry()
		if d.IsDead() {
			return nil, linuxerr.ENOENT
		}
		d.IncRef()
		return NewMountWithRoot(d, flags), nil
	default:
		return nil, linuxerr.EINVAL
	}
}

// NewMountWithRoot creates a Mount rooted at root. It consumes the caller's
// reference on root. A reference is taken on the returned Mount.
//
// Preconditions: flags is a subset of StoredOnMount. root's FileSystem
// belongs to a Kernel.
func NewMountWithRoot(root *DirectoryEntry, flags MountFlags) *Mount {
	if !StoredOnMount.Contains(flags) {
		panic(fmt.Sprintf("mount flags %#x include flags not stored on mounts (%#x)", uint32(flags), uint32(flags&^StoredOnMount)))
	}
	fs := root.node.FileSystem()
	k := fs.Kernel()
	if k == nil {
		panic(fmt.Sprintf("can't create a mount of %s without a kernel", fs.Name()))
	}
	mnt := &Mount{
		id:    k.NextMountID(),
		fs:    fs,
		root:  root,
		flags: flags,
	}
	if log.IsLogging(log.Debug) {
		log.Debugf("vfs: new mount %d of %s at %s (%v)", mnt.id, fs.Name(), DebugPathname(root), flags)
	}
	return mnt
}

// ID returns mnt's unique ID.
func (mnt *Mount) ID() uint64 {
	return mnt.id
}

// FileSystem returns the mounted FileSystem.
func (mnt *Mount) FileSystem() *FileSystem {
	return mnt.fs
}

// Flags returns mnt's flags.
func (mnt *Mount) Flags() MountFlags {
	mnt.mu.Lock()
	defer mnt.mu.Unlock()
	return mnt.flags
}

// SetFlags replaces mnt's flags, as for a remount.
//
// Preconditions: flags is a subset of StoredOnMount.
func (mnt *Mount) SetFlags(flags MountFlags) {
	if !StoredOnMount.Contains(flags) {
		panic(fmt.Sprintf("mount flags %#x include flags not stored on mounts", uint32(flags)))
	}
	mnt.mu.Lock()
	defer mnt.mu.Unlock()
	mnt.flags = flags
}

// Root returns the location of mnt's root. References are taken on the
// returned location.
func (mnt *Mount) Root() NamespaceLocation {
	loc := NamespaceLocation{mount: Attached(mnt), entry: mnt.root}
	loc.IncRef()
	return loc
}

// Mountpoint returns the location in the parent Mount at which mnt is
// grafted. It returns false if mnt is not grafted, or if the parent Mount
// has since been destroyed. References are taken on the returned location.
func (mnt *Mount) Mountpoint() (NamespaceLocation, bool) {
	mnt.mu.Lock()
	defer mnt.mu.Unlock()
	mp := mnt.mountpoint
	if mp == nil || !mp.parent.TryIncRef() {
		return NamespaceLocation{}, false
	}
	mp.point.IncRef()
	return NamespaceLocation{mount: Attached(mp.parent), entry: mp.point}, true
}

// Graft records that mnt is mounted at loc and increments the mount count of
// loc's entry. The caller retains its references on loc; mnt holds only a
// weak reference on loc's Mount.
func (mnt *Mount) Graft(loc NamespaceLocation) error {
	parent := loc.Mount()
	if parent == nil || parent == mnt {
		return linuxerr.EINVAL
	}
	mnt.mu.Lock()
	defer mnt.mu.Unlock()
	if mnt.mountpoint != nil {
		return linuxerr.EBUSY
	}
	if err := loc.entry.IncMountCount(); err != nil {
		return err
	}
	loc.entry.IncRef()
	mnt.mountpoint = &mountpoint{parent: parent, point: loc.entry}
	mountsGrafted.Inc()
	return nil
}

// Ungraft detaches mnt from its mount point, if any.
func (mnt *Mount) Ungraft() {
	mnt.mu.Lock()
	mp := mnt.mountpoint
	mnt.mountpoint = nil
	mnt.mu.Unlock()
	if mp == nil {
		return
	}
	mp.point.DecMountCount()
	mp.point.DecRef()
	mountsGrafted.Dec()
}

// IncRef increments mnt's reference count.
func (mnt *Mount) IncRef() {
	mnt.refs.IncRef()
}

// TryIncRef increments mnt's reference count and returns true, unless it has
// already reached zero. It does not require that a reference is held.
func (mnt *Mount) TryIncRef() bool {
	return mnt.refs.TryIncRef()
}

// DecRef decrements mnt's reference count. When the count reaches zero, mnt
// is ungrafted and its reference on its root is dropped.
func (mnt *Mount) DecRef() {
	mnt.refs.DecRefWithDestructor(func() {
		mnt.Ungraft()
		mnt.root.DecRef()
	})
}

// IncMountCount records that a Mount has been grafted at d. It returns
// linuxerr.ENOENT if d is dead.
func (d *DirectoryEntry) IncMountCount() error {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.dead {
		return linuxerr.ENOENT
	}
	d.mountCount++
	return nil
}

// DecMountCount reverses a successful IncMountCount.
func (d *DirectoryEntry) DecMountCount() {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.mountCount == 0 {
		panic(fmt.Sprintf("DecMountCount on entry %d with no mounts", d.id))
	}
	d.mountCount--
}

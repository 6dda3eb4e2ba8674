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

// MountContext is the Mount, if any, through which an operation reaches a
// DirectoryEntry. The zero value is detached.
//
// A MountContext does not hold a reference by itself; the reference on an
// attached Mount is owned by whatever owns the MountContext, usually a
// NamespaceLocation.
type MountContext struct {
	mount *Mount
}

// Attached returns a MountContext for mnt.
func Attached(mnt *Mount) MountContext {
	return MountContext{mount: mnt}
}

// Detached returns a MountContext for entries that are not reachable through
// any Mount, such as anonymous nodes and entries that have just been created
// and not yet placed.
func Detached() MountContext {
	return MountContext{}
}

// IsAttached returns true if mc refers to a Mount.
func (mc MountContext) IsAttached() bool {
	return mc.mount != nil
}

// Mount returns the Mount mc refers to, or nil if mc is detached.
func (mc MountContext) Mount() *Mount {
	return mc.mount
}

// Flags returns the mount flags in effect. Detached contexts behave as if
// mounted with MountNoATime.
func (mc MountContext) Flags() MountFlags {
	if mc.mount == nil {
		return MountNoATime
	}
	return mc.mount.Flags()
}

// CheckReadonlyFilesystem returns linuxerr.EROFS if mc's flags include
// MountReadOnly.
func (mc MountContext) CheckReadonlyFilesystem() error {
	if mc.Flags().Contains(MountReadOnly) {
		return linuxerr.EROFS
	}
	return nil
}

// A NamespaceLocation is a DirectoryEntry as reached through a MountContext.
// It is the unit path resolution operates on. The same entry may be reached
// through different Mounts, for example through bind mounts, and the
// resulting locations are distinct.
//
// A NamespaceLocation is a value type. Unless otherwise specified, a
// NamespaceLocation returned by a function carries a reference on its entry
// and, if attached, on its Mount; DecRef releases both.
type NamespaceLocation struct {
	mount MountContext
	entry *DirectoryEntry
}

// NewNamespaceLocation returns a location for d reached through mc. It takes
// no references: the caller's references on mc's Mount and on d are
// transferred to the returned location.
func NewNamespaceLocation(mc MountContext, d *DirectoryEntry) NamespaceLocation {
	return NamespaceLocation{mount: mc, entry: d}
}

// NewUnrootedLocation returns a detached location for a new unrooted entry
// naming node.
func NewUnrootedLocation(node Node) NamespaceLocation {
	return NamespaceLocation{entry: NewUnrooted(node)}
}

// Ok returns true if l refers to an entry.
func (l NamespaceLocation) Ok() bool {
	return l.entry != nil
}

// MountContext returns the MountContext of l.
func (l NamespaceLocation) MountContext() MountContext {
	return l.mount
}

// Mount returns the Mount of l, or nil if l is detached. It does not take a
// reference.
func (l NamespaceLocation) Mount() *Mount {
	return l.mount.mount
}

// Entry returns the entry of l. It does not take a reference.
func (l NamespaceLocation) Entry() *DirectoryEntry {
	return l.entry
}

// IncRef increments the reference counts on l's Mount and entry.
func (l NamespaceLocation) IncRef() {
	if l.mount.mount != nil {
		l.mount.mount.IncRef()
	}
	if l.entry != nil {
		l.entry.IncRef()
	}
}

// DecRef decrements the reference counts on l's Mount and entry.
func (l NamespaceLocation) DecRef() {
	if l.entry != nil {
		l.entry.DecRef()
	}
	if l.mount.mount != nil {
		l.mount.mount.DecRef()
	}
}

// Equal returns true if l and other are the same entry reached through the
// same Mount.
func (l NamespaceLocation) Equal(other NamespaceLocation) bool {
	return l.mount.mount == other.mount.mount && l.entry == other.entry
}

// withEntry returns a location for d through l's Mount, taking a reference
// on the Mount and consuming the caller's reference on d.
func (l NamespaceLocation) withEntry(d *DirectoryEntry) NamespaceLocation {
	if l.mount.mount != nil {
		l.mount.mount.IncRef()
	}
	return NamespaceLocation{mount: l.mount, entry: d}
}

// LookupChild returns the location of the child of l called name. It does
// not cross mount points.
func (l NamespaceLocation) LookupChild(ctx context.Context, name string) (NamespaceLocation, error) {
	child, err := l.entry.ComponentLookup(ctx, l.mount, name)
	if err != nil {
		return NamespaceLocation{}, err
	}
	return l.withEntry(child), nil
}

// CreateNode creates a node of the given mode called name in l. It returns
// linuxerr.EROFS on read-only mounts and linuxerr.EEXIST if name is already
// bound.
func (l NamespaceLocation) CreateNode(ctx context.Context, name string, mode linux.FileMode) (NamespaceLocation, error) {
	if err := l.mount.CheckReadonlyFilesystem(); err != nil {
		return NamespaceLocation{}, err
	}
	child, err := l.entry.CreateEntry(ctx, l.mount, name, MknodFunc(mode))
	if err != nil {
		return NamespaceLocation{}, err
	}
	return l.withEntry(child), nil
}

// OpenCreateNode is like CreateNode, as for open(2) with O_CREAT. Unless
// exclusive is true, as for O_EXCL, an existing child called name is
// returned instead of failing with linuxerr.EEXIST.
func (l NamespaceLocation) OpenCreateNode(ctx context.Context, name string, mode linux.FileMode, exclusive bool) (NamespaceLocation, error) {
	if exclusive {
		return l.CreateNode(ctx, name, mode)
	}
	if err := l.mount.CheckReadonlyFilesystem(); err != nil {
		return NamespaceLocation{}, err
	}
	child, err := l.entry.GetOrCreateEntry(ctx, l.mount, name, MknodFunc(mode))
	if err != nil {
		return NamespaceLocation{}, err
	}
	return l.withEntry(child), nil
}

// Mountpoint returns the location at which l's Mount is grafted, as
// Mount.Mountpoint does. It returns false for detached locations.
func (l NamespaceLocation) Mountpoint() (NamespaceLocation, bool) {
	if l.mount.mount == nil {
		return NamespaceLocation{}, false
	}
	return l.mount.mount.Mountpoint()
}

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
	"time"

	"github.com/google/btree"
	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/fspath"
	"github.com/misttech/mistos-vfs/pkg/log"
	"github.com/misttech/mistos-vfs/pkg/refs"
	"github.com/misttech/mistos-vfs/pkg/sentry/context"
	"github.com/misttech/mistos-vfs/pkg/sync"
)

// lastEntryID is the most recently assigned DirectoryEntry ID.
var lastEntryID atomic.Uint64

// revalidationLog rate limits warnings about failed revalidations, which a
// misbehaving remote store can otherwise produce on every lookup.
var revalidationLog = log.BasicRateLimitedLogger(time.Second)

// DirectoryEntry is a cached binding of a name to a backing Node.
//
// DirectoryEntries are reference-counted. A new entry is returned holding
// one reference, owned by the caller; unless otherwise specified, all
// DirectoryEntry methods require that a reference is held. Each entry holds
// a reference on its parent. A parent's children cache does not hold
// references on its children: when the last reference on an entry is
// dropped, the entry removes itself from its parent's cache, and a cached
// pointer to an entry whose count has reached zero is never revived.
//
// A DirectoryEntry's state (parent, name, deadness and mount count) and its
// children cache are protected by independent locks; see the package
// documentation for the order in which they are acquired.
type DirectoryEntry struct {
	refs refs.AtomicRefCount

	// id is unique among all DirectoryEntries and increases with creation
	// order. It is used to order lock acquisition. id is immutable.
	id uint64

	// node is the backing node. node is immutable.
	node Node

	// ops is immutable.
	ops EntryOps

	stateMu sync.RWMutex

	// parent is the entry's parent, on which a reference is held. parent is
	// nil for the root of a filesystem and for unrooted entries.
	// +checklocks:stateMu
	parent *DirectoryEntry

	// localName is the entry's name in parent.
	// +checklocks:stateMu
	localName string

	// dead is true once the entry has been unlinked, replaced by a rename or
	// invalidated by revalidation. dead never reverts to false.
	// +checklocks:stateMu
	dead bool

	// mountCount is the number of Mounts grafted at this entry.
	// +checklocks:stateMu
	mountCount uint32

	childrenMu sync.RWMutex

	// children maps names to child entries. Entries in children may have a
	// zero reference count; they are replaced or removed by their parent's
	// next writer.
	// +checklocks:childrenMu
	children *btree.BTreeG[childSlot]
}

// childSlot is an element of a DirectoryEntry's children cache.
type childSlot struct {
	name  string
	entry *DirectoryEntry
}

func lessChildSlot(a, b childSlot) bool {
	return a.name < b.name
}

// childrenDegree is the B-tree degree used for children caches. Most
// directories have few cached children, so this is kept small.
const childrenDegree = 8

// childSlotFreeList is shared by all children caches.
var childSlotFreeList = btree.NewFreeListG[childSlot](btree.DefaultFreeListSize)

func newEntry(node Node, parent *DirectoryEntry, name string) *DirectoryEntry {
	var ops EntryOps = DefaultEntryOps{}
	if p, ok := node.(EntryOpsProvider); ok {
		ops = p.EntryOps()
	}
	if parent != nil {
		parent.IncRef()
	}
	return &DirectoryEntry{
		id:        lastEntryID.Add(1),
		node:      node,
		ops:       ops,
		parent:    parent,
		localName: name,
		children:  btree.NewWithFreeListG(childrenDegree, lessChildSlot, childSlotFreeList),
	}
}

// NewUnrooted returns a new DirectoryEntry for node with no parent, such as a
// filesystem root or an anonymous node that has not been linked anywhere.
func NewUnrooted(node Node) *DirectoryEntry {
	return newEntry(node, nil, "")
}

// ID returns d's unique ID.
func (d *DirectoryEntry) ID() uint64 {
	return d.id
}

// Node returns the backing node named by d.
func (d *DirectoryEntry) Node() Node {
	return d.node
}

// Ops returns d's EntryOps.
func (d *DirectoryEntry) Ops() EntryOps {
	return d.ops
}

// IncRef increments d's reference count.
func (d *DirectoryEntry) IncRef() {
	d.refs.IncRef()
}

// TryIncRef increments d's reference count and returns true, unless d's
// reference count has already reached zero, in which case it returns false.
// TryIncRef does not require that a reference is held on d.
func (d *DirectoryEntry) TryIncRef() bool {
	return d.refs.TryIncRef()
}

// DecRef decrements d's reference count.
//
// Preconditions: No DirectoryEntry.childrenMu is held.
func (d *DirectoryEntry) DecRef() {
	d.refs.DecRefWithDestructor(d.destroy)
}

// ReadRefs returns d's current reference count. The result is racy.
func (d *DirectoryEntry) ReadRefs() int64 {
	return d.refs.ReadRefs()
}

// destroy is called when d's reference count reaches zero.
func (d *DirectoryEntry) destroy() {
	d.stateMu.Lock()
	parent := d.parent
	name := d.localName
	d.parent = nil
	d.stateMu.Unlock()
	if parent != nil {
		parent.removeChild(name, d)
		parent.DecRef()
	}
	if r, ok := d.node.(Releaser); ok {
		r.Release()
	}
}

// LocalName returns the name d is bound to in its parent.
func (d *DirectoryEntry) LocalName() string {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.localName
}

// ParentOrSelf returns d's parent, or d itself if d has no parent. A
// reference is taken on the returned entry.
func (d *DirectoryEntry) ParentOrSelf() *DirectoryEntry {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	p := d.parent
	if p == nil {
		p = d
	}
	p.IncRef()
	return p
}

// IsDead returns true if d has been unlinked, replaced or invalidated.
func (d *DirectoryEntry) IsDead() bool {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.dead
}

// IsMountpoint returns true if at least one Mount is grafted at d.
func (d *DirectoryEntry) IsMountpoint() bool {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.mountCount > 0
}

// MountCount returns the number of Mounts grafted at d.
func (d *DirectoryEntry) MountCount() uint32 {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.mountCount
}

// markDead marks d as dead.
func (d *DirectoryEntry) markDead() {
	d.stateMu.Lock()
	d.dead = true
	d.stateMu.Unlock()
}

// childLocked returns the cached child called name, which may have a zero
// reference count.
//
// +checklocksread:d.childrenMu
func (d *DirectoryEntry) childLocked(name string) (*DirectoryEntry, bool) {
	s, ok := d.children.Get(childSlot{name: name})
	return s.entry, ok
}

// +checklocks:d.childrenMu
func (d *DirectoryEntry) setChildLocked(name string, child *DirectoryEntry) {
	d.children.ReplaceOrInsert(childSlot{name: name, entry: child})
}

// removeChildLocked removes the slot for name iff it still holds child.
//
// +checklocks:d.childrenMu
func (d *DirectoryEntry) removeChildLocked(name string, child *DirectoryEntry) bool {
	if s, ok := d.children.Get(childSlot{name: name}); !ok || s.entry != child {
		return false
	}
	d.children.Delete(childSlot{name: name})
	return true
}

func (d *DirectoryEntry) removeChild(name string, child *DirectoryEntry) bool {
	d.childrenMu.Lock()
	defer d.childrenMu.Unlock()
	return d.removeChildLocked(name, child)
}

// checkComponent validates name as a single path component that is not
// reserved.
func checkComponent(name string) error {
	if len(name) > linux.NAME_MAX {
		return linuxerr.ENAMETOOLONG
	}
	if fspath.HasSeparator(name) {
		return linuxerr.EINVAL
	}
	return nil
}

// GetOrCreateChild returns the child of d called name, looking it up in the
// backing store on a cache miss and calling create if the backing store does
// not have it either. It also returns true if the child already existed and
// false if create was called. A reference is taken on the returned entry.
//
// Concurrent calls for the same name on the same directory call create at
// most once per vacancy of the name's cache slot.
//
// Existing entries are revalidated with their EntryOps. An entry that fails
// revalidation is marked dead and evicted, and the lookup is retried once.
// A revalidation error is returned without evicting the entry.
//
// Preconditions: name is not "", "." or "..".
func (d *DirectoryEntry) GetOrCreateChild(ctx context.Context, mnt MountContext, name string, create CreateNodeFunc) (*DirectoryEntry, bool, error) {
	if fspath.IsReservedComponent(name) {
		panic(fmt.Sprintf("GetOrCreateChild called with reserved name %q", name))
	}
	if err := checkComponent(name); err != nil {
		return nil, false, err
	}
	if !d.node.IsDir() {
		return nil, false, linuxerr.ENOTDIR
	}

	child, created, err := d.getOrCreateChild(ctx, mnt, name, create)
	if err != nil || created {
		return child, false, err
	}

	valid, err := child.ops.Revalidate(ctx, child)
	if err != nil {
		revalidationsTotal.WithLabelValues(revalidationError).Inc()
		revalidationLog.Warningf("vfs: revalidating %q: %v", name, err)
		child.DecRef()
		return nil, false, err
	}
	if valid {
		revalidationsTotal.WithLabelValues(revalidationValid).Inc()
		return child, true, nil
	}

	revalidationsTotal.WithLabelValues(revalidationStale).Inc()
	child.markDead()
	d.removeChild(name, child)
	d.node.FileSystem().WillDestroyEntry(child)
	child.DecRef()

	child, created, err = d.getOrCreateChildSlow(ctx, mnt, name, create)
	if err != nil {
		return nil, false, err
	}
	return child, !created, nil
}

// getOrCreateChild is the fast path of GetOrCreateChild, which only takes the
// children cache's read lock on a hit.
func (d *DirectoryEntry) getOrCreateChild(ctx context.Context, mnt MountContext, name string, create CreateNodeFunc) (*DirectoryEntry, bool, error) {
	d.childrenMu.RLock()
	if child, ok := d.childLocked(name); ok && child.TryIncRef() {
		d.childrenMu.RUnlock()
		lookupsTotal.WithLabelValues(lookupHit).Inc()
		d.node.FileSystem().DidAccessEntry(child)
		return child, false, nil
	}
	d.childrenMu.RUnlock()
	return d.getOrCreateChildSlow(ctx, mnt, name, create)
}

// getOrCreateChildSlow re-checks the cache with the write lock held and
// creates the child if it is still absent.
func (d *DirectoryEntry) getOrCreateChildSlow(ctx context.Context, mnt MountContext, name string, create CreateNodeFunc) (*DirectoryEntry, bool, error) {
	fs := d.node.FileSystem()
	d.childrenMu.Lock()
	if child, ok := d.childLocked(name); ok && child.TryIncRef() {
		d.childrenMu.Unlock()
		lookupsTotal.WithLabelValues(lookupHit).Inc()
		fs.DidAccessEntry(child)
		return child, false, nil
	}
	child, created, err := d.createChildLocked(ctx, mnt, name, create)
	d.childrenMu.Unlock()
	if err != nil {
		return nil, false, err
	}
	lookupsTotal.WithLabelValues(lookupMiss).Inc()
	if created {
		if u, ok := d.node.(TimestampUpdater); ok {
			u.UpdateCtimeMtime()
		}
		if log.IsLogging(log.Debug) {
			log.Debugf("vfs: created %q (%v) in %s", name, child.node.Mode(), DebugPathname(d))
		}
	}
	fs.DidCreateEntry(child)
	fs.PurgeOldEntries()
	return child, created, nil
}

// createChildLocked binds name to the node found by the backing lookup, or to
// a node returned by create if the lookup fails with ENOENT. It returns true
// if create was called.
//
// +checklocks:d.childrenMu
func (d *DirectoryEntry) createChildLocked(ctx context.Context, mnt MountContext, name string, create CreateNodeFunc) (*DirectoryEntry, bool, error) {
	node, err := d.node.Lookup(ctx, mnt, name)
	created := false
	if err != nil {
		if !linuxerr.Equals(linuxerr.ENOENT, err) {
			return nil, false, err
		}
		node, err = create(ctx, d.node, mnt, name)
		if err != nil {
			return nil, false, err
		}
		created = true
		entriesCreatedTotal.Inc()
	}
	if node.Mode().FileType() == 0 {
		panic(fmt.Sprintf("backing node %T for %q has no file type bits in mode %#o", node, name, uint(node.Mode())))
	}
	child := newEntry(node, d, name)
	d.setChildLocked(name, child)
	return child, created, nil
}

// CreateEntry creates a new child of d called name using create. It returns
// linuxerr.EEXIST if the name is reserved or already bound. A reference is
// taken on the returned entry.
func (d *DirectoryEntry) CreateEntry(ctx context.Context, mnt MountContext, name string, create CreateNodeFunc) (*DirectoryEntry, error) {
	child, existed, err := d.createEntryInternal(ctx, mnt, name, create)
	if err != nil {
		return nil, err
	}
	if existed {
		child.DecRef()
		return nil, linuxerr.EEXIST
	}
	return child, nil
}

// GetOrCreateEntry is like CreateEntry, but returns the existing child if
// name is already bound.
func (d *DirectoryEntry) GetOrCreateEntry(ctx context.Context, mnt MountContext, name string, create CreateNodeFunc) (*DirectoryEntry, error) {
	child, _, err := d.createEntryInternal(ctx, mnt, name, create)
	return child, err
}

func (d *DirectoryEntry) createEntryInternal(ctx context.Context, mnt MountContext, name string, create CreateNodeFunc) (*DirectoryEntry, bool, error) {
	if fspath.IsReservedComponent(name) {
		return nil, false, linuxerr.EEXIST
	}
	return d.GetOrCreateChild(ctx, mnt, name, create)
}

// ComponentLookup returns the child of d called name, or linuxerr.ENOENT if
// the backing store has no such child. Reserved names are rejected with
// linuxerr.EINVAL; resolving them is the path walker's job. A reference is
// taken on the returned entry.
func (d *DirectoryEntry) ComponentLookup(ctx context.Context, mnt MountContext, name string) (*DirectoryEntry, error) {
	if fspath.IsReservedComponent(name) {
		return nil, linuxerr.EINVAL
	}
	child, _, err := d.GetOrCreateChild(ctx, mnt, name, func(context.Context, Node, MountContext, string) (Node, error) {
		return nil, linuxerr.ENOENT
	})
	return child, err
}

// CopyChildNames returns the names of d's cached children that are still
// referenced, in lexical order. The result is a snapshot: it may omit
// lookups in flight and include children that are concurrently dropped.
func (d *DirectoryEntry) CopyChildNames() []string {
	d.childrenMu.RLock()
	defer d.childrenMu.RUnlock()
	names := make([]string, 0, d.children.Len())
	d.children.Ascend(func(s childSlot) bool {
		// A reference can't be taken here: dropping it could destroy the
		// child, which acquires d.childrenMu.
		if s.entry.ReadRefs() > 0 {
			names = append(names, s.name)
		}
		return true
	})
	return names
}

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
	"github.com/bluele/gcache"
	"github.com/misttech/mistos-vfs/pkg/log"
	"github.com/misttech/mistos-vfs/pkg/sync"
)

// DefaultLRUCapacity is the number of entries a CacheLRU filesystem retains
// when no capacity is given.
const DefaultLRUCapacity = 32

type cacheKind int

const (
	cachePermanent cacheKind = iota
	cacheLRU
	cacheNone
)

// CacheMode selects how a FileSystem retains DirectoryEntries that nothing
// else references.
type CacheMode struct {
	kind     cacheKind
	capacity int
}

var (
	// CachePermanent retains every entry until it is unlinked. It suits
	// filesystems whose entry tree is their only storage, like tmpfs.
	CachePermanent = CacheMode{kind: cachePermanent}

	// CacheNone retains nothing. Entries live only as long as something
	// outside the cache references them.
	CacheNone = CacheMode{kind: cacheNone}
)

// CacheLRU retains the capacity most recently created or accessed entries.
// A non-positive capacity selects DefaultLRUCapacity.
func CacheLRU(capacity int) CacheMode {
	if capacity <= 0 {
		capacity = DefaultLRUCapacity
	}
	return CacheMode{kind: cacheLRU, capacity: capacity}
}

// Capacity returns the number of entries a CacheLRU mode retains, and 0 for
// other modes.
func (m CacheMode) Capacity() int {
	return m.capacity
}

// String implements fmt.Stringer.
func (m CacheMode) String() string {
	switch m.kind {
	case cachePermanent:
		return "permanent"
	case cacheLRU:
		return "lru"
	default:
		return "none"
	}
}

func (m CacheMode) newEntryCache(fsName string) entryCache {
	switch m.kind {
	case cachePermanent:
		return &permanentEntries{entries: make(map[*DirectoryEntry]struct{})}
	case cacheLRU:
		return newLRUEntries(fsName, m.capacity)
	default:
		return noEntries{}
	}
}

// entryCache holds references on DirectoryEntries on behalf of a FileSystem.
// No method may be called with a DirectoryEntry lock held, except that
// created and accessed never drop references.
type entryCache interface {
	created(d *DirectoryEntry)
	accessed(d *DirectoryEntry)
	purge()
	forget(d *DirectoryEntry)
	release()
	len() int
}

type noEntries struct{}

func (noEntries) created(*DirectoryEntry)  {}
func (noEntries) accessed(*DirectoryEntry) {}
func (noEntries) purge()                   {}
func (noEntries) forget(*DirectoryEntry)   {}
func (noEntries) release()                 {}
func (noEntries) len() int                 { return 0 }

type permanentEntries struct {
	mu sync.Mutex

	// +checklocks:mu
	entries map[*DirectoryEntry]struct{}
}

func (c *permanentEntries) created(d *DirectoryEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[d]; !ok {
		d.IncRef()
		c.entries[d] = struct{}{}
	}
}

func (c *permanentEntries) accessed(*DirectoryEntry) {}

func (c *permanentEntries) purge() {}

func (c *permanentEntries) forget(d *DirectoryEntry) {
	c.mu.Lock()
	_, ok := c.entries[d]
	delete(c.entries, d)
	c.mu.Unlock()
	if ok {
		d.DecRef()
	}
}

func (c *permanentEntries) release() {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[*DirectoryEntry]struct{})
	c.mu.Unlock()
	for d := range entries {
		d.DecRef()
	}
}

func (c *permanentEntries) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// lruEntries holds a reference on each entry in an LRU cache. Evicted
// entries are queued and their references dropped by purge, since eviction
// happens while DirectoryEntry locks may be held.
type lruEntries struct {
	fsName string

	// mu serializes all calls into cache, so that the eviction callback runs
	// with mu held.
	mu sync.Mutex

	// +checklocks:mu
	cache gcache.Cache

	// +checklocks:mu
	evicted []*DirectoryEntry
}

func newLRUEntries(fsName string, capacity int) *lruEntries {
	c := &lruEntries{fsName: fsName}
	c.cache = gcache.New(capacity).LRU().EvictedFunc(c.onEvicted).Build()
	return c
}

// onEvicted is called by the cache with c.mu held.
func (c *lruEntries) onEvicted(key, _ any) {
	c.evicted = append(c.evicted, key.(*DirectoryEntry))
}

func (c *lruEntries) created(d *DirectoryEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache.Has(d) {
		c.cache.Get(d)
		return
	}
	d.IncRef()
	if err := c.cache.Set(d, struct{}{}); err != nil {
		log.Warningf("vfs: %s: caching entry %d: %v", c.fsName, d.id, err)
		c.evicted = append(c.evicted, d)
	}
}

func (c *lruEntries) accessed(d *DirectoryEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Get refreshes recency; a miss is fine.
	c.cache.Get(d)
}

func (c *lruEntries) purge() {
	c.mu.Lock()
	evicted := c.evicted
	c.evicted = nil
	c.mu.Unlock()
	if len(evicted) == 0 {
		return
	}
	lruEvictionsTotal.WithLabelValues(c.fsName).Add(float64(len(evicted)))
	for _, d := range evicted {
		d.DecRef()
	}
}

func (c *lruEntries) forget(d *DirectoryEntry) {
	c.mu.Lock()
	c.cache.Remove(d)
	c.mu.Unlock()
	c.purge()
}

func (c *lruEntries) release() {
	c.mu.Lock()
	// Purge does not report evictions, so remove keys one at a time.
	for key := range c.cache.GetALL(false) {
		c.cache.Remove(key)
	}
	c.mu.Unlock()
	c.purge()
}

func (c *lruEntries) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len(false)
}

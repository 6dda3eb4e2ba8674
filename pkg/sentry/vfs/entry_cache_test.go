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
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/misttech/mistos-vfs/pkg/sentry/context/contexttest"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// createAndDrop creates a file called name in root and drops the caller's
// reference on it, so that only the cache may keep it alive.
func createAndDrop(t *testing.T, root *DirectoryEntry, name string) *DirectoryEntry {
	t.Helper()
	var calls atomic.Int32
	d, err := root.CreateEntry(contexttest.Context(t), Detached(), name, NewTestFileFunc(&calls))
	if err != nil {
		t.Fatalf("CreateEntry(%q) failed: %v", name, err)
	}
	d.DecRef()
	return d
}

func TestCacheModeString(t *testing.T) {
	for _, test := range []struct {
		mode     CacheMode
		want     string
		capacity int
	}{
		{CachePermanent, "permanent", 0},
		{CacheNone, "none", 0},
		{CacheLRU(5), "lru", 5},
		{CacheLRU(0), "lru", DefaultLRUCapacity},
	} {
		if got := test.mode.String(); got != test.want {
			t.Errorf("String() = %q, want %q", got, test.want)
		}
		if got := test.mode.Capacity(); got != test.capacity {
			t.Errorf("%v: Capacity() = %d, want %d", test.mode, got, test.capacity)
		}
	}
}

func TestPermanentCacheRetainsEntries(t *testing.T) {
	ctx := contexttest.Context(t)
	_, root := newTestRoot(t, CachePermanent)
	fs := root.Node().FileSystem()

	d := createAndDrop(t, root, "keep")
	if refs := d.ReadRefs(); refs != 1 {
		t.Errorf("cached entry has %d references, want 1", refs)
	}
	if n := fs.CachedEntries(); n != 1 {
		t.Errorf("CachedEntries = %d, want 1", n)
	}

	got, err := root.ComponentLookup(ctx, Detached(), "keep")
	if err != nil {
		t.Fatalf("ComponentLookup failed: %v", err)
	}
	if got != d {
		t.Errorf("ComponentLookup returned entry %d, want %d", got.ID(), d.ID())
	}
	got.DecRef()

	if err := root.Unlink(ctx, Detached(), "keep", UnlinkNonDirectory); err != nil {
		t.Fatalf("Unlink failed: %v", err)
	}
	if n := fs.CachedEntries(); n != 0 {
		t.Errorf("CachedEntries after unlink = %d, want 0", n)
	}
	if refs := d.ReadRefs(); refs != 0 {
		t.Errorf("unlinked entry has %d references, want 0", refs)
	}
}

func TestLRUCacheEvictsOldest(t *testing.T) {
	ctx := contexttest.Context(t)
	_, root := newTestRoot(t, CacheLRU(2))
	fs := root.Node().FileSystem()
	evictions := testutil.ToFloat64(lruEvictionsTotal.WithLabelValues("testfs"))

	a := createAndDrop(t, root, "a")
	b := createAndDrop(t, root, "b")
	if a.ReadRefs() != 1 || b.ReadRefs() != 1 {
		t.Fatalf("cached entries have %d and %d references, want 1 and 1", a.ReadRefs(), b.ReadRefs())
	}
	createAndDrop(t, root, "c")

	if n := fs.CachedEntries(); n != 2 {
		t.Errorf("CachedEntries = %d, want 2", n)
	}
	if refs := a.ReadRefs(); refs != 0 {
		t.Errorf("evicted entry has %d references, want 0", refs)
	}
	if diff := cmp.Diff([]string{"b", "c"}, root.CopyChildNames()); diff != "" {
		t.Errorf("CopyChildNames mismatch (-want +got):\n%s", diff)
	}
	if got := testutil.ToFloat64(lruEvictionsTotal.WithLabelValues("testfs")) - evictions; got != 1 {
		t.Errorf("evictions increased by %v, want 1", got)
	}

	again, err := root.ComponentLookup(ctx, Detached(), "a")
	if err != nil {
		t.Fatalf("ComponentLookup(a) failed: %v", err)
	}
	defer again.DecRef()
	if again == a {
		t.Errorf("ComponentLookup(a) revived an evicted entry")
	}
}

func TestLRUCacheAccessRefreshes(t *testing.T) {
	ctx := contexttest.Context(t)
	_, root := newTestRoot(t, CacheLRU(2))

	a := createAndDrop(t, root, "a")
	b := createAndDrop(t, root, "b")

	got, err := root.ComponentLookup(ctx, Detached(), "a")
	if err != nil {
		t.Fatalf("ComponentLookup(a) failed: %v", err)
	}
	got.DecRef()

	createAndDrop(t, root, "c")
	if refs := a.ReadRefs(); refs != 1 {
		t.Errorf("recently used entry has %d references, want 1", refs)
	}
	if refs := b.ReadRefs(); refs != 0 {
		t.Errorf("least recently used entry has %d references, want 0", refs)
	}
}

func TestLRUCacheRelease(t *testing.T) {
	fs, _ := NewTestFileSystem(&TestKernel{}, CacheLRU(4))
	root := fs.Root()
	a := createAndDrop(t, root, "a")
	root.DecRef()

	fs.Release()
	if n := fs.CachedEntries(); n != 0 {
		t.Errorf("CachedEntries after Release = %d, want 0", n)
	}
	if refs := a.ReadRefs(); refs != 0 {
		t.Errorf("entry has %d references after Release, want 0", refs)
	}
	if refs := root.ReadRefs(); refs != 0 {
		t.Errorf("root has %d references after Release, want 0", refs)
	}
}

func TestFileSystemRoot(t *testing.T) {
	fs, node := NewTestFileSystem(&TestKernel{}, CacheNone)
	defer fs.Release()
	root := fs.Root()
	defer root.DecRef()
	if root.Node() != node {
		t.Errorf("Root().Node() = %p, want %p", root.Node(), node)
	}
	if fs.Name() != "testfs" {
		t.Errorf("Name() = %q, want testfs", fs.Name())
	}

	defer func() {
		if recover() == nil {
			t.Errorf("second SetRoot did not panic")
		}
	}()
	fs.SetRoot(node)
}

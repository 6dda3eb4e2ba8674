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
	"testing"
)

func newLockTestEntries(n int) []*DirectoryEntry {
	fs := NewFileSystem(&TestKernel{}, testFileSystemImpl{}, CacheNone, FileSystemOptions{})
	entries := make([]*DirectoryEntry, n)
	for i := range entries {
		entries[i] = NewUnrooted(newTestNode(fs, 0040755))
	}
	return entries
}

func TestLockStates(t *testing.T) {
	e := newLockTestEntries(3)
	unlock := lockStates(e[2], nil, e[0], e[2], e[1])
	for i, d := range e {
		if d.stateMu.TryLock() {
			d.stateMu.Unlock()
			t.Errorf("entry %d is not locked", i)
		}
	}
	unlock()
	for i, d := range e {
		if !d.stateMu.TryLock() {
			t.Errorf("entry %d is still locked", i)
			continue
		}
		d.stateMu.Unlock()
	}
}

func TestLockChildren(t *testing.T) {
	e := newLockTestEntries(2)
	for _, pair := range [][2]*DirectoryEntry{{e[0], e[1]}, {e[1], e[0]}, {e[0], e[0]}} {
		unlock := lockChildren(pair[0], pair[1])
		for _, d := range pair {
			if d.childrenMu.TryLock() {
				d.childrenMu.Unlock()
				t.Errorf("entry %d is not locked", d.ID())
			}
		}
		unlock()
		for _, d := range pair {
			if !d.childrenMu.TryLock() {
				t.Errorf("entry %d is still locked", d.ID())
				continue
			}
			d.childrenMu.Unlock()
		}
	}
}

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
	"cmp"
	"slices"
)

// lockChildren locks the children caches of a and b, which may be the same
// entry. When two caches are locked, the one with the lower entry ID is
// locked first. The returned function unlocks them.
func lockChildren(a, b *DirectoryEntry) func() {
	if a == b {
		a.childrenMu.Lock()
		return a.childrenMu.Unlock
	}
	if b.id < a.id {
		a, b = b, a
	}
	a.childrenMu.Lock()
	b.childrenMu.Lock()
	return func() {
		b.childrenMu.Unlock()
		a.childrenMu.Unlock()
	}
}

// lockStates locks the state of every distinct non-nil entry in entries, in
// ascending entry ID order. The returned function unlocks them.
func lockStates(entries ...*DirectoryEntry) func() {
	locked := make([]*DirectoryEntry, 0, len(entries))
	for _, d := range entries {
		if d != nil && !slices.Contains(locked, d) {
			locked = append(locked, d)
		}
	}
	slices.SortFunc(locked, func(a, b *DirectoryEntry) int {
		return cmp.Compare(a.id, b.id)
	})
	for _, d := range locked {
		d.stateMu.Lock()
	}
	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].stateMu.Unlock()
		}
	}
}

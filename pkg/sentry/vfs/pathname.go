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
	"github.com/misttech/mistos-vfs/pkg/fspath"
	"github.com/misttech/mistos-vfs/pkg/sentry/context"
	"github.com/misttech/mistos-vfs/pkg/sync"
)

var fspathBuilderPool = sync.Pool{
	New: func() any {
		return &fspath.Builder{}
	},
}

func getFSPathBuilder() *fspath.Builder {
	return fspathBuilderPool.Get().(*fspath.Builder)
}

func putFSPathBuilder(b *fspath.Builder) {
	b.Reset()
	fspathBuilderPool.Put(b)
}

// prependEntries prepends the names of d and its ancestors to b, stopping
// before stop or at an entry with no parent. It returns the last entry
// visited.
func prependEntries(b *fspath.Builder, d, stop *DirectoryEntry) *DirectoryEntry {
	for d != stop {
		d.stateMu.RLock()
		parent, name := d.parent, d.localName
		d.stateMu.RUnlock()
		if parent == nil {
			break
		}
		b.PrependComponent(name)
		d = parent
	}
	return d
}

// DebugPathname returns the path from d's filesystem root to d, for use in
// log messages. Dead entries have " (deleted)" appended, as in Linux's
// d_path().
func DebugPathname(d *DirectoryEntry) string {
	b := getFSPathBuilder()
	defer putFSPathBuilder(b)
	prependEntries(b, d, nil)
	b.PrependByte('/')
	if d.IsDead() {
		b.AppendString(" (deleted)")
	}
	return b.String()
}

// Pathname returns the absolute path of l, following Mounts up through their
// mount points until it reaches the root of ctx (see WithRoot) or a Mount
// that is not grafted.
func (l NamespaceLocation) Pathname(ctx context.Context) string {
	b := getFSPathBuilder()
	defer putFSPathBuilder(b)

	root := RootFromContext(ctx)
	if root.Ok() {
		defer root.DecRef()
	}

	cur := l
	haveRef := false
	for {
		mnt := cur.Mount()
		if mnt == nil {
			prependEntries(b, cur.entry, nil)
			break
		}
		if root.Ok() && mnt == root.Mount() {
			prependEntries(b, cur.entry, root.entry)
			break
		}
		if prependEntries(b, cur.entry, mnt.root) != mnt.root {
			break
		}
		next, ok := mnt.Mountpoint()
		if haveRef {
			cur.DecRef()
		}
		if !ok {
			haveRef = false
			break
		}
		cur, haveRef = next, true
	}
	if haveRef {
		cur.DecRef()
	}
	b.PrependByte('/')
	if l.entry.IsDead() {
		b.AppendString(" (deleted)")
	}
	return b.String()
}

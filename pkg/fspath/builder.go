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

package fspath

import (
	"fmt"
)

// Builder is similar to strings.Builder, but is used to produce pathnames
// given path components in reverse order (from leaf to root). This is useful
// in the common case where a filesystem is represented by a tree of named
// nodes, and the path to a given node must be produced by walking upward from
// that node to a given root.
type Builder struct {
	buf     []byte
	start   int
	needSep bool
}

// Reset resets the Builder to be empty.
func (b *Builder) Reset() {
	b.start = len(b.buf)
	b.needSep = false
}

// Len returns the number of accumulated bytes.
func (b *Builder) Len() int {
	return len(b.buf) - b.start
}

// reserve ensures that at least n bytes are free in front of b.start,
// growing the buffer if necessary. Accumulated bytes stay right-aligned.
func (b *Builder) reserve(n int) {
	if b.start >= n {
		return
	}
	used := b.Len()
	newCap := max(2*len(b.buf), 64)
	for newCap < used+n {
		if newCap > (1<<31)/2 {
			panic(fmt.Sprintf("required length (%d) causes buffer size to overflow", used+n))
		}
		newCap *= 2
	}
	newBuf := make([]byte, newCap)
	copy(newBuf[newCap-used:], b.buf[b.start:])
	b.start = newCap - used
	b.buf = newBuf
}

// PrependComponent prepends the given path component to b's buffer. A path
// separator is automatically inserted if appropriate.
func (b *Builder) PrependComponent(pc string) {
	if b.needSep {
		b.PrependByte('/')
	}
	b.PrependString(pc)
	b.needSep = true
}

// PrependString prepends the given string to b's buffer.
func (b *Builder) PrependString(str string) {
	b.reserve(len(str))
	b.start -= copy(b.buf[b.start-len(str):], str)
}

// PrependByte prepends the given byte to b's buffer.
func (b *Builder) PrependByte(c byte) {
	b.reserve(1)
	b.start--
	b.buf[b.start] = c
}

// AppendString appends the given string to b's buffer.
func (b *Builder) AppendString(str string) {
	b.reserve(len(str))
	oldStart := b.start
	b.start -= len(str)
	copy(b.buf[b.start:], b.buf[oldStart:])
	copy(b.buf[len(b.buf)-len(str):], str)
}

// String returns the accumulated string.
func (b *Builder) String() string {
	return string(b.buf[b.start:])
}

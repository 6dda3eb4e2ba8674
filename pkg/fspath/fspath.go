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

// Package fspath provides efficient tools for working with file paths in
// Linux-compatible filesystem implementations.
package fspath

import (
	"strings"
)

// Separator is the path component separator.
const Separator = '/'

// IsReservedComponent returns true if name may never be bound to a directory
// entry: the empty name, "." and "..".
func IsReservedComponent(name string) bool {
	return name == "" || name == "." || name == ".."
}

// HasSeparator returns true if name contains a path separator and so cannot be
// a single path component.
func HasSeparator(name string) bool {
	return strings.IndexByte(name, Separator) >= 0
}

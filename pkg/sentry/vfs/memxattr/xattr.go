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

// Package memxattr provides a default, in-memory extended attribute
// implementation.
package memxattr

import (
	"sort"

	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/sync"
)

// SimpleExtendedAttributes implements extended attributes using a map of
// names to values. The zero value holds no attributes.
type SimpleExtendedAttributes struct {
	// mu protects the below fields.
	mu     sync.RWMutex
	xattrs map[string]string
}

// GetXattr returns the value at name. A non-zero size is the size of the
// caller's buffer, as in getxattr(2).
func (x *SimpleExtendedAttributes) GetXattr(name string, size uint64) (string, error) {
	x.mu.RLock()
	value, ok := x.xattrs[name]
	x.mu.RUnlock()
	if !ok {
		return "", linuxerr.ENODATA
	}
	// Check that the size of the buffer provided in getxattr(2) is large enough
	// to contain the value.
	if size != 0 && uint64(len(value)) > size {
		return "", linuxerr.ERANGE
	}
	return value, nil
}

// SetXattr sets value at name. flags may contain linux.XATTR_CREATE or
// linux.XATTR_REPLACE.
func (x *SimpleExtendedAttributes) SetXattr(name, value string, flags uint32) error {
	if len(name) > linux.XATTR_NAME_MAX {
		return linuxerr.ERANGE
	}
	if len(value) > linux.XATTR_SIZE_MAX {
		return linuxerr.E2BIG
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.xattrs == nil {
		if flags&linux.XATTR_REPLACE != 0 {
			return linuxerr.ENODATA
		}
		x.xattrs = make(map[string]string)
	}

	_, ok := x.xattrs[name]
	if ok && flags&linux.XATTR_CREATE != 0 {
		return linuxerr.EEXIST
	}
	if !ok && flags&linux.XATTR_REPLACE != 0 {
		return linuxerr.ENODATA
	}

	x.xattrs[name] = value
	return nil
}

// ListXattr returns all names in xattrs, sorted. A non-zero size is the size
// of the caller's buffer, as in listxattr(2).
func (x *SimpleExtendedAttributes) ListXattr(size uint64) ([]string, error) {
	// Keep track of the size of the buffer needed in listxattr(2) for the list.
	listSize := 0
	x.mu.RLock()
	names := make([]string, 0, len(x.xattrs))
	for n := range x.xattrs {
		names = append(names, n)
		// Add one byte per null terminator.
		listSize += len(n) + 1
	}
	x.mu.RUnlock()
	if size != 0 && uint64(listSize) > size {
		return nil, linuxerr.ERANGE
	}
	sort.Strings(names)
	return names, nil
}

// RemoveXattr removes the xattr at name.
func (x *SimpleExtendedAttributes) RemoveXattr(name string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.xattrs[name]; !ok {
		return linuxerr.ENODATA
	}
	delete(x.xattrs, name)
	return nil
}

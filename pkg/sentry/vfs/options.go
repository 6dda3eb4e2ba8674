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
	"strconv"
	"strings"

	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
)

// FileSystemOptions contains options to NewFileSystem.
type FileSystemOptions struct {
	// Source is the device or other source named by mount(2), for display.
	Source string

	// Flags is the subset of StoredOnFileSystem that applies to the whole
	// filesystem.
	Flags MountFlags

	// Data holds filesystem-specific options, as returned by ParseMountData.
	Data map[string]string
}

// ParseMountData parses the comma-separated key[=value] options passed as
// the data argument of mount(2). Options without a value map to "".
// Duplicate keys and empty options are rejected with linuxerr.EINVAL.
func ParseMountData(data string) (map[string]string, error) {
	opts := make(map[string]string)
	if data == "" {
		return opts, nil
	}
	for _, opt := range strings.Split(data, ",") {
		key, value, _ := strings.Cut(opt, "=")
		if key == "" {
			return nil, linuxerr.EINVAL
		}
		if _, ok := opts[key]; ok {
			return nil, linuxerr.EINVAL
		}
		opts[key] = value
	}
	return opts, nil
}

// ParseModeOption parses the octal permission bits of a mode= option.
func ParseModeOption(value string) (linux.FileMode, error) {
	mode, err := strconv.ParseUint(value, 8, 32)
	if err != nil || mode&^07777 != 0 {
		return 0, linuxerr.EINVAL
	}
	return linux.FileMode(mode), nil
}

// ParseIDOption parses the decimal value of a uid= or gid= option.
func ParseIDOption(value string) (uint32, error) {
	id, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, linuxerr.EINVAL
	}
	return uint32(id), nil
}

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

package tmpfs

import (
	"strings"

	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/sentry/context"
	"github.com/misttech/mistos-vfs/pkg/sentry/vfs"
)

// xattrInode returns the tmpfs inode named by d, after checking that the
// credentials of ctx have ats access to its user extended attribute name.
func xattrInode(ctx context.Context, d *vfs.DirectoryEntry, name string, ats vfs.AccessTypes) (*inode, error) {
	i, ok := d.Node().(*inode)
	if !ok {
		return nil, linuxerr.EXDEV
	}
	// Only the user namespace is supported, and Linux only allows user
	// extended attributes on regular files and directories.
	if !strings.HasPrefix(name, linux.XATTR_USER_PREFIX) || len(name) == linux.XATTR_USER_PREFIX_LEN {
		return nil, linuxerr.EOPNOTSUPP
	}
	if ft := i.mode.FileType(); ft != linux.ModeRegular && ft != linux.ModeDirectory {
		if ats&vfs.MayWrite != 0 {
			return nil, linuxerr.EPERM
		}
		return nil, linuxerr.ENODATA
	}
	if ats&vfs.MayWrite != 0 && i.fs.readOnly {
		return nil, linuxerr.EROFS
	}
	if err := i.checkPermissions(ctx, ats); err != nil {
		return nil, err
	}
	return i, nil
}

// GetXattr returns the value of the extended attribute name of the file
// named by d, as getxattr(2).
func GetXattr(ctx context.Context, d *vfs.DirectoryEntry, name string, size uint64) (string, error) {
	i, err := xattrInode(ctx, d, name, vfs.MayRead)
	if err != nil {
		return "", err
	}
	return i.xattrs.GetXattr(name, size)
}

// SetXattr sets the extended attribute name of the file named by d, as
// setxattr(2).
func SetXattr(ctx context.Context, d *vfs.DirectoryEntry, name, value string, flags uint32) error {
	i, err := xattrInode(ctx, d, name, vfs.MayWrite)
	if err != nil {
		return err
	}
	if err := i.xattrs.SetXattr(name, value, flags); err != nil {
		return err
	}
	i.touchCtime()
	return nil
}

// ListXattr returns the names of the extended attributes of the file named
// by d, as listxattr(2).
func ListXattr(d *vfs.DirectoryEntry, size uint64) ([]string, error) {
	i, ok := d.Node().(*inode)
	if !ok {
		return nil, linuxerr.EXDEV
	}
	return i.xattrs.ListXattr(size)
}

// RemoveXattr removes the extended attribute name of the file named by d, as
// removexattr(2).
func RemoveXattr(ctx context.Context, d *vfs.DirectoryEntry, name string) error {
	i, err := xattrInode(ctx, d, name, vfs.MayWrite)
	if err != nil {
		return err
	}
	if err := i.xattrs.RemoveXattr(name); err != nil {
		return err
	}
	i.touchCtime()
	return nil
}

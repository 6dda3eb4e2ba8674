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

package tmpfs

import (
	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/sentry/context"
	"github.com/misttech/mistos-vfs/pkg/sentry/kernel/auth"
	"github.com/misttech/mistos-vfs/pkg/sentry/vfs"
)

type symlink struct {
	target string // immutable
}

// SymlinkFunc returns a vfs.CreateNodeFunc that creates a symbolic link to
// target, as symlink(2).
func SymlinkFunc(target string) vfs.CreateNodeFunc {
	return func(ctx context.Context, dir vfs.Node, mnt vfs.MountContext, name string) (vfs.Node, error) {
		parent, ok := dir.(*inode)
		if !ok {
			return nil, linuxerr.EPERM
		}
		if target == "" {
			return nil, linuxerr.ENOENT
		}
		if len(target) >= linux.PATH_MAX {
			return nil, linuxerr.ENAMETOOLONG
		}
		owner := auth.CredentialsFromContext(ctx).FileOwner()
		link := parent.fs.newInode(owner, linux.ModeSymlink|0777, &symlink{target: target})
		if err := parent.insertChild(ctx, name, link); err != nil {
			return nil, err
		}
		return link, nil
	}
}

// Readlink returns the target of the symbolic link named by d.
func Readlink(d *vfs.DirectoryEntry) (string, error) {
	i, ok := d.Node().(*inode)
	if !ok {
		return "", linuxerr.EINVAL
	}
	link, ok := i.impl.(*symlink)
	if !ok {
		return "", linuxerr.EINVAL
	}
	return link.target, nil
}

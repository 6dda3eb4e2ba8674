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

// Package anonfs provides the filesystem behind anonymous nodes, such as
// pipes and event objects, that are never linked into a directory.
package anonfs

import (
	"fmt"
	"time"

	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/sentry/context"
	"github.com/misttech/mistos-vfs/pkg/sentry/kernel/auth"
	"github.com/misttech/mistos-vfs/pkg/sentry/vfs"
)

// Name is the filesystem type name.
const Name = "anon_inodefs"

type filesystemImpl struct{}

// Name implements vfs.FileSystemImpl.Name.
func (filesystemImpl) Name() string {
	return Name
}

// NewFileSystem returns a new anonymous filesystem. It has no root, and
// retains no entries: anonymous nodes live as long as their entries are
// referenced.
func NewFileSystem(k vfs.Kernel) *vfs.FileSystem {
	return vfs.NewFileSystem(k, filesystemImpl{}, vfs.CacheNone, vfs.FileSystemOptions{Source: Name})
}

// Node is an anonymous node.
type Node struct {
	fs    *vfs.FileSystem
	ino   uint64
	mode  linux.FileMode
	owner auth.FileOwner

	// We use the creation timestamp for all of atime, mtime, and ctime.
	ctime time.Time
}

// NewNode returns a new anonymous node of the given mode in fs, owned by
// the credentials of ctx.
//
// Preconditions: mode has file type bits that are not linux.ModeDirectory.
func NewNode(ctx context.Context, fs *vfs.FileSystem, mode linux.FileMode) *Node {
	if mode.FileType() == 0 || mode.IsDir() {
		panic(fmt.Sprintf("anonymous node with mode %v", mode))
	}
	return &Node{
		fs:    fs,
		ino:   fs.NextNodeID(),
		mode:  mode,
		owner: auth.CredentialsFromContext(ctx).FileOwner(),
		ctime: time.Now(),
	}
}

// Mode implements vfs.Node.Mode.
func (n *Node) Mode() linux.FileMode {
	return n.mode
}

// IsDir implements vfs.Node.IsDir.
func (n *Node) IsDir() bool {
	return false
}

// FileSystem implements vfs.Node.FileSystem.
func (n *Node) FileSystem() *vfs.FileSystem {
	return n.fs
}

// Lookup implements vfs.Node.Lookup.
func (n *Node) Lookup(ctx context.Context, mnt vfs.MountContext, name string) (vfs.Node, error) {
	return nil, linuxerr.ENOTDIR
}

// Ino returns n's node number.
func (n *Node) Ino() uint64 {
	return n.ino
}

// Owner returns the owner of n.
func (n *Node) Owner() auth.FileOwner {
	return n.owner
}

// Ctime returns the time n was created.
func (n *Node) Ctime() time.Time {
	return n.ctime
}

// String returns the name Linux shows for anonymous nodes in /proc/[pid]/fd.
func (n *Node) String() string {
	return fmt.Sprintf("anon_inode:[%d]", n.ino)
}

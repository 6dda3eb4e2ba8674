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

// Package kernel holds the kernel-wide state that filesystems and mounts
// share: the mount ID allocator, the anonymous filesystem and the
// configuration.
package kernel

import (
	"io"
	"sync/atomic"

	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/log"
	"github.com/misttech/mistos-vfs/pkg/sentry/context"
	"github.com/misttech/mistos-vfs/pkg/sentry/fsimpl/anonfs"
	"github.com/misttech/mistos-vfs/pkg/sentry/kernel/config"
	"github.com/misttech/mistos-vfs/pkg/sentry/vfs"
	"github.com/misttech/mistos-vfs/pkg/sync"
)

// Kernel represents an emulated Linux kernel. It must be initialized by
// calling Init.
type Kernel struct {
	// config is immutable after Init.
	config config.Config

	// lastMountID is the most recently allocated mount ID.
	lastMountID atomic.Uint64

	anonFSOnce sync.Once

	// anonFS is set once by anonFSOnce.
	anonFS *vfs.FileSystem
}

// InitKernelArgs holds arguments to Init.
type InitKernelArgs struct {
	// Config is the kernel configuration.
	Config config.Config

	// LogOutput, if not nil, replaces the global log target with one that
	// writes to LogOutput in the configured format.
	LogOutput io.Writer
}

// Init initializes the Kernel with no tasks.
func (k *Kernel) Init(args InitKernelArgs) error {
	if err := args.Config.Validate(); err != nil {
		return err
	}
	k.config = args.Config
	if args.LogOutput != nil {
		log.SetTarget(args.Config.Log.Emitter(args.LogOutput))
	}
	log.SetLevel(args.Config.Log.Level)
	log.Infof("Kernel initialized: log level %v, LRU cache capacity %d", args.Config.Log.Level, k.CachedFileSystemMode().Capacity())
	return nil
}

// Config returns the kernel configuration.
func (k *Kernel) Config() config.Config {
	return k.config
}

// NextMountID implements vfs.Kernel.NextMountID. The first ID is 1.
func (k *Kernel) NextMountID() uint64 {
	return k.lastMountID.Add(1)
}

// CachedFileSystemMode returns the cache mode for filesystems whose backing
// store may change out of band.
func (k *Kernel) CachedFileSystemMode() vfs.CacheMode {
	return vfs.CacheLRU(k.config.Cache.Capacity)
}

// AnonFS returns the filesystem that holds anonymous nodes. It is created on
// first use.
func (k *Kernel) AnonFS() *vfs.FileSystem {
	k.anonFSOnce.Do(func() {
		k.anonFS = anonfs.NewFileSystem(k)
	})
	return k.anonFS
}

// NewAnonymousLocation returns a detached location for a new anonymous node
// of the given mode, owned by the credentials of ctx. The caller must DecRef
// the returned location.
func (k *Kernel) NewAnonymousLocation(ctx context.Context, mode linux.FileMode) vfs.NamespaceLocation {
	return vfs.NewUnrootedLocation(anonfs.NewNode(ctx, k.AnonFS(), mode))
}

// MountFileSystem returns a new Mount of the root of fs, which must belong to
// k.
func (k *Kernel) MountFileSystem(fs *vfs.FileSystem, flags vfs.MountFlags) (*vfs.Mount, error) {
	if fs.Kernel() != vfs.Kernel(k) {
		return nil, linuxerr.EINVAL
	}
	return vfs.NewMount(vfs.WhatFileSystem(fs), flags)
}

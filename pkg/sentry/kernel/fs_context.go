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

package kernel

import (
	"fmt"

	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/refs"
	"github.com/misttech/mistos-vfs/pkg/sentry/context"
	"github.com/misttech/mistos-vfs/pkg/sentry/vfs"
	"github.com/misttech/mistos-vfs/pkg/sync"
)

// FSContext contains filesystem context.
//
// This includes umask and working directory. FSContexts are
// reference-counted; each holds references on its root and working
// directory.
type FSContext struct {
	refs refs.AtomicRefCount

	// mu protects below.
	mu sync.Mutex

	// root is the filesystem root.
	root vfs.NamespaceLocation

	// cwd is the current working directory.
	cwd vfs.NamespaceLocation

	// umask is the current file mode creation mask. When a thread using this
	// context creates a file, bits set in umask are removed from the
	// permissions that the file is created with.
	umask uint
}

// NewFSContext returns a new filesystem context. It takes references on root
// and cwd.
func NewFSContext(root, cwd vfs.NamespaceLocation, umask uint) *FSContext {
	root.IncRef()
	cwd.IncRef()
	return &FSContext{
		root:  root,
		cwd:   cwd,
		umask: umask,
	}
}

// destroy destroys the FSContext.
//
// Preconditions: f must have no refcount.
func (f *FSContext) destroy() {
	// Hold f.mu so that we don't race with RootDirectory() and
	// WorkingDirectory().
	f.mu.Lock()
	root := f.root
	cwd := f.cwd
	f.root = vfs.NamespaceLocation{}
	f.cwd = vfs.NamespaceLocation{}
	f.mu.Unlock()
	root.DecRef()
	cwd.DecRef()
}

// IncRef increments f's reference count.
func (f *FSContext) IncRef() {
	f.refs.IncRef()
}

// DecRef decrements f's reference count. When f reaches zero references,
// DecRef is called on both root and cwd.
//
// Note that there may still be calls to WorkingDirectory() or RootDirectory()
// (that return zero values). This is because valid references may still be
// held by other means.
func (f *FSContext) DecRef() {
	f.refs.DecRefWithDestructor(f.destroy)
}

// Fork forks this FSContext.
//
// This is not a valid call after f is destroyed.
func (f *FSContext) Fork() *FSContext {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.cwd.Ok() {
		panic("FSContext.Fork() called after destroy")
	}
	return NewFSContext(f.root, f.cwd, f.umask)
}

// WorkingDirectory returns the current working directory.
//
// This will return an empty vfs.NamespaceLocation if called after f is
// destroyed, otherwise it will return a location with a reference taken.
func (f *FSContext) WorkingDirectory() vfs.NamespaceLocation {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cwd.IncRef()
	return f.cwd
}

// SetWorkingDirectory sets the current working directory. It takes a
// reference on loc.
//
// This is not a valid call after f is destroyed.
func (f *FSContext) SetWorkingDirectory(loc vfs.NamespaceLocation) {
	f.mu.Lock()

	if !f.cwd.Ok() {
		f.mu.Unlock()
		panic(fmt.Sprintf("FSContext.SetWorkingDirectory(%v) called after destroy", loc))
	}

	old := f.cwd
	f.cwd = loc
	loc.IncRef()
	f.mu.Unlock()
	old.DecRef()
}

// RootDirectory returns the current filesystem root.
//
// This will return an empty vfs.NamespaceLocation if called after f is
// destroyed, otherwise it will return a location with a reference taken.
func (f *FSContext) RootDirectory() vfs.NamespaceLocation {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.root.IncRef()
	return f.root
}

// SetRootDirectory sets the root directory. It takes a reference on loc.
//
// This is not a valid call after f is destroyed.
func (f *FSContext) SetRootDirectory(loc vfs.NamespaceLocation) {
	if !loc.Ok() {
		panic("FSContext.SetRootDirectory called with zero-value NamespaceLocation")
	}

	f.mu.Lock()

	if !f.root.Ok() {
		f.mu.Unlock()
		panic(fmt.Sprintf("FSContext.SetRootDirectory(%v) called after destroy", loc))
	}

	old := f.root
	loc.IncRef()
	f.root = loc
	f.mu.Unlock()
	old.DecRef()
}

// Umask returns the current umask.
func (f *FSContext) Umask() uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.umask
}

// SwapUmask atomically sets the current umask and returns the old umask.
func (f *FSContext) SwapUmask(mask uint) uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	old := f.umask
	f.umask = mask
	return old
}

// OpenCreate creates, or unless exclusive is set returns, the child of the
// working directory called name, as for open(2) with O_CREAT. The umask is
// applied to mode's permissions. The caller must DecRef the returned
// location.
func (f *FSContext) OpenCreate(ctx context.Context, name string, mode linux.FileMode, exclusive bool) (vfs.NamespaceLocation, error) {
	cwd := f.WorkingDirectory()
	defer cwd.DecRef()
	mode &^= linux.FileMode(f.Umask()) & linux.PermissionsMask
	return cwd.OpenCreateNode(f.WithRoot(ctx), name, mode, exclusive)
}

// Pathname returns the path of loc relative to f's root.
func (f *FSContext) Pathname(ctx context.Context, loc vfs.NamespaceLocation) string {
	return loc.Pathname(f.WithRoot(ctx))
}

// WithRoot returns a copy of ctx whose root is f's root. f must outlive the
// returned context.
func (f *FSContext) WithRoot(ctx context.Context) context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return vfs.WithRoot(ctx, f.root)
}

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

package anonfs

import (
	"testing"

	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/sentry/context/contexttest"
	"github.com/misttech/mistos-vfs/pkg/sentry/kernel/auth"
	"github.com/misttech/mistos-vfs/pkg/sentry/vfs"
)

func TestNewNode(t *testing.T) {
	creds := auth.NewUserCredentials(1000, 100, nil)
	ctx := contexttest.WithCreds(contexttest.Context(t), creds)
	fs := NewFileSystem(&vfs.TestKernel{})
	defer fs.Release()

	first := NewNode(ctx, fs, linux.ModeNamedPipe|0600)
	second := NewNode(ctx, fs, linux.ModeRegular|0600)
	if first.Ino() == second.Ino() {
		t.Errorf("nodes share node number %d", first.Ino())
	}
	if got, want := first.Owner(), (auth.FileOwner{UID: 1000, GID: 100}); got != want {
		t.Errorf("Owner() = %+v, want %+v", got, want)
	}
	if got, want := first.String(), "anon_inode:[1]"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if fs.Name() != Name {
		t.Errorf("Name() = %q, want %q", fs.Name(), Name)
	}
}

func TestAnonymousLocation(t *testing.T) {
	ctx := contexttest.Context(t)
	fs := NewFileSystem(&vfs.TestKernel{})
	defer fs.Release()

	loc := vfs.NewUnrootedLocation(NewNode(ctx, fs, linux.ModeNamedPipe|0600))
	defer loc.DecRef()
	if loc.MountContext().IsAttached() {
		t.Errorf("anonymous location is attached")
	}
	if got := loc.MountContext().Flags(); got != vfs.MountNoATime {
		t.Errorf("Flags() = %v, want %v", got, vfs.MountNoATime)
	}
	if _, err := loc.LookupChild(ctx, "x"); err != linuxerr.ENOTDIR {
		t.Errorf("LookupChild: got error %v, want ENOTDIR", err)
	}
	if n := fs.CachedEntries(); n != 0 {
		t.Errorf("CachedEntries = %d, want 0", n)
	}
}

func TestNewNodeRejectsDirectories(t *testing.T) {
	fs := NewFileSystem(&vfs.TestKernel{})
	defer fs.Release()
	defer func() {
		if recover() == nil {
			t.Errorf("NewNode with a directory mode did not panic")
		}
	}()
	NewNode(contexttest.Context(t), fs, linux.ModeDirectory|0755)
}

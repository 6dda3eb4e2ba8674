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

package remotefs

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/sentry/context"
	"github.com/misttech/mistos-vfs/pkg/sync"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Request kinds, used as the "op" label of storeRequestsTotal.
const (
	opLookup = "lookup"
	opMknod  = "mknod"
	opUnlink = "unlink"
	opRename = "rename"
)

var storeRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vfs",
		Subsystem: "remotefs",
		Name:      "store_requests_total",
		Help:      "Requests sent to remote stores, by operation and result.",
	},
	[]string{"op", "result"},
)

func init() {
	prometheus.MustRegister(storeRequestsTotal)
}

// rootIno is the inode number of every store's root directory.
const rootIno = 1

// object is a file in a Store.
type object struct {
	ino uint64

	// generation distinguishes successive objects that reuse a name.
	generation uint64

	mode linux.FileMode

	// children is non-nil for directories.
	children map[string]uint64
}

// attr is the part of an object that a lookup returns.
type attr struct {
	ino        uint64
	generation uint64
	mode       linux.FileMode
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// Limit is the maximum rate of requests made by filesystems. The zero
	// value means no limit.
	Limit rate.Limit

	// Burst is the maximum number of requests that may be made at once when
	// Limit is set.
	Burst int
}

// Store models a remote file server. Filesystems reach it through requests
// that may be rate limited and that fail while the store is offline; the
// exported methods change its contents directly, as another client of the
// server would, without notifying any filesystem.
type Store struct {
	limiter *rate.Limiter

	// handles is the number of nodes handed out to filesystems and not yet
	// released.
	handles atomic.Int64

	mu sync.Mutex

	// +checklocks:mu
	objects map[uint64]*object

	// +checklocks:mu
	lastIno uint64

	// +checklocks:mu
	lastGeneration uint64

	// offline, if not nil, is returned by every request.
	// +checklocks:mu
	offline error
}

// NewStore returns a Store holding an empty root directory.
func NewStore(opts StoreOptions) *Store {
	limit, burst := opts.Limit, opts.Burst
	if limit == 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	s := &Store{
		limiter: rate.NewLimiter(limit, burst),
		objects: make(map[uint64]*object),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newObjectLocked(linux.ModeDirectory | 0755)
	return s
}

// +checklocks:s.mu
func (s *Store) newObjectLocked(mode linux.FileMode) *object {
	s.lastIno++
	s.lastGeneration++
	o := &object{
		ino:        s.lastIno,
		generation: s.lastGeneration,
		mode:       mode,
	}
	if mode.IsDir() {
		o.children = make(map[string]uint64)
	}
	s.objects[o.ino] = o
	return o
}

// +checklocks:s.mu
func (s *Store) removeLocked(o *object) {
	delete(s.objects, o.ino)
	for _, ino := range o.children {
		if child, ok := s.objects[ino]; ok {
			s.removeLocked(child)
		}
	}
}

// walkLocked returns the directory containing the last component of path,
// and that component.
//
// +checklocks:s.mu
func (s *Store) walkLocked(path string) (*object, string, error) {
	components := strings.Split(strings.Trim(path, "/"), "/")
	dir := s.objects[rootIno]
	for _, name := range components[:len(components)-1] {
		ino, ok := dir.children[name]
		if !ok {
			return nil, "", linuxerr.ENOENT
		}
		dir = s.objects[ino]
		if !dir.mode.IsDir() {
			return nil, "", linuxerr.ENOTDIR
		}
	}
	name := components[len(components)-1]
	if name == "" {
		return nil, "", linuxerr.EINVAL
	}
	return dir, name, nil
}

// Create adds a new file of the given mode at path. Its parent directory
// must exist.
func (s *Store) Create(path string, mode linux.FileMode) error {
	if mode.FileType() == 0 {
		panic(fmt.Sprintf("remotefs.Store.Create(%q) called with no file type in mode %v", path, mode))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dir, name, err := s.walkLocked(path)
	if err != nil {
		return err
	}
	if _, ok := dir.children[name]; ok {
		return linuxerr.EEXIST
	}
	dir.children[name] = s.newObjectLocked(mode).ino
	return nil
}

// Remove deletes the file at path and, if it is a directory, everything
// below it.
func (s *Store) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir, name, err := s.walkLocked(path)
	if err != nil {
		return err
	}
	ino, ok := dir.children[name]
	if !ok {
		return linuxerr.ENOENT
	}
	delete(dir.children, name)
	s.removeLocked(s.objects[ino])
	return nil
}

// Replace removes the file at path and creates a new one of the same mode in
// its place.
func (s *Store) Replace(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir, name, err := s.walkLocked(path)
	if err != nil {
		return err
	}
	ino, ok := dir.children[name]
	if !ok {
		return linuxerr.ENOENT
	}
	old := s.objects[ino]
	s.removeLocked(old)
	dir.children[name] = s.newObjectLocked(old.mode).ino
	return nil
}

// SetOffline makes every subsequent request fail with err, or succeed again
// if err is nil.
func (s *Store) SetOffline(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = err
}

// Handles returns the number of nodes that filesystems hold.
func (s *Store) Handles() int64 {
	return s.handles.Load()
}

// begin waits for the request limiter and takes s.mu. On success the caller
// must call s.end.
func (s *Store) begin(ctx context.Context, op string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		storeRequestsTotal.WithLabelValues(op, "error").Inc()
		return err
	}
	s.mu.Lock()
	if err := s.offline; err != nil {
		s.mu.Unlock()
		storeRequestsTotal.WithLabelValues(op, "error").Inc()
		return err
	}
	return nil
}

func (s *Store) end(op string, err error) {
	s.mu.Unlock()
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeRequestsTotal.WithLabelValues(op, result).Inc()
}

// +checklocks:s.mu
func (s *Store) dirLocked(dirIno uint64) (*object, error) {
	dir, ok := s.objects[dirIno]
	if !ok {
		return nil, linuxerr.ESTALE
	}
	if !dir.mode.IsDir() {
		return nil, linuxerr.ENOTDIR
	}
	return dir, nil
}

func (s *Store) lookup(ctx context.Context, dirIno uint64, name string) (a attr, err error) {
	if err := s.begin(ctx, opLookup); err != nil {
		return attr{}, err
	}
	defer func() { s.end(opLookup, err) }()
	dir, err := s.dirLocked(dirIno)
	if err != nil {
		return attr{}, err
	}
	ino, ok := dir.children[name]
	if !ok {
		return attr{}, linuxerr.ENOENT
	}
	o := s.objects[ino]
	return attr{ino: o.ino, generation: o.generation, mode: o.mode}, nil
}

func (s *Store) mknod(ctx context.Context, dirIno uint64, name string, mode linux.FileMode) (a attr, err error) {
	if err := s.begin(ctx, opMknod); err != nil {
		return attr{}, err
	}
	defer func() { s.end(opMknod, err) }()
	dir, err := s.dirLocked(dirIno)
	if err != nil {
		return attr{}, err
	}
	if _, ok := dir.children[name]; ok {
		return attr{}, linuxerr.EEXIST
	}
	o := s.newObjectLocked(mode)
	dir.children[name] = o.ino
	return attr{ino: o.ino, generation: o.generation, mode: o.mode}, nil
}

func (s *Store) unlink(ctx context.Context, dirIno uint64, name string, ino uint64) (err error) {
	if err := s.begin(ctx, opUnlink); err != nil {
		return err
	}
	defer func() { s.end(opUnlink, err) }()
	dir, err := s.dirLocked(dirIno)
	if err != nil {
		return err
	}
	if dir.children[name] != ino {
		return linuxerr.ENOENT
	}
	o := s.objects[ino]
	if len(o.children) != 0 {
		return linuxerr.ENOTEMPTY
	}
	delete(dir.children, name)
	s.removeLocked(o)
	return nil
}

func (s *Store) rename(ctx context.Context, oldDirIno uint64, oldName string, newDirIno uint64, newName string, ino, replacedIno uint64) (err error) {
	if err := s.begin(ctx, opRename); err != nil {
		return err
	}
	defer func() { s.end(opRename, err) }()
	oldDir, err := s.dirLocked(oldDirIno)
	if err != nil {
		return err
	}
	newDir, err := s.dirLocked(newDirIno)
	if err != nil {
		return err
	}
	if oldDir.children[oldName] != ino {
		return linuxerr.ENOENT
	}
	cur, exists := newDir.children[newName]
	switch {
	case replacedIno == 0 && exists:
		return linuxerr.EEXIST
	case replacedIno != 0 && cur != replacedIno:
		return linuxerr.ENOENT
	}
	if exists {
		replaced := s.objects[cur]
		if len(replaced.children) != 0 {
			return linuxerr.ENOTEMPTY
		}
		s.removeLocked(replaced)
	}
	delete(oldDir.children, oldName)
	newDir.children[newName] = ino
	return nil
}

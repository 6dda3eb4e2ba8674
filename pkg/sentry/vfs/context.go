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
	"github.com/misttech/mistos-vfs/pkg/sentry/context"
)

// contextID is this package's type for context.Context.Value keys.
type contextID int

const (
	// CtxRoot is a Context.Value key for the root NamespaceLocation that
	// path resolution should not walk above.
	CtxRoot contextID = iota
)

// RootFromContext returns the root location used by ctx. It takes a
// reference on the returned location. If ctx does not have a specific root,
// RootFromContext returns a zero-value NamespaceLocation.
func RootFromContext(ctx context.Context) NamespaceLocation {
	if v := ctx.Value(CtxRoot); v != nil {
		return v.(NamespaceLocation)
	}
	return NamespaceLocation{}
}

type rootContext struct {
	context.Context
	root NamespaceLocation
}

// WithRoot returns a copy of ctx with the given root. ctx does not take a
// reference on root; the caller must keep one for as long as ctx is used.
func WithRoot(ctx context.Context, root NamespaceLocation) context.Context {
	return &rootContext{
		Context: ctx,
		root:    root,
	}
}

// Value implements Context.Value.
func (rc rootContext) Value(key any) any {
	switch key {
	case CtxRoot:
		rc.root.IncRef()
		return rc.root
	default:
		return rc.Context.Value(key)
	}
}

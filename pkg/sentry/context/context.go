// Copyright 2018 Google LLC
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

// Package context defines the Context type threaded through every filesystem
// operation.
package context

import (
	"context"

	"github.com/misttech/mistos-vfs/pkg/log"
)

// A Context represents a thread of execution performing filesystem work. It
// carries state associated with that thread, such as its credentials, across
// API boundaries, and provides a logger.
//
// The directory-entry cache never inspects a Context. It only forwards it to
// backing filesystems, which may extract values from it with the typed
// accessors in their own packages (for example auth.CredentialsFromContext).
//
// It is *not safe* to retain a Context passed to a function beyond the scope
// of that function call. Values extracted from the Context should be used
// instead.
type Context interface {
	context.Context
	log.Logger
}

type logContext struct {
	context.Context
	log.Logger
}

// bgContext is the context returned by context.Background.
var bgContext = &logContext{
	Context: context.Background(),
	Logger:  log.Log(),
}

// Background returns an empty context using the default logger.
//
// Using a Background context for tests is fine, as long as no values are
// needed from the context in the tested code paths.
func Background() Context {
	return bgContext
}

// WithValue returns a copy of parent in which the value associated with key is
// val.
func WithValue(parent Context, key, val any) Context {
	return &withValue{Context: parent, key: key, val: val}
}

type withValue struct {
	Context
	key, val any
}

// Value implements Context.Value.
func (ctx *withValue) Value(key any) any {
	if key == ctx.key {
		return ctx.val
	}
	return ctx.Context.Value(key)
}

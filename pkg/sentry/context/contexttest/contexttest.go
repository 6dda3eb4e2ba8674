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

// Package contexttest builds a test context.Context.
package contexttest

import (
	"testing"

	"github.com/misttech/mistos-vfs/pkg/log"
	"github.com/misttech/mistos-vfs/pkg/sentry/context"
	"github.com/misttech/mistos-vfs/pkg/sentry/kernel/auth"
)

// Context returns a Context that may be used in tests. It logs through tb so
// that output is attached to the failing test.
func Context(tb testing.TB) context.Context {
	return &testContext{
		Context: context.Background(),
		tb:      tb,
	}
}

type testContext struct {
	context.Context
	tb testing.TB
}

// Debugf implements log.Logger.Debugf.
func (t *testContext) Debugf(format string, v ...any) {
	t.tb.Helper()
	t.tb.Logf("D "+format, v...)
}

// Infof implements log.Logger.Infof.
func (t *testContext) Infof(format string, v ...any) {
	t.tb.Helper()
	t.tb.Logf("I "+format, v...)
}

// Warningf implements log.Logger.Warningf.
func (t *testContext) Warningf(format string, v ...any) {
	t.tb.Helper()
	t.tb.Logf("W "+format, v...)
}

// IsLogging implements log.Logger.IsLogging.
func (t *testContext) IsLogging(log.Level) bool {
	return true
}

// RootContext returns a Context that may be used in tests that need root
// credentials.
func RootContext(tb testing.TB) context.Context {
	return WithCreds(Context(tb), auth.NewRootCredentials())
}

// WithCreds returns a copy of ctx carrying creds.
func WithCreds(ctx context.Context, creds *auth.Credentials) context.Context {
	return auth.ContextWithCredentials(ctx, creds)
}

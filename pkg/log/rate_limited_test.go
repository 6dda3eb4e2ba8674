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

package log

import (
	"testing"
	"time"
)

type countingLogger struct {
	BasicLogger
	n int
}

func (c *countingLogger) Warningf(string, ...any) { c.n++ }

func TestRateLimitedLogger(t *testing.T) {
	c := &countingLogger{BasicLogger: BasicLogger{Level: Debug}}
	l := RateLimitedLogger(c, time.Hour)
	for i := 0; i < 10; i++ {
		l.Warningf("revalidation failed")
	}
	if c.n != 1 {
		t.Errorf("rate limited logger emitted %d lines, want 1", c.n)
	}
	if !l.IsLogging(Debug) {
		t.Errorf("IsLogging(Debug) = false, want true")
	}
}

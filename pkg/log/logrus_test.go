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
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestLogrusEmitterJSON(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogrusEmitter(&buf, FormatJSON)
	e.Emit(0, Warning, time.Unix(0, 0), "entry %q gone", "foo")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal(%q): %v", buf.String(), err)
	}
	if got["msg"] != `entry "foo" gone` {
		t.Errorf("msg = %v, want %q", got["msg"], `entry "foo" gone`)
	}
	if got["level"] != "warning" {
		t.Errorf("level = %v, want warning", got["level"])
	}
	if caller, _ := got["caller"].(string); !strings.HasPrefix(caller, "logrus_test.go:") {
		t.Errorf("caller = %v, want logrus_test.go:<line>", got["caller"])
	}
}

func TestLogrusEmitterText(t *testing.T) {
	var buf bytes.Buffer
	l := &BasicLogger{Level: Debug, Emitter: NewLogrusEmitter(&buf, FormatText)}
	l.Debugf("debug line")
	if out := buf.String(); !strings.Contains(out, "level=debug") || !strings.Contains(out, `msg="debug line"`) {
		t.Errorf("unexpected output %q", out)
	}
}

// Copyright 2018 The gVisor Authors.
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

package linux

import "testing"

func TestFileModeString(t *testing.T) {
	for _, tc := range []struct {
		mode FileMode
		want string
	}{
		{mode: ModeDirectory | 0755, want: "S_IFDIR|0o755"},
		{mode: ModeRegular | ModeSetUID | 0644, want: "S_IFREG|S_ISUID|0o644"},
		{mode: 0600, want: "0o600"},
	} {
		if got := tc.mode.String(); got != tc.want {
			t.Errorf("FileMode(%#o).String() = %q, want %q", uint(tc.mode), got, tc.want)
		}
	}
}

func TestFileModeIsDir(t *testing.T) {
	if !FileMode(ModeDirectory | 0700).IsDir() {
		t.Errorf("directory mode not reported as directory")
	}
	if FileMode(ModeRegular | ModeDirectory).IsDir() {
		t.Errorf("socket-like type bits reported as directory")
	}
}

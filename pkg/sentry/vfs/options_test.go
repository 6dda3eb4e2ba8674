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

package vfs

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
)

func TestParseMountData(t *testing.T) {
	for _, test := range []struct {
		data    string
		want    map[string]string
		wantErr error
	}{
		{data: "", want: map[string]string{}},
		{data: "mode=0755", want: map[string]string{"mode": "0755"}},
		{data: "ro,uid=1000,gid=1000", want: map[string]string{"ro": "", "uid": "1000", "gid": "1000"}},
		{data: "size=1=2", want: map[string]string{"size": "1=2"}},
		{data: "a,,b", wantErr: linuxerr.EINVAL},
		{data: "=x", wantErr: linuxerr.EINVAL},
		{data: "uid=1,uid=2", wantErr: linuxerr.EINVAL},
	} {
		t.Run(test.data, func(t *testing.T) {
			got, err := ParseMountData(test.data)
			if err != test.wantErr {
				t.Fatalf("ParseMountData(%q): got error %v, want %v", test.data, err, test.wantErr)
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("ParseMountData(%q) mismatch (-want +got):\n%s", test.data, diff)
			}
		})
	}
}

func TestParseModeOption(t *testing.T) {
	if got, err := ParseModeOption("1777"); err != nil || got != linux.ModeSticky|0777 {
		t.Errorf("ParseModeOption(1777) = %v, %v, want %v, nil", got, err, linux.FileMode(linux.ModeSticky|0777))
	}
	for _, bad := range []string{"", "999", "17777", "rwx"} {
		if _, err := ParseModeOption(bad); err != linuxerr.EINVAL {
			t.Errorf("ParseModeOption(%q): got error %v, want EINVAL", bad, err)
		}
	}
}

func TestParseIDOption(t *testing.T) {
	if got, err := ParseIDOption("65534"); err != nil || got != 65534 {
		t.Errorf("ParseIDOption(65534) = %d, %v, want 65534, nil", got, err)
	}
	for _, bad := range []string{"", "-1", "4294967296", "root"} {
		if _, err := ParseIDOption(bad); err != linuxerr.EINVAL {
			t.Errorf("ParseIDOption(%q): got error %v, want EINVAL", bad, err)
		}
	}
}

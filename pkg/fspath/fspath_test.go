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

package fspath

import (
	"testing"
)

func TestComponentChecks(t *testing.T) {
	for _, tc := range []struct {
		name     string
		reserved bool
		sep      bool
	}{
		{name: "", reserved: true},
		{name: ".", reserved: true},
		{name: "..", reserved: true},
		{name: "..."},
		{name: ".hidden"},
		{name: "a/b", sep: true},
		{name: "/", sep: true},
	} {
		if got := IsReservedComponent(tc.name); got != tc.reserved {
			t.Errorf("IsReservedComponent(%q) = %t, want %t", tc.name, got, tc.reserved)
		}
		if got := HasSeparator(tc.name); got != tc.sep {
			t.Errorf("HasSeparator(%q) = %t, want %t", tc.name, got, tc.sep)
		}
	}
}

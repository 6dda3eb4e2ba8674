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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/misttech/mistos-vfs/pkg/log"
)

func TestParse(t *testing.T) {
	for _, test := range []struct {
		name    string
		data    string
		want    Config
		wantErr string
	}{
		{
			name: "empty",
			data: "",
			want: Default(),
		},
		{
			name: "full",
			data: `
[log]
level = "debug"
format = "json"

[cache]
capacity = 64
`,
			want: Config{
				Log:   Log{Level: log.Debug, Format: log.FormatJSON},
				Cache: Cache{Capacity: 64},
			},
		},
		{
			name: "partial",
			data: "[cache]\ncapacity = 8\n",
			want: Config{
				Log:   Log{Level: log.Info, Format: log.FormatText},
				Cache: Cache{Capacity: 8},
			},
		},
		{
			name:    "bad level",
			data:    "[log]\nlevel = \"loud\"\n",
			wantErr: "unknown log level",
		},
		{
			name:    "bad format",
			data:    "[log]\nformat = \"xml\"\n",
			wantErr: "invalid log format",
		},
		{
			name:    "negative capacity",
			data:    "[cache]\ncapacity = -1\n",
			wantErr: "invalid cache capacity",
		},
		{
			name:    "unknown key",
			data:    "[cache]\nsize = 1\n",
			wantErr: "unknown keys: cache.size",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := Parse(test.data)
			if test.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), test.wantErr) {
					t.Fatalf("Parse: got error %v, want one containing %q", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("Parse mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.toml")
	if err := os.WriteFile(path, []byte("[log]\nlevel = \"warning\"\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Log.Level != log.Warning {
		t.Errorf("Log.Level = %v, want %v", got.Log.Level, log.Warning)
	}

	missing := filepath.Join(t.TempDir(), "missing.toml")
	if _, err := Load(missing); err == nil || !strings.Contains(err.Error(), missing) {
		t.Errorf("Load(%q): got error %v, want one naming the file", missing, err)
	}
}

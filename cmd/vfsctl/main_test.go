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

package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/subcommands"
	"github.com/misttech/mistos-vfs/pkg/log"
)

func setFlag(t *testing.T, p *string, value string) {
	t.Helper()
	old := *p
	*p = value
	t.Cleanup(func() { *p = old })
}

func TestRunReturnsStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "vfsctl.log")
	setFlag(t, logFile, path)
	t.Cleanup(func() {
		log.SetTarget(log.NewLogrusEmitter(io.Discard, log.FormatText))
	})

	// No subcommand is named on the test's command line.
	if got := run(context.Background()); got != subcommands.ExitUsageError {
		t.Errorf("run() = %v, want %v", got, subcommands.ExitUsageError)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "Kernel initialized") {
		t.Errorf("log file %q does not record the kernel initialization:\n%s", path, data)
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "vfsctl.toml")
	if err := os.WriteFile(conf, []byte("[cache]\ncapacity = -1\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	setFlag(t, configFile, conf)
	setFlag(t, logFile, filepath.Join(dir, "vfsctl.log"))

	if got := run(context.Background()); got != subcommands.ExitFailure {
		t.Errorf("run() = %v, want %v", got, subcommands.ExitFailure)
	}
	if _, err := os.Stat(filepath.Join(dir, "vfsctl.log")); !os.IsNotExist(err) {
		t.Errorf("log file opened despite the invalid config: %v", err)
	}
}

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

// Binary vfsctl builds filesystem trees through the directory-entry cache and
// prints the result.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"github.com/misttech/mistos-vfs/cmd/vfsctl/cmd"
	"github.com/misttech/mistos-vfs/pkg/log"
	"github.com/misttech/mistos-vfs/pkg/sentry/kernel"
	"github.com/misttech/mistos-vfs/pkg/sentry/kernel/config"
)

var (
	configFile = flag.String("config", "", "path to a TOML configuration file.")
	logFile    = flag.String("log", "", "file path where logs are written. Logs are discarded if empty.")
	debug      = flag.Bool("debug", false, "enable debug logging.")
)

func main() {
	// Help and flags commands are generated automatically.
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")

	subcommands.Register(new(cmd.Tmpfs), "")
	subcommands.Register(new(cmd.Remote), "")

	// All subcommands must be registered before flag parsing.
	flag.Parse()
	os.Exit(int(run(context.Background())))
}

// run initializes the kernel from the global flags and executes the
// subcommand named on the command line.
func run(ctx context.Context) subcommands.ExitStatus {
	conf := config.Default()
	if *configFile != "" {
		var err error
		conf, err = config.Load(*configFile)
		if err != nil {
			return errorf("%v", err)
		}
	}
	if *debug {
		conf.Log.Level = log.Debug
	}

	var logOutput io.Writer = io.Discard
	if *logFile != "" {
		f, err := log.OpenFile(*logFile)
		if err != nil {
			return errorf("%v", err)
		}
		defer f.Close()
		logOutput = f
	}

	k := &kernel.Kernel{}
	if err := k.Init(kernel.InitKernelArgs{Config: conf, LogOutput: logOutput}); err != nil {
		return errorf("error initializing kernel: %v", err)
	}
	log.Infof("Args: %v", os.Args)

	// Call the subcommand and pass in the kernel.
	status := subcommands.Execute(ctx, k)
	if status != subcommands.ExitSuccess {
		log.Warningf("Failure to execute command, err: %v", status)
	}
	return status
}

func errorf(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return subcommands.ExitFailure
}

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

// Package config loads the kernel configuration from a TOML file.
//
// A complete file looks like:
//
//	[log]
//	level = "debug"
//	format = "json"
//
//	[cache]
//	capacity = 64
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/misttech/mistos-vfs/pkg/log"
	"github.com/pkg/errors"
)

// Config is the kernel configuration.
type Config struct {
	// Log configures the global logger.
	Log Log `toml:"log"`

	// Cache configures directory entry caching.
	Cache Cache `toml:"cache"`
}

// Log is the [log] section of the configuration.
type Log struct {
	// Level is the most verbose level that is emitted.
	Level log.Level `toml:"level"`

	// Format is log.FormatText or log.FormatJSON.
	Format string `toml:"format"`
}

// Emitter returns an emitter that writes to w in the configured format.
func (l *Log) Emitter(w io.Writer) log.Emitter {
	return log.NewLogrusEmitter(w, l.Format)
}

// Cache is the [cache] section of the configuration.
type Cache struct {
	// Capacity is the number of unreferenced directory entries that each
	// LRU-cached filesystem retains. Zero selects the default.
	Capacity int `toml:"capacity"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log: Log{
			Level:  log.Info,
			Format: log.FormatText,
		},
	}
}

// Load reads the configuration file at path. Settings that the file omits
// keep their default values.
func Load(path string) (Config, error) {
	c := Default()
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return Config{}, errors.Wrapf(err, "decoding config file %q", path)
	}
	if err := checkUndecoded(md); err != nil {
		return Config{}, errors.Wrapf(err, "config file %q", path)
	}
	if err := c.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "config file %q", path)
	}
	return c, nil
}

// Parse is like Load, but reads the configuration from a string.
func Parse(data string) (Config, error) {
	c := Default()
	md, err := toml.Decode(data, &c)
	if err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}
	if err := checkUndecoded(md); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func checkUndecoded(md toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, 0, len(undecoded))
	for _, k := range undecoded {
		keys = append(keys, k.String())
	}
	return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
}

// Validate checks that c's values are in range.
func (c *Config) Validate() error {
	if c.Log.Level > log.Debug {
		return errors.Errorf("invalid log level %d", c.Log.Level)
	}
	switch c.Log.Format {
	case log.FormatText, log.FormatJSON:
	default:
		return errors.Errorf("invalid log format %q, must be %q or %q", c.Log.Format, log.FormatText, log.FormatJSON)
	}
	if c.Cache.Capacity < 0 {
		return errors.Errorf("invalid cache capacity %d", c.Cache.Capacity)
	}
	return nil
}

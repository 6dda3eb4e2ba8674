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
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Output formats understood by NewLogrusEmitter.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// LogrusEmitter emits log lines through a logrus.Logger. Level filtering is
// done by the BasicLogger in front of it, so the logrus logger itself is
// left at its most verbose level.
type LogrusEmitter struct {
	Logger *logrus.Logger
}

// NewLogrusEmitter returns an emitter writing to w in the given format, which
// must be FormatText or FormatJSON.
func NewLogrusEmitter(w io.Writer, format string) *LogrusEmitter {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.DebugLevel)
	switch format {
	case FormatJSON:
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			DisableColors:   true,
			FullTimestamp:   true,
			TimestampFormat: "0102 15:04:05.000000",
		})
	}
	return &LogrusEmitter{Logger: l}
}

// Emit implements Emitter.Emit.
func (e *LogrusEmitter) Emit(depth int, level Level, timestamp time.Time, format string, v ...any) {
	entry := e.Logger.WithTime(timestamp)
	if _, file, line, ok := runtime.Caller(depth + 1); ok {
		if slash := strings.LastIndexByte(file, byte('/')); slash >= 0 {
			file = file[slash+1:] // Trim any directory path from the file.
		}
		entry = entry.WithField("caller", fmt.Sprintf("%s:%d", file, line))
	}
	msg := fmt.Sprintf(format, v...)
	switch level {
	case Warning:
		entry.Warn(msg)
	case Info:
		entry.Info(msg)
	default:
		entry.Debug(msg)
	}
}

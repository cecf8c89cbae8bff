// Copyright 2021 The jackal Authors
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
	"io"
	"os"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const stanzaLoggingEnvVar = "CMUX_LOG_STANZAS"

// NewDefaultLogger creates a new go-kit logger with the configured level and format.
func NewDefaultLogger(lv, format string) kitlog.Logger {
	return NewLogger(os.Stderr, lv, format)
}

// NewLogger creates a go-kit logger writing to w.
func NewLogger(w io.Writer, lv, format string) kitlog.Logger {
	var logger kitlog.Logger

	sw := kitlog.NewSyncWriter(w)
	if format == JSONFormat {
		logger = kitlog.NewJSONLogger(sw)
	} else {
		logger = kitlog.NewLogfmtLogger(sw)
	}
	return kitlog.With(level.NewFilter(logger, levelOption(lv)), "ts", kitlog.DefaultTimestampUTC, "caller", kitlog.DefaultCaller)
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() kitlog.Logger {
	return kitlog.NewNopLogger()
}

// StanzaLoggingEnabled tells whether raw stanzas should be logged at debug level.
func StanzaLoggingEnabled() bool {
	return os.Getenv(stanzaLoggingEnvVar) == "on"
}

func levelOption(lv string) level.Option {
	switch lv {
	case DebugLevel:
		return level.AllowDebug()
	case InfoLevel:
		return level.AllowInfo()
	case WarningLevel:
		return level.AllowWarn()
	case ErrorLevel:
		return level.AllowError()
	case OffLevel:
		return level.AllowNone()
	default:
		return level.AllowAll()
	}
}

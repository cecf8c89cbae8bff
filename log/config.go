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
	"fmt"
	"strings"
)

// Supported log levels.
const (
	DebugLevel   = "debug"
	InfoLevel    = "info"
	WarningLevel = "warn"
	ErrorLevel   = "error"
	OffLevel     = "off"
)

// Supported output formats.
const (
	LogfmtFormat = "logfmt"
	JSONFormat   = "json"
)

// Config represents a logger configuration.
type Config struct {
	Level  string
	Format string
}

type configProxyType struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// UnmarshalYAML satisfies Unmarshaler interface.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	p := configProxyType{}
	if err := unmarshal(&p); err != nil {
		return err
	}
	switch lv := strings.ToLower(p.Level); lv {
	case "":
		c.Level = InfoLevel
	case "warning":
		c.Level = WarningLevel
	case DebugLevel, InfoLevel, WarningLevel, ErrorLevel, OffLevel:
		c.Level = lv
	default:
		return fmt.Errorf("log.Config: unrecognized log level: %s", p.Level)
	}
	switch f := strings.ToLower(p.Format); f {
	case "":
		c.Format = LogfmtFormat
	case LogfmtFormat, JSONFormat:
		c.Format = f
	default:
		return fmt.Errorf("log.Config: unrecognized log format: %s", p.Format)
	}
	return nil
}

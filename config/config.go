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

package config

import (
	"bytes"
	"fmt"
	"io/ioutil"

	"github.com/jackal-xmpp/cmux/auth"
	"github.com/jackal-xmpp/cmux/c2s"
	"github.com/jackal-xmpp/cmux/host"
	"github.com/jackal-xmpp/cmux/log"
	"github.com/jackal-xmpp/cmux/multiplexer"
	"github.com/jackal-xmpp/cmux/offline"
	"github.com/jackal-xmpp/cmux/storage"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// DebugConfig represents debug HTTP server configuration.
type DebugConfig struct {
	Port int `yaml:"port"`
}

// RunQueueConfig represents the shared run queue pool configuration.
type RunQueueConfig struct {
	Workers int `yaml:"workers"`
}

// Config represents a global configuration.
type Config struct {
	PIDFile     string             `yaml:"pid_path"`
	Debug       DebugConfig        `yaml:"debug"`
	Logger      log.Config         `yaml:"logger"`
	Hosts       host.Configs       `yaml:"hosts"`
	RunQueue    RunQueueConfig     `yaml:"runqueue"`
	Storage     storage.Config     `yaml:"storage"`
	Offline     offline.Config     `yaml:"offline"`
	Users       []auth.UserConfig  `yaml:"users"`
	C2S         c2s.Config         `yaml:"c2s"`
	Multiplexer multiplexer.Config `yaml:"multiplexer"`
}

// Default returns a configuration with every section defaulted.
func Default() Config {
	return Config{
		Logger:      log.Config{Level: log.InfoLevel, Format: log.LogfmtFormat},
		Offline:     offline.Config{QueueSize: offline.DefaultQueueSize},
		C2S:         c2s.DefaultConfig(),
		Multiplexer: multiplexer.DefaultConfig(),
	}
}

// FromFile loads global configuration from a specified file.
func FromFile(configFile string) (*Config, error) {
	b, err := ioutil.ReadFile(configFile)
	if err != nil {
		return nil, errors.Wrapf(err, "config: failed to read %s", configFile)
	}
	return FromBuffer(bytes.NewBuffer(b))
}

// FromBuffer loads global configuration from a specified byte buffer.
// Sections missing from the document keep their default values.
func FromBuffer(buf *bytes.Buffer) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(buf.Bytes(), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Debug.Port < 0 || cfg.Debug.Port > 65535 {
		return fmt.Errorf("config.Config: invalid debug port: %d", cfg.Debug.Port)
	}
	if cfg.RunQueue.Workers < 0 {
		return fmt.Errorf("config.Config: negative runqueue workers")
	}
	if cfg.Offline.QueueSize < 0 {
		return fmt.Errorf("config.Config: negative offline queue size")
	}
	if len(cfg.C2S.ListenAddr) == 0 && len(cfg.Multiplexer.ListenAddr) == 0 {
		return fmt.Errorf("config.Config: at least one of c2s or multiplexer listen_addr is required")
	}
	return nil
}

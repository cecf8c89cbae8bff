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

package multiplexer

import (
	"fmt"
	"time"
)

const (
	defaultHeartbeatInterval = time.Second * 30
	defaultIdleTimeout       = time.Minute * 2
)

// AccessConfig lists the client addresses connection managers may open sessions for.
// Entries are either single IP addresses or CIDR blocks.
type AccessConfig struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// Config represents connection manager listener configuration.
type Config struct {
	ListenAddr        string
	Secret            string
	IdleTimeout       time.Duration
	HeartbeatInterval time.Duration
	MaxStanzaSize     int
	Access            AccessConfig
}

type configProxy struct {
	ListenAddr        string        `yaml:"listen_addr"`
	Secret            string        `yaml:"secret"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	MaxStanzaSize     int           `yaml:"max_stanza_size"`
	Access            AccessConfig  `yaml:"access"`
}

// UnmarshalYAML satisfies Unmarshaler interface.
func (cfg *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	p := configProxy{}
	if err := unmarshal(&p); err != nil {
		return err
	}
	if len(p.ListenAddr) > 0 && len(p.Secret) == 0 {
		return fmt.Errorf("multiplexer.Config: secret required")
	}
	if p.HeartbeatInterval < 0 || p.IdleTimeout < 0 || p.MaxStanzaSize < 0 {
		return fmt.Errorf("multiplexer.Config: negative values are not allowed")
	}
	if _, err := NewAccessChecker(p.Access); err != nil {
		return fmt.Errorf("multiplexer.Config: %v", err)
	}
	cfg.ListenAddr = p.ListenAddr
	cfg.Secret = p.Secret
	cfg.IdleTimeout = p.IdleTimeout
	cfg.HeartbeatInterval = p.HeartbeatInterval
	cfg.MaxStanzaSize = p.MaxStanzaSize
	cfg.Access = p.Access
	cfg.applyDefaults()
	return nil
}

// DefaultConfig returns a connection manager listener configuration with every default applied.
func DefaultConfig() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
}

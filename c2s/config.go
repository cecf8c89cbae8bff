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

package c2s

import (
	"fmt"
	"time"

	"github.com/jackal-xmpp/cmux/transport/compress"
)

const (
	defaultIdleTimeout      = time.Minute * 2
	defaultMaxStanzaSize    = 32768
	defaultKickThreshold    = -1
	defaultSyncWriteTimeout = time.Second * 5
)

// ReadRateConfig bounds the number of bytes per second read from a client connection.
type ReadRateConfig struct {
	Limit int `yaml:"limit"`
	Burst int `yaml:"burst"`
}

// CompressConfig represents a client stream compression configuration.
type CompressConfig struct {
	Level compress.Level
}

type compressionProxyType struct {
	Level string `yaml:"level"`
}

// UnmarshalYAML satisfies Unmarshaler interface.
func (c *CompressConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	p := compressionProxyType{}
	if err := unmarshal(&p); err != nil {
		return err
	}
	lv, err := compress.ParseLevel(p.Level)
	if err != nil {
		return fmt.Errorf("c2s.CompressConfig: unrecognized compression level: %s", p.Level)
	}
	c.Level = lv
	return nil
}

// ResourceConflictConfig defines how resource binding conflicts are resolved.
type ResourceConflictConfig struct {
	// KickThreshold is the number of conflicting bind attempts after which the session
	// holding the resource gets closed. A negative value never closes it, and a zero
	// value closes it on the first conflict.
	KickThreshold int
}

type resourceConflictProxy struct {
	KickThreshold *int `yaml:"kick_threshold"`
}

// UnmarshalYAML satisfies Unmarshaler interface.
func (c *ResourceConflictConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	p := resourceConflictProxy{}
	if err := unmarshal(&p); err != nil {
		return err
	}
	c.KickThreshold = defaultKickThreshold
	if p.KickThreshold != nil {
		c.KickThreshold = *p.KickThreshold
	}
	return nil
}

// Config represents client listener configuration.
type Config struct {
	ListenAddr       string
	IdleTimeout      time.Duration
	MaxStanzaSize    int
	SyncWriteTimeout time.Duration
	ReadRate         ReadRateConfig
	Compression      CompressConfig
	ResourceConflict ResourceConflictConfig
}

type configProxy struct {
	ListenAddr       string                  `yaml:"listen_addr"`
	IdleTimeout      time.Duration           `yaml:"idle_timeout"`
	MaxStanzaSize    int                     `yaml:"max_stanza_size"`
	SyncWriteTimeout time.Duration           `yaml:"sync_write_timeout"`
	ReadRate         ReadRateConfig          `yaml:"read_rate"`
	Compression      CompressConfig          `yaml:"compression"`
	ResourceConflict *ResourceConflictConfig `yaml:"resource_conflict"`
}

// UnmarshalYAML satisfies Unmarshaler interface.
func (cfg *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	p := configProxy{}
	if err := unmarshal(&p); err != nil {
		return err
	}
	if p.IdleTimeout < 0 || p.MaxStanzaSize < 0 || p.SyncWriteTimeout < 0 {
		return fmt.Errorf("c2s.Config: negative values are not allowed")
	}
	if p.ReadRate.Limit < 0 || p.ReadRate.Burst < 0 {
		return fmt.Errorf("c2s.Config: invalid read_rate")
	}
	cfg.ListenAddr = p.ListenAddr
	cfg.IdleTimeout = p.IdleTimeout
	cfg.MaxStanzaSize = p.MaxStanzaSize
	cfg.SyncWriteTimeout = p.SyncWriteTimeout
	cfg.ReadRate = p.ReadRate
	cfg.Compression = p.Compression
	cfg.ResourceConflict = ResourceConflictConfig{KickThreshold: defaultKickThreshold}
	if p.ResourceConflict != nil {
		cfg.ResourceConflict = *p.ResourceConflict
	}
	cfg.applyDefaults()
	return nil
}

// DefaultConfig returns a client listener configuration with every default applied.
func DefaultConfig() Config {
	cfg := Config{ResourceConflict: ResourceConflictConfig{KickThreshold: defaultKickThreshold}}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.MaxStanzaSize == 0 {
		cfg.MaxStanzaSize = defaultMaxStanzaSize
	}
	if cfg.SyncWriteTimeout == 0 {
		cfg.SyncWriteTimeout = defaultSyncWriteTimeout
	}
	if cfg.ReadRate.Limit > 0 && cfg.ReadRate.Burst == 0 {
		cfg.ReadRate.Burst = cfg.ReadRate.Limit
	}
}

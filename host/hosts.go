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

// Package host keeps the set of domains served locally.
package host

import (
	"crypto/tls"
	"fmt"
	"sort"
	"sync"
)

const defaultDomain = "localhost"

// TLSConfig contains a host certificate location.
type TLSConfig struct {
	CertFile       string `yaml:"cert_file"`
	PrivateKeyFile string `yaml:"privkey_file"`
}

// Config contains host configuration parameters.
type Config struct {
	Domain string
	TLS    TLSConfig
}

type configProxy struct {
	Domain string    `yaml:"domain"`
	TLS    TLSConfig `yaml:"tls"`
}

// UnmarshalYAML satisfies Unmarshaler interface.
// A host may be given either as a plain domain string or as a mapping.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var domain string
	if err := unmarshal(&domain); err == nil {
		c.Domain = domain
		return nil
	}
	p := configProxy{}
	if err := unmarshal(&p); err != nil {
		return err
	}
	if len(p.Domain) == 0 {
		return fmt.Errorf("host.Config: domain is required")
	}
	if (len(p.TLS.CertFile) == 0) != (len(p.TLS.PrivateKeyFile) == 0) {
		return fmt.Errorf("host.Config: both tls.cert_file and tls.privkey_file must be set for domain '%s'", p.Domain)
	}
	c.Domain = p.Domain
	c.TLS = p.TLS
	return nil
}

// Configs contains a set of host configurations.
type Configs []Config

// Hosts type represents all local domains set.
type Hosts struct {
	mu          sync.RWMutex
	defaultHost string
	hosts       map[string]*tls.Certificate
}

// NewHosts creates and initializes a Hosts instance.
// The first configured domain becomes the default one. With no configuration
// 'localhost' is served using an in-memory self signed certificate.
func NewHosts(cfg Configs) (*Hosts, error) {
	hs := &Hosts{
		hosts: make(map[string]*tls.Certificate),
	}
	if len(cfg) == 0 {
		cer, err := SelfSignedCertificate(defaultDomain)
		if err != nil {
			return nil, err
		}
		hs.RegisterDefaultHost(defaultDomain, &cer)
		return hs, nil
	}
	for i, config := range cfg {
		var cer *tls.Certificate
		if len(config.TLS.CertFile) > 0 {
			c, err := tls.LoadX509KeyPair(config.TLS.CertFile, config.TLS.PrivateKeyFile)
			if err != nil {
				return nil, err
			}
			cer = &c
		}
		if i == 0 {
			hs.RegisterDefaultHost(config.Domain, cer)
		} else {
			hs.RegisterHost(config.Domain, cer)
		}
	}
	return hs, nil
}

// RegisterDefaultHost registers default host value along with its certificate.
func (hs *Hosts) RegisterDefaultHost(h string, cer *tls.Certificate) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.defaultHost = h
	hs.hosts[h] = cer
}

// RegisterHost registers a host value along with its certificate.
// A nil certificate leaves the host without TLS support.
func (hs *Hosts) RegisterHost(h string, cer *tls.Certificate) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.hosts[h] = cer
}

// DefaultHostName returns default host name value.
func (hs *Hosts) DefaultHostName() string {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return hs.defaultHost
}

// IsLocalHost tells whether or not d value corresponds to local host.
func (hs *Hosts) IsLocalHost(h string) bool {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	_, ok := hs.hosts[h]
	return ok
}

// HostNames returns the list of all registered local hosts.
func (hs *Hosts) HostNames() []string {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	var ret []string
	for n := range hs.hosts {
		ret = append(ret, n)
	}
	sort.Strings(ret)
	return ret
}

// TLSConfig returns a server TLS configuration holding every registered certificate,
// or nil if no host has one.
func (hs *Hosts) TLSConfig() *tls.Config {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	var certs []tls.Certificate
	for _, n := range sortedKeys(hs.hosts) {
		if cer := hs.hosts[n]; cer != nil {
			certs = append(certs, *cer)
		}
	}
	if len(certs) == 0 {
		return nil
	}
	return &tls.Config{
		Certificates: certs,
		MinVersion:   tls.VersionTLS12,
	}
}

func sortedKeys(m map[string]*tls.Certificate) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

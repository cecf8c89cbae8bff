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
	"net"
	"strings"

	"github.com/pkg/errors"
)

// AccessChecker validates the client addresses reported by connection managers.
// Denied ranges take precedence, and an empty allow list admits any address not denied.
type AccessChecker struct {
	allow []*net.IPNet
	deny  []*net.IPNet
}

// NewAccessChecker returns an access checker built from cfg.
func NewAccessChecker(cfg AccessConfig) (*AccessChecker, error) {
	allow, err := parseNets(cfg.Allow)
	if err != nil {
		return nil, err
	}
	deny, err := parseNets(cfg.Deny)
	if err != nil {
		return nil, err
	}
	return &AccessChecker{allow: allow, deny: deny}, nil
}

// IsAllowed tells whether address may be hosted.
// address can be either a bare IP or a host:port pair.
func (c *AccessChecker) IsAllowed(address string) bool {
	if host, _, err := net.SplitHostPort(address); err == nil {
		address = host
	}
	ip := net.ParseIP(address)
	if ip == nil {
		return false
	}
	for _, n := range c.deny {
		if n.Contains(ip) {
			return false
		}
	}
	if len(c.allow) == 0 {
		return true
	}
	for _, n := range c.allow {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func parseNets(entries []string) ([]*net.IPNet, error) {
	var ret []*net.IPNet
	for _, e := range entries {
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				return nil, errors.Errorf("invalid address: %s", e)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			ret = append(ret, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(e)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid network: %s", e)
		}
		ret = append(ret, n)
	}
	return ret, nil
}

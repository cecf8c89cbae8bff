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

package jid

import (
	"bytes"
	"net"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/net/idna"
	"golang.org/x/text/secure/precis"
)

const maxPartLength = 1023

// ErrMalformed is returned whenever a JID cannot be normalized.
var ErrMalformed = errors.New("jid: malformed address")

// JID represents an XMPP address (JID).
// A JID is made up of a node (generally a username), a domain, and a resource.
// The node and resource are optional; domain is required.
type JID struct {
	node     string
	domain   string
	resource string
	str      string
}

// New constructs a normalized JID given a node, domain and resource.
func New(node, domain, resource string) (*JID, error) {
	n, d, r, err := stringPrep(node, domain, resource)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "%v", err)
	}
	return build(n, d, r), nil
}

// NewWithString parses and normalizes a JID from its string representation.
func NewWithString(str string) (*JID, error) {
	node, domain, resource, err := split(str)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "%s: %v", str, err)
	}
	return New(node, domain, resource)
}

// MustParse is like NewWithString but panics on error.
func MustParse(str string) *JID {
	j, err := NewWithString(str)
	if err != nil {
		panic(err)
	}
	return j
}

// Node returns the node, or empty string if this JID does not contain node information.
func (j *JID) Node() string { return j.node }

// Domain returns the domain.
func (j *JID) Domain() string { return j.domain }

// Resource returns the resource, or empty string if this JID does not contain resource information.
func (j *JID) Resource() string { return j.resource }

// ToBareJID returns the JID with resource information removed.
func (j *JID) ToBareJID() *JID {
	if len(j.resource) == 0 {
		return j
	}
	return build(j.node, j.domain, "")
}

// WithResource returns a copy of the JID carrying the given (already normalized) resource.
func (j *JID) WithResource(resource string) *JID {
	return build(j.node, j.domain, resource)
}

// IsServer returns true if instance is a server JID.
func (j *JID) IsServer() bool {
	return len(j.node) == 0
}

// IsBare returns true if instance is a bare JID.
func (j *JID) IsBare() bool {
	return len(j.node) > 0 && len(j.resource) == 0
}

// IsFull returns true if instance is a full JID.
func (j *JID) IsFull() bool {
	return len(j.resource) > 0
}

// IsFullWithUser returns true if instance is a full client JID.
func (j *JID) IsFullWithUser() bool {
	return len(j.node) > 0 && len(j.resource) > 0
}

// Equal tells whether two JIDs are the same address.
func (j *JID) Equal(other *JID) bool {
	if j == nil || other == nil {
		return j == other
	}
	return j.str == other.str
}

// BareEqual tells whether two JIDs share node and domain.
func (j *JID) BareEqual(other *JID) bool {
	if j == nil || other == nil {
		return j == other
	}
	return j.node == other.node && j.domain == other.domain
}

// String returns a string representation of the JID.
func (j *JID) String() string {
	if j == nil {
		return ""
	}
	return j.str
}

func build(node, domain, resource string) *JID {
	var sb strings.Builder
	if len(node) > 0 {
		sb.WriteString(node)
		sb.WriteByte('@')
	}
	sb.WriteString(domain)
	if len(resource) > 0 {
		sb.WriteByte('/')
		sb.WriteString(resource)
	}
	return &JID{node: node, domain: domain, resource: resource, str: sb.String()}
}

func split(str string) (node, domain, resource string, err error) {
	if len(str) == 0 {
		return "", "", "", errors.New("empty address")
	}
	// the resource may legitimately contain '@' and '/'
	rest := str
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		resource = rest[i+1:]
		rest = rest[:i]
		if len(resource) == 0 {
			return "", "", "", errors.New("resource must not be empty")
		}
	}
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		node = rest[:i]
		rest = rest[i+1:]
		if len(node) == 0 {
			return "", "", "", errors.New("node must not be empty")
		}
	}
	domain = rest
	return node, domain, resource, nil
}

func stringPrep(node, domain, resource string) (string, string, string, error) {
	if !utf8.ValidString(node) || !utf8.ValidString(resource) {
		return "", "", "", errors.New("invalid UTF-8")
	}
	// RFC 7622 §3.2.1: A-labels must be converted to U-labels
	domain, err := idna.ToUnicode(strings.TrimSuffix(domain, "."))
	if err != nil {
		return "", "", "", err
	}
	if !utf8.ValidString(domain) {
		return "", "", "", errors.New("domain contains invalid UTF-8")
	}
	domain = strings.ToLower(domain)

	if len(node) > 0 {
		nb, err := precis.UsernameCaseMapped.Bytes([]byte(node))
		if err != nil {
			return "", "", "", err
		}
		node = string(nb)
	}
	if len(resource) > 0 {
		rb, err := precis.OpaqueString.Bytes([]byte(resource))
		if err != nil {
			return "", "", "", err
		}
		resource = string(rb)
	}
	if err := checkParts(node, domain, resource); err != nil {
		return "", "", "", err
	}
	return node, domain, resource, nil
}

func checkParts(node, domain, resource string) error {
	if len(node) > maxPartLength {
		return errors.New("node must be smaller than 1024 bytes")
	}
	// RFC 7622 §3.3.1 characters still forbidden in the localpart
	if bytes.ContainsAny([]byte(node), `"&'/:<>@`) {
		return errors.New("node contains forbidden characters")
	}
	if len(resource) > maxPartLength {
		return errors.New("resource must be smaller than 1024 bytes")
	}
	if l := len(domain); l < 1 || l > maxPartLength {
		return errors.New("domain must be between 1 and 1023 bytes")
	}
	if l := len(domain); l > 2 && strings.HasPrefix(domain, "[") && strings.HasSuffix(domain, "]") {
		if ip := net.ParseIP(domain[1 : l-1]); ip == nil || ip.To4() != nil {
			return errors.New("domain is not a valid IPv6 address")
		}
	}
	return nil
}

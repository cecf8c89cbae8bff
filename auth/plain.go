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

package auth

import (
	"bytes"
	"encoding/base64"

	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/pkg/errors"
)

// PasswordVerifier checks user credentials.
type PasswordVerifier interface {
	VerifyPassword(username, password string) (bool, error)
}

// Plain implements the SASL PLAIN mechanism (RFC 4616).
type Plain struct {
	verifier      PasswordVerifier
	username      string
	authenticated bool
}

// NewPlain returns a new plain authenticator instance.
func NewPlain(verifier PasswordVerifier) *Plain {
	return &Plain{verifier: verifier}
}

// Mechanism satisfies Authenticator interface.
func (p *Plain) Mechanism() string {
	return "PLAIN"
}

// Username satisfies Authenticator interface.
func (p *Plain) Username() string {
	return p.username
}

// Authenticated satisfies Authenticator interface.
func (p *Plain) Authenticated() bool {
	return p.authenticated
}

// ProcessElement satisfies Authenticator interface.
func (p *Plain) ProcessElement(elem *xmpp.Element) error {
	if p.authenticated {
		return nil
	}
	if len(elem.Text()) == 0 {
		return ErrSASLMalformedRequest
	}
	b, err := base64.StdEncoding.DecodeString(elem.Text())
	if err != nil {
		return ErrSASLIncorrectEncoding
	}
	s := bytes.Split(b, []byte{0})
	if len(s) != 3 {
		return ErrSASLIncorrectEncoding
	}
	authzid := string(s[0])
	username := string(s[1])
	password := string(s[2])

	if len(authzid) > 0 && authzid != username {
		return ErrSASLInvalidAuthzid
	}
	ok, err := p.verifier.VerifyPassword(username, password)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return ErrSASLNotAuthorized
	case err != nil:
		return err
	case !ok:
		return ErrSASLNotAuthorized
	}
	p.username = username
	p.authenticated = true
	return nil
}

// Reset satisfies Authenticator interface.
func (p *Plain) Reset() {
	p.username = ""
	p.authenticated = false
}

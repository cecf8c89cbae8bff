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

// Package auth implements client SASL authentication.
package auth

import (
	"github.com/jackal-xmpp/cmux/xmpp"
)

// Authenticator defines a generic authenticator state machine.
type Authenticator interface {
	// Mechanism returns authenticator mechanism name.
	Mechanism() string

	// Username returns authenticated username in case
	// authentication process has been completed.
	Username() string

	// Authenticated returns whether or not user has been authenticated.
	Authenticated() bool

	// ProcessElement process an incoming authenticator element.
	ProcessElement(elem *xmpp.Element) error

	// Reset resets authenticator internal state.
	Reset()
}

// SASLError represents specific SASL error type.
type SASLError struct {
	reason string
}

func newSASLError(reason string) *SASLError {
	return &SASLError{reason}
}

// Element returns sasl error XML representation.
func (se *SASLError) Element() *xmpp.Element {
	failure := xmpp.NewElementNamespace("failure", xmpp.SASLNamespace)
	failure.AppendElement(xmpp.NewElementName(se.reason))
	return failure
}

// Error satisfies error interface.
func (se *SASLError) Error() string {
	return se.reason
}

var (
	// ErrSASLIncorrectEncoding represents a 'incorrect-encoding' authentication error.
	ErrSASLIncorrectEncoding = newSASLError("incorrect-encoding")

	// ErrSASLInvalidAuthzid represents a 'invalid-authzid' authentication error.
	ErrSASLInvalidAuthzid = newSASLError("invalid-authzid")

	// ErrSASLInvalidMechanism represents a 'invalid-mechanism' authentication error.
	ErrSASLInvalidMechanism = newSASLError("invalid-mechanism")

	// ErrSASLMalformedRequest represents a 'malformed-request' authentication error.
	ErrSASLMalformedRequest = newSASLError("malformed-request")

	// ErrSASLNotAuthorized represents a 'not-authorized' authentication error.
	ErrSASLNotAuthorized = newSASLError("not-authorized")

	// ErrSASLTemporaryAuthFailure represents a 'temporary-auth-failure' authentication error.
	ErrSASLTemporaryAuthFailure = newSASLError("temporary-auth-failure")
)

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

package xmpp

import (
	"strconv"
)

// StanzaError represents a stanza "error" element.
type StanzaError struct {
	code      int
	errorType string
	reason    string
}

func newStanzaError(code int, errorType string, reason string) *StanzaError {
	return &StanzaError{
		code:      code,
		errorType: errorType,
		reason:    reason,
	}
}

// Error satisfies error interface.
func (se *StanzaError) Error() string {
	return se.reason
}

// Reason returns the defined condition name.
func (se *StanzaError) Reason() string {
	return se.reason
}

// Element returns StanzaError equivalent XML element.
func (se *StanzaError) Element() *Element {
	err := NewElementName("error")
	err.SetAttribute("code", strconv.Itoa(se.code))
	err.SetAttribute("type", se.errorType)
	err.AppendElement(NewElementNamespace(se.reason, StanzasNamespace))
	return err
}

const (
	authErrorType   = "auth"
	cancelErrorType = "cancel"
	modifyErrorType = "modify"
	waitErrorType   = "wait"
)

var (
	// ErrBadRequest is returned by the stream when the sender
	// has sent XML that is malformed or that cannot be processed.
	ErrBadRequest = newStanzaError(400, modifyErrorType, "bad-request")

	// ErrConflict is returned by the stream when access cannot be
	// granted because an existing resource or session exists with
	// the same name or address.
	ErrConflict = newStanzaError(409, cancelErrorType, "conflict")

	// ErrFeatureNotImplemented is returned by the stream when the feature
	// requested is not implemented by the server and therefore cannot be processed.
	ErrFeatureNotImplemented = newStanzaError(501, cancelErrorType, "feature-not-implemented")

	// ErrForbidden is returned by the stream when the requesting
	// entity does not possess the required permissions to perform the action.
	ErrForbidden = newStanzaError(403, authErrorType, "forbidden")

	// ErrInternalServerError is returned by the stream when the server
	// could not process the stanza because of a misconfiguration
	// or an otherwise-undefined internal server error.
	ErrInternalServerError = newStanzaError(500, waitErrorType, "internal-server-error")

	// ErrItemNotFound is returned by the stream when the addressed
	// JID or item requested cannot be found.
	ErrItemNotFound = newStanzaError(404, cancelErrorType, "item-not-found")

	// ErrJidMalformed is returned by the stream when the sending entity
	// has provided or communicated an XMPP address or aspect thereof that
	// does not adhere to the syntax defined in https://xmpp.org/rfcs/rfc3920.html#addressing.
	ErrJidMalformed = newStanzaError(400, modifyErrorType, "jid-malformed")

	// ErrNotAllowed is returned by the stream when the recipient
	// or server does not allow any entity to perform the action.
	ErrNotAllowed = newStanzaError(405, cancelErrorType, "not-allowed")

	// ErrNotAuthorized is returned by the stream when the sender
	// must provide proper credentials before being allowed to perform the action,
	// or has provided improper credentials.
	ErrNotAuthorized = newStanzaError(401, authErrorType, "not-authorized")

	// ErrRecipientUnavailable is returned by the stream when the intended
	// recipient is temporarily unavailable.
	ErrRecipientUnavailable = newStanzaError(404, waitErrorType, "recipient-unavailable")

	// ErrRemoteServerNotFound is returned by the stream when a
	// remote server is not reachable from the local one.
	ErrRemoteServerNotFound = newStanzaError(404, cancelErrorType, "remote-server-not-found")

	// ErrResourceConstraint is returned by the stream when the server or recipient
	// lacks the system resources necessary to service the request.
	ErrResourceConstraint = newStanzaError(500, waitErrorType, "resource-constraint")

	// ErrServiceUnavailable is returned by the stream when the server
	// or recipient does not currently provide the requested service.
	ErrServiceUnavailable = newStanzaError(503, cancelErrorType, "service-unavailable")

	// ErrUndefinedCondition is returned by the stream when the error condition
	// is not one of those defined by the other conditions in this list.
	ErrUndefinedCondition = newStanzaError(500, waitErrorType, "undefined-condition")
)

// IDRequiredError returns the application condition signaling a connection manager request lacking a stream id.
func IDRequiredError() *Element {
	return NewElementNamespace("id-required", MultiplexerErrorsNamespace)
}

// UnknownStanzaError returns the application condition signaling a wrapped stanza the server cannot handle.
func UnknownStanzaError() *Element {
	return NewElementNamespace("unknown-stanza", MultiplexerErrorsNamespace)
}

// BadRequestError returns an error copy of the element
// attaching 'bad-request' error sub element.
func BadRequestError(stanza Stanza, appErrors ...*Element) Stanza {
	return NewErrorStanzaFromStanza(stanza, ErrBadRequest, appErrors...)
}

// ConflictError returns an error copy of the element
// attaching 'conflict' error sub element.
func ConflictError(stanza Stanza) Stanza {
	return NewErrorStanzaFromStanza(stanza, ErrConflict)
}

// InternalServerError returns an error copy of the element
// attaching 'internal-server-error' error sub element.
func InternalServerError(stanza Stanza) Stanza {
	return NewErrorStanzaFromStanza(stanza, ErrInternalServerError)
}

// ItemNotFoundError returns an error copy of the element
// attaching 'item-not-found' error sub element.
func ItemNotFoundError(stanza Stanza) Stanza {
	return NewErrorStanzaFromStanza(stanza, ErrItemNotFound)
}

// JidMalformedError returns an error copy of the element
// attaching 'jid-malformed' error sub element.
func JidMalformedError(stanza Stanza) Stanza {
	return NewErrorStanzaFromStanza(stanza, ErrJidMalformed)
}

// NotAllowedError returns an error copy of the element
// attaching 'not-allowed' error sub element.
func NotAllowedError(stanza Stanza) Stanza {
	return NewErrorStanzaFromStanza(stanza, ErrNotAllowed)
}

// NotAuthorizedError returns an error copy of the element
// attaching 'not-authorized' error sub element.
func NotAuthorizedError(stanza Stanza) Stanza {
	return NewErrorStanzaFromStanza(stanza, ErrNotAuthorized)
}

// ServiceUnavailableError returns an error copy of the element
// attaching 'service-unavailable' error sub element.
func ServiceUnavailableError(stanza Stanza) Stanza {
	return NewErrorStanzaFromStanza(stanza, ErrServiceUnavailable)
}

// RemoteServerNotFoundError returns an error copy of the element
// attaching 'remote-server-not-found' error sub element.
func RemoteServerNotFoundError(stanza Stanza) Stanza {
	return NewErrorStanzaFromStanza(stanza, ErrRemoteServerNotFound)
}

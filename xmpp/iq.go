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
	"github.com/jackal-xmpp/cmux/xmpp/jid"
	"github.com/pkg/errors"
)

const (
	// GetType represents a 'get' IQ type.
	GetType = "get"

	// SetType represents a 'set' IQ type.
	SetType = "set"

	// ResultType represents a 'result' IQ type.
	ResultType = "result"
)

// IQ type represents an <iq> element.
type IQ struct {
	stanzaElement
}

// NewIQFromElement creates an IQ object from an element.
// Validation failures wrap ErrBadRequest.
func NewIQFromElement(e *Element, from *jid.JID, to *jid.JID) (*IQ, error) {
	if e.Name() != IQName {
		return nil, errors.Wrapf(ErrBadRequest, "wrong IQ element name: %s", e.Name())
	}
	if len(e.ID()) == 0 {
		return nil, errors.Wrap(ErrBadRequest, `IQ "id" attribute is required`)
	}
	iqType := e.Type()
	switch iqType {
	case GetType, SetType:
		if e.ElementCount() != 1 {
			return nil, errors.Wrap(ErrBadRequest, `an IQ stanza of type "get" or "set" must contain one and only one child element`)
		}
	case ResultType:
		if e.ElementCount() > 1 {
			return nil, errors.Wrap(ErrBadRequest, `an IQ stanza of type "result" must include zero or one child elements`)
		}
	case ErrorType:
	default:
		return nil, errors.Wrapf(ErrBadRequest, `invalid IQ "type" attribute: %q`, iqType)
	}
	iq := &IQ{}
	iq.copyFrom(e, from, to)
	return iq, nil
}

// NewIQType creates and returns a new IQ element.
func NewIQType(identifier string, iqType string) *IQ {
	iq := &IQ{}
	iq.SetName(IQName)
	iq.SetID(identifier)
	iq.SetType(iqType)
	return iq
}

// IsGet returns true if this is a 'get' type IQ.
func (iq *IQ) IsGet() bool { return iq.Type() == GetType }

// IsSet returns true if this is a 'set' type IQ.
func (iq *IQ) IsSet() bool { return iq.Type() == SetType }

// IsResult returns true if this is a 'result' type IQ.
func (iq *IQ) IsResult() bool { return iq.Type() == ResultType }

// Payload returns the IQ child element, if any.
func (iq *IQ) Payload() *Element {
	for _, el := range iq.Elements() {
		if el.Name() != "error" {
			return el
		}
	}
	return nil
}

// ResultIQ returns the instance associated result IQ.
func (iq *IQ) ResultIQ() *IQ {
	rs := NewIQType(iq.ID(), ResultType)
	rs.SetFromJID(iq.ToJID())
	rs.SetToJID(iq.FromJID())
	return rs
}

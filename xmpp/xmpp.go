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
	"fmt"
	"io"

	"github.com/jackal-xmpp/cmux/xmpp/jid"
	"github.com/pkg/errors"
)

const (
	// MessageName represents "message" stanza name.
	MessageName = "message"

	// PresenceName represents "presence" stanza name.
	PresenceName = "presence"

	// IQName represents "iq" stanza name.
	IQName = "iq"

	// ErrorType represents an 'error' stanza type.
	ErrorType = "error"
)

// Well known namespaces.
const (
	StreamNamespace            = "http://etherx.jabber.org/streams"
	ClientNamespace            = "jabber:client"
	ConnectionManagerNamespace = "jabber:connectionmanager"
	StanzasNamespace           = "urn:ietf:params:xml:ns:xmpp-stanzas"
	StreamsNamespace           = "urn:ietf:params:xml:ns:xmpp-streams"
	BindNamespace              = "urn:ietf:params:xml:ns:xmpp-bind"
	SessionNamespace           = "urn:ietf:params:xml:ns:xmpp-session"
	SASLNamespace              = "urn:ietf:params:xml:ns:xmpp-sasl"
	TLSNamespace               = "urn:ietf:params:xml:ns:xmpp-tls"
	CompressFeatureNamespace   = "http://jabber.org/features/compress"
	CompressProtocolNamespace  = "http://jabber.org/protocol/compress"
	MultiplexerNamespace       = "http://jabber.org/protocol/connectionmanager"
	MultiplexerErrorsNamespace = "http://jabber.org/protocol/connectionmanager/errors"
	PingNamespace              = "urn:xmpp:ping"
	OfflineNamespace           = "http://jabber.org/protocol/offline"
	HintsNamespace             = "urn:xmpp:hints"
	ChatStatesNamespace        = "http://jabber.org/protocol/chatstates"
	RealTimeTextNamespace      = "urn:xmpp:rtt:0"
	AMPNamespace               = "http://jabber.org/protocol/amp"
)

// Stanza represents an XMPP stanza element.
type Stanza interface {
	fmt.Stringer

	Name() string
	ID() string
	Type() string
	IsError() bool

	FromJID() *jid.JID
	ToJID() *jid.JID

	// Elem returns the underlying mutable element.
	Elem() *Element

	ToXML(w io.Writer, includeClosing bool)
}

type stanzaElement struct {
	Element
	fromJID *jid.JID
	toJID   *jid.JID
}

// NewStanzaFromElement returns a new stanza instance derived from an XMPP element.
// Connection manager route envelopes are returned as *Route.
// An unparseable 'from' or 'to' address yields an error wrapping ErrJidMalformed.
func NewStanzaFromElement(elem *Element) (Stanza, error) {
	fromJID, err := parseAddress(elem.From())
	if err != nil {
		return nil, err
	}
	toJID, err := parseAddress(elem.To())
	if err != nil {
		return nil, err
	}
	switch elem.Name() {
	case IQName:
		return NewIQFromElement(elem, fromJID, toJID)
	case PresenceName:
		return NewPresenceFromElement(elem, fromJID, toJID)
	case MessageName:
		return NewMessageFromElement(elem, fromJID, toJID)
	case RouteName:
		return NewRouteFromElement(elem, fromJID, toJID)
	}
	return nil, errors.Wrapf(ErrUnsupportedStanza, "%s", elem.Name())
}

// ErrUnsupportedStanza is returned when an element is not one of iq, message or presence.
var ErrUnsupportedStanza = errors.New("xmpp: unsupported stanza")

func parseAddress(addr string) (*jid.JID, error) {
	if len(addr) == 0 {
		return nil, nil
	}
	j, err := jid.NewWithString(addr)
	if err != nil {
		return nil, errors.Wrap(ErrJidMalformed, err.Error())
	}
	return j, nil
}

// Elem returns the stanza underlying element.
func (s *stanzaElement) Elem() *Element { return &s.Element }

// ToJID returns stanza 'to' JID value.
func (s *stanzaElement) ToJID() *jid.JID { return s.toJID }

// FromJID returns stanza 'from' JID value.
func (s *stanzaElement) FromJID() *jid.JID { return s.fromJID }

// SetToJID sets the stanza 'to' JID value.
func (s *stanzaElement) SetToJID(j *jid.JID) {
	s.toJID = j
	if j == nil {
		s.RemoveAttribute("to")
		return
	}
	s.SetTo(j.String())
}

// SetFromJID sets the stanza 'from' JID value.
func (s *stanzaElement) SetFromJID(j *jid.JID) {
	s.fromJID = j
	if j == nil {
		s.RemoveAttribute("from")
		return
	}
	s.SetFrom(j.String())
}

func (s *stanzaElement) copyFrom(e *Element, from, to *jid.JID) {
	s.Element = *e.Copy()
	s.fromJID = from
	s.toJID = to
}

// NewErrorStanzaFromStanza returns a copy of stanza turned into an error reply:
// addresses are swapped, type is set to 'error' and the error element is appended.
func NewErrorStanzaFromStanza(stanza Stanza, stanzaErr *StanzaError, appErrors ...*Element) Stanza {
	e := &stanzaElement{}
	e.copyFrom(stanza.Elem(), stanza.FromJID(), stanza.ToJID())
	e.RemoveElements("error")
	e.SetType(ErrorType)
	e.SetFromJID(stanza.ToJID())
	e.SetToJID(stanza.FromJID())
	errEl := stanzaErr.Element()
	errEl.AppendElements(appErrors)
	e.AppendElement(errEl)

	switch stanza.(type) {
	case *IQ:
		return &IQ{stanzaElement: *e}
	case *Message:
		return &Message{stanzaElement: *e}
	case *Presence:
		return &Presence{stanzaElement: *e}
	case *Route:
		return &Route{stanzaElement: *e}
	}
	return e
}

// CopyStanza returns a deep copy of a stanza preserving its concrete type.
func CopyStanza(stanza Stanza) Stanza {
	e := stanzaElement{}
	e.copyFrom(stanza.Elem(), stanza.FromJID(), stanza.ToJID())
	switch stanza.(type) {
	case *IQ:
		return &IQ{stanzaElement: e}
	case *Message:
		return &Message{stanzaElement: e}
	case *Presence:
		return &Presence{stanzaElement: e}
	case *Route:
		return &Route{stanzaElement: e}
	}
	return &e
}

// NewErrorElementFromElement returns a copy of elem turned into an error reply.
// It serves elements that could not be turned into stanzas.
func NewErrorElementFromElement(elem *Element, stanzaErr *StanzaError, appErrors ...*Element) *Element {
	e := elem.Copy()
	e.RemoveElements("error")
	e.SetType(ErrorType)
	e.SetFrom(elem.To())
	e.SetTo(elem.From())
	errEl := stanzaErr.Element()
	errEl.AppendElements(appErrors)
	e.AppendElement(errEl)
	return e
}

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
	"encoding/xml"
	"strings"

	"github.com/jackal-xmpp/cmux/xmpp/jid"
	"github.com/pkg/errors"
)

const (
	// RouteName is the multiplexer envelope element name.
	RouteName = "route"

	// StreamIDAttribute is the envelope attribute carrying the client stream identifier.
	StreamIDAttribute = "streamid"
)

var (
	// ErrMissingStreamID is returned when a route envelope has no streamid attribute.
	ErrMissingStreamID = errors.New("xmpp: route without streamid")

	// ErrRoutePayload is returned when a route envelope does not wrap exactly one element.
	ErrRoutePayload = errors.New("xmpp: route must wrap exactly one element")
)

// Route is a connection manager envelope carrying a single client stanza.
type Route struct {
	stanzaElement
}

// NewRoute returns a route envelope carrying a copy of payload.
func NewRoute(from, to *jid.JID, streamID string, payload *Element) *Route {
	r := &Route{}
	r.SetName(RouteName)
	r.SetFromJID(from)
	r.SetToJID(to)
	r.SetAttribute(StreamIDAttribute, streamID)
	r.AppendElement(payload.Copy())
	return r
}

// NewRouteFromElement returns a route envelope derived from an element.
// The envelope content is validated by Unwrap.
func NewRouteFromElement(e *Element, from *jid.JID, to *jid.JID) (*Route, error) {
	if e.Name() != RouteName {
		return nil, errors.Wrapf(ErrBadRequest, "wrong route element name: %s", e.Name())
	}
	r := &Route{}
	r.copyFrom(e, from, to)
	return r, nil
}

// StreamID returns the client stream identifier the envelope belongs to.
func (r *Route) StreamID() string { return r.Attribute(StreamIDAttribute) }

// Unwrap returns the envelope stream identifier and a detached copy of its payload.
func (r *Route) Unwrap() (string, *Element, error) { return UnwrapRoute(&r.Element) }

// RouteRawText wraps a pre-serialized XML fragment into a route envelope.
func RouteRawText(from, to, streamID, text string) string {
	var sb strings.Builder
	sb.WriteString(`<route from="`)
	_ = xml.EscapeText(&sb, []byte(from))
	sb.WriteString(`" to="`)
	_ = xml.EscapeText(&sb, []byte(to))
	sb.WriteString(`" streamid="`)
	_ = xml.EscapeText(&sb, []byte(streamID))
	sb.WriteString(`">`)
	sb.WriteString(text)
	sb.WriteString("</route>")
	return sb.String()
}

// UnwrapRoute returns the envelope stream identifier and its single wrapped element.
// The returned element is detached from the envelope.
func UnwrapRoute(route *Element) (string, *Element, error) {
	streamID := route.Attribute(StreamIDAttribute)
	if len(streamID) == 0 {
		return "", nil, ErrMissingStreamID
	}
	if route.ElementCount() != 1 {
		return streamID, nil, ErrRoutePayload
	}
	payload := route.Elements()[0].Copy()
	payload.RemoveAttribute(StreamIDAttribute)
	return streamID, payload, nil
}

// NewSessionControlIQ builds a connection manager session request
// (action being one of 'create', 'close' or 'failed').
func NewSessionControlIQ(id, from, to, streamID, action string) *Element {
	iq := NewElementName(IQName)
	iq.SetID(id)
	iq.SetType(SetType)
	iq.SetFrom(from)
	iq.SetTo(to)
	s := NewElementNamespace("session", MultiplexerNamespace)
	s.SetID(streamID)
	s.AppendElement(NewElementName(action))
	iq.AppendElement(s)
	return iq
}

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

	"github.com/jackal-xmpp/cmux/xmpp/jid"
	"github.com/pkg/errors"
)

const (
	// AvailableType represents an 'available' Presence type.
	AvailableType = ""

	// UnavailableType represents a 'unavailable' Presence type.
	UnavailableType = "unavailable"

	// SubscribeType represents a 'subscribe' Presence type.
	SubscribeType = "subscribe"

	// UnsubscribeType represents a 'unsubscribe' Presence type.
	UnsubscribeType = "unsubscribe"

	// SubscribedType represents a 'subscribed' Presence type.
	SubscribedType = "subscribed"

	// UnsubscribedType represents a 'unsubscribed' Presence type.
	UnsubscribedType = "unsubscribed"

	// ProbeType represents a 'probe' Presence type.
	ProbeType = "probe"
)

// Presence type represents a <presence> element.
type Presence struct {
	stanzaElement
}

// NewPresenceFromElement creates a Presence object from an element.
// An unknown presence type is reset to available.
func NewPresenceFromElement(e *Element, from *jid.JID, to *jid.JID) (*Presence, error) {
	if e.Name() != PresenceName {
		return nil, errors.Wrapf(ErrBadRequest, "wrong Presence element name: %s", e.Name())
	}
	p := &Presence{}
	p.copyFrom(e, from, to)

	switch p.Type() {
	case AvailableType, UnavailableType, SubscribeType, UnsubscribeType,
		SubscribedType, UnsubscribedType, ProbeType, ErrorType:
	default:
		p.RemoveAttribute("type")
	}
	return p, nil
}

// NewPresence creates and returns a new Presence element.
func NewPresence(from *jid.JID, to *jid.JID, presenceType string) *Presence {
	p := &Presence{}
	p.SetName(PresenceName)
	if len(presenceType) > 0 {
		p.SetType(presenceType)
	}
	p.SetFromJID(from)
	p.SetToJID(to)
	return p
}

// IsAvailable returns true if this is an 'available' type Presence.
func (p *Presence) IsAvailable() bool { return p.Type() == AvailableType }

// IsUnavailable returns true if this is an 'unavailable' type Presence.
func (p *Presence) IsUnavailable() bool { return p.Type() == UnavailableType }

// Priority returns presence priority value. Missing or invalid values yield 0.
func (p *Presence) Priority() int8 {
	pr := p.Child("priority")
	if pr == nil {
		return 0
	}
	v, err := strconv.ParseInt(pr.Text(), 10, 8)
	if err != nil {
		return 0
	}
	return int8(v)
}

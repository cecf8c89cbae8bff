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
	// NormalType represents a 'normal' message type.
	NormalType = "normal"

	// HeadlineType represents a 'headline' message type.
	HeadlineType = "headline"

	// ChatType represents a 'chat' message type.
	ChatType = "chat"

	// GroupChatType represents a 'groupchat' message type.
	GroupChatType = "groupchat"
)

// Message type represents a <message> element.
type Message struct {
	stanzaElement
}

// NewMessageFromElement creates a Message object from an element.
func NewMessageFromElement(e *Element, from *jid.JID, to *jid.JID) (*Message, error) {
	if e.Name() != MessageName {
		return nil, errors.Wrapf(ErrBadRequest, "wrong Message element name: %s", e.Name())
	}
	switch e.Type() {
	case "", NormalType, HeadlineType, ChatType, GroupChatType, ErrorType:
	default:
		return nil, errors.Wrapf(ErrBadRequest, `invalid Message "type" attribute: %q`, e.Type())
	}
	m := &Message{}
	m.copyFrom(e, from, to)
	return m, nil
}

// NewMessageType creates and returns a new Message element.
func NewMessageType(identifier string, messageType string) *Message {
	m := &Message{}
	m.SetName(MessageName)
	m.SetID(identifier)
	m.SetType(messageType)
	return m
}

// IsNormal returns true if this is a 'normal' type Message.
func (m *Message) IsNormal() bool {
	return m.Type() == NormalType || len(m.Type()) == 0
}

// IsHeadline returns true if this is a 'headline' type Message.
func (m *Message) IsHeadline() bool { return m.Type() == HeadlineType }

// IsChat returns true if this is a 'chat' type Message.
func (m *Message) IsChat() bool { return m.Type() == ChatType }

// IsGroupChat returns true if this is a 'groupchat' type Message.
func (m *Message) IsGroupChat() bool { return m.Type() == GroupChatType }

// IsMessageWithBody returns true if the message has a non empty body element.
func (m *Message) IsMessageWithBody() bool {
	body := m.Child("body")
	return body != nil && len(body.Text()) > 0
}

// ParseMessage parses a serialized message stanza.
func ParseMessage(s string) (*Message, error) {
	elem, err := ParseElement(s)
	if err != nil {
		return nil, err
	}
	stanza, err := NewStanzaFromElement(elem)
	if err != nil {
		return nil, err
	}
	msg, ok := stanza.(*Message)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedStanza, "expected message, got %s", elem.Name())
	}
	return msg, nil
}

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

// Package deliverer handles the packets that could not be written to their connection.
package deliverer

import (
	"fmt"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackal-xmpp/cmux/connection"
	"github.com/jackal-xmpp/cmux/xmpp"
)

const (
	outcomeRerouted = "rerouted"
	outcomeOffline  = "offline"
	outcomeDropped  = "dropped"
)

// Selector picks a connection manager physical connection.
type Selector interface {
	SelectDeliveryConnection(domain, streamID string) connection.Connection
}

// OfflineStore stores undelivered messages.
type OfflineStore interface {
	StoreOffline(msg *xmpp.Message)
}

// Fallback delivers packets whose connection failed.
// Connection manager envelopes are first retried through another physical connection,
// and whatever cannot be rerouted is unwrapped and either stored offline or dropped.
type Fallback struct {
	selector Selector
	offline  OfflineStore
	logger   kitlog.Logger
}

// NewFallback returns a new fallback deliverer.
func NewFallback(selector Selector, offline OfflineStore, logger kitlog.Logger) *Fallback {
	return &Fallback{
		selector: selector,
		offline:  offline,
		logger:   kitlog.With(logger, "component", "deliverer"),
	}
}

// Deliver satisfies connection.Deliverer interface.
func (f *Fallback) Deliver(stanza xmpp.Stanza) {
	defer func() {
		if r := recover(); r != nil {
			level.Error(f.logger).Log("msg", "panic delivering undeliverable packet", "err", fmt.Sprintf("%v", r))
		}
	}()
	if f.reroute(stanza) {
		reportDelivery(stanza.Name(), outcomeRerouted)
		return
	}
	payload := unwrap(stanza)
	if payload == nil {
		level.Warn(f.logger).Log("msg", "dropping malformed envelope", "stanza", stanza.String())
		reportDelivery(stanza.Name(), outcomeDropped)
		return
	}
	switch st := payload.(type) {
	case *xmpp.Message:
		if f.offline != nil {
			f.offline.StoreOffline(st)
			reportDelivery(st.Name(), outcomeOffline)
			return
		}
	case *xmpp.Presence:
		// presences are not worth storing

	case *xmpp.IQ:
		level.Warn(f.logger).Log("msg", "dropping undeliverable iq", "id", st.ID(), "to", st.To())

	default:
		level.Warn(f.logger).Log("msg", "dropping undeliverable packet", "name", st.Name())
	}
	reportDelivery(payload.Name(), outcomeDropped)
}

func (f *Fallback) reroute(stanza xmpp.Stanza) bool {
	route, ok := stanza.(*xmpp.Route)
	if !ok || f.selector == nil || route.ToJID() == nil {
		return false
	}
	conn := f.selector.SelectDeliveryConnection(route.ToJID().Domain(), route.StreamID())
	if conn == nil || conn.IsClosed() {
		return false
	}
	conn.Deliver(route)
	return true
}

// unwrap returns the client stanza carried by a connection manager envelope,
// or stanza itself if it is not wrapped. It returns nil on malformed envelopes.
func unwrap(stanza xmpp.Stanza) xmpp.Stanza {
	var elem *xmpp.Element
	switch st := stanza.(type) {
	case *xmpp.Route:
		_, payload, err := st.Unwrap()
		if err != nil {
			return nil
		}
		elem = payload

	case *xmpp.IQ:
		send := sessionSend(st)
		if send == nil {
			return stanza
		}
		if send.ElementCount() != 1 {
			return nil
		}
		elem = send.Elements()[0]

	default:
		return stanza
	}
	payload, err := xmpp.NewStanzaFromElement(elem)
	if err != nil {
		return nil
	}
	return payload
}

func sessionSend(iq *xmpp.IQ) *xmpp.Element {
	if !iq.IsSet() {
		return nil
	}
	sess := iq.Elem().ChildNamespace("session", xmpp.MultiplexerNamespace)
	if sess == nil {
		return nil
	}
	return sess.Child("send")
}

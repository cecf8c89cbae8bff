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

package router

import (
	"github.com/jackal-xmpp/cmux/session"
	"github.com/jackal-xmpp/cmux/xmpp"
)

// Ping answers XEP-0199 server pings.
type Ping struct{}

// MatchesIQ satisfies IQHandler interface.
func (Ping) MatchesIQ(iq *xmpp.IQ) bool {
	return iq.IsGet() && iq.Elem().ChildNamespace("ping", xmpp.PingNamespace) != nil
}

// ProcessIQ satisfies IQHandler interface.
func (Ping) ProcessIQ(sess *session.Session, iq *xmpp.IQ) error {
	sess.Deliver(iq.ResultIQ())
	return nil
}

// Session acknowledges legacy session establishment requests (RFC 3921).
type Session struct{}

// MatchesIQ satisfies IQHandler interface.
func (Session) MatchesIQ(iq *xmpp.IQ) bool {
	return iq.IsSet() && iq.Elem().ChildNamespace("session", xmpp.SessionNamespace) != nil
}

// ProcessIQ satisfies IQHandler interface.
func (Session) ProcessIQ(sess *session.Session, iq *xmpp.IQ) error {
	if sess.JID() == nil {
		return ErrNotAuthorized
	}
	sess.Deliver(iq.ResultIQ())
	return nil
}

// OfflineDeliverer flushes a user offline queue into a session.
type OfflineDeliverer interface {
	DeliverOffline(sess *session.Session)
}

// OfflineFetch serves XEP-0013 offline message retrieval requests.
type OfflineFetch struct {
	deliverer OfflineDeliverer
}

// NewOfflineFetch returns an offline retrieval handler backed by d.
func NewOfflineFetch(d OfflineDeliverer) *OfflineFetch {
	return &OfflineFetch{deliverer: d}
}

// MatchesIQ satisfies IQHandler interface.
func (h *OfflineFetch) MatchesIQ(iq *xmpp.IQ) bool {
	off := iq.Elem().ChildNamespace("offline", xmpp.OfflineNamespace)
	return off != nil && off.Child("fetch") != nil
}

// ProcessIQ satisfies IQHandler interface.
func (h *OfflineFetch) ProcessIQ(sess *session.Session, iq *xmpp.IQ) error {
	if sess.JID() == nil {
		return ErrNotAuthorized
	}
	h.deliverer.DeliverOffline(sess)
	sess.Deliver(iq.ResultIQ())
	return nil
}

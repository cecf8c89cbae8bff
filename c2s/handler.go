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

package c2s

import (
	"fmt"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackal-xmpp/cmux/auth"
	"github.com/jackal-xmpp/cmux/router"
	"github.com/jackal-xmpp/cmux/session"
	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/jackal-xmpp/cmux/xmpp/jid"
	"github.com/pkg/errors"
)

// OfflineDeliverer flushes a user offline queue into a session.
type OfflineDeliverer interface {
	DeliverOffline(sess *session.Session)
}

// Handler processes the elements sent by client sessions once their stream is open.
// It serves both directly connected clients and the ones hosted by a connection manager.
type Handler struct {
	cfg     ResourceConflictConfig
	users   auth.PasswordVerifier
	router  *router.Router
	offline OfflineDeliverer
	logger  kitlog.Logger
}

// NewHandler returns a new client element handler.
func NewHandler(cfg ResourceConflictConfig, users auth.PasswordVerifier, r *router.Router, offline OfflineDeliverer, logger kitlog.Logger) *Handler {
	return &Handler{
		cfg:     cfg,
		users:   users,
		router:  r,
		offline: offline,
		logger:  kitlog.With(logger, "component", "c2s"),
	}
}

// ProcessElement handles an element sent by sess peer.
func (h *Handler) ProcessElement(sess *session.Session, elem *xmpp.Element) {
	defer func() {
		if r := recover(); r != nil {
			level.Error(h.logger).Log("msg", "panic processing client element", "stream_id", sess.StreamID(), "err", fmt.Sprintf("%v", r))
			sess.CloseWithError(xmpp.ErrStreamInternalServerError)
		}
	}()
	reportIncomingElement(elem.Name(), elem.Type())

	switch {
	case sess.Status() == session.Closed:
		return
	case sess.Status() != session.Authenticated:
		h.handleUnauthenticated(sess, elem)
	case sess.JID() == nil:
		h.handleAuthenticated(sess, elem)
	default:
		h.handleBound(sess, elem)
	}
}

func (h *Handler) handleUnauthenticated(sess *session.Session, elem *xmpp.Element) {
	switch elem.Name() {
	case "auth":
		h.authenticate(sess, elem)

	case "iq":
		if elem.Type() == xmpp.GetType || elem.Type() == xmpp.SetType {
			if elem.ChildNamespace("query", "jabber:iq:auth") != nil {
				// non-SASL authentication is not supported
				sess.Connection().DeliverRawText(xmpp.NewErrorElementFromElement(elem, xmpp.ErrServiceUnavailable).String())
				return
			}
		}
		sess.CloseWithError(xmpp.ErrStreamNotAuthorized)

	case "message", "presence":
		sess.CloseWithError(xmpp.ErrStreamNotAuthorized)

	default:
		sess.CloseWithError(xmpp.ErrStreamUnsupportedStanzaType)
	}
}

func (h *Handler) authenticate(sess *session.Session, elem *xmpp.Element) {
	if elem.Namespace() != xmpp.SASLNamespace {
		sess.CloseWithError(xmpp.ErrStreamInvalidNamespace)
		return
	}
	_ = sess.SetStatus(session.Authenticating)

	authr := auth.NewPlain(h.users)
	if mechanism := elem.Attribute("mechanism"); mechanism != authr.Mechanism() {
		reportAuthentication(mechanism, false)
		sess.Connection().DeliverRawText(auth.ErrSASLInvalidMechanism.Element().String())
		return
	}
	err := authr.ProcessElement(elem)
	if err != nil {
		reportAuthentication(authr.Mechanism(), false)

		var saslErr *auth.SASLError
		if !errors.As(err, &saslErr) {
			level.Warn(h.logger).Log("msg", "authentication failed", "stream_id", sess.StreamID(), "err", err)
			saslErr = auth.ErrSASLTemporaryAuthFailure
		}
		sess.Connection().DeliverRawText(saslErr.Element().String())
		return
	}
	if err := sess.SetAuthenticated(authr.Username()); err != nil {
		return
	}
	reportAuthentication(authr.Mechanism(), true)
	sess.Connection().DeliverRawText(xmpp.NewElementNamespace("success", xmpp.SASLNamespace).String())

	level.Info(h.logger).Log("msg", "authenticated client", "stream_id", sess.StreamID(), "username", authr.Username())
}

func (h *Handler) handleAuthenticated(sess *session.Session, elem *xmpp.Element) {
	if elem.Name() != xmpp.IQName {
		sess.CloseWithError(xmpp.ErrStreamNotAuthorized)
		return
	}
	stanza, ok := h.parseStanza(sess, elem)
	if !ok {
		return
	}
	iq := stanza.(*xmpp.IQ)
	if iq.Elem().ChildNamespace("bind", xmpp.BindNamespace) != nil {
		h.bind(sess, iq)
		return
	}
	sess.Deliver(xmpp.NotAllowedError(iq))
}

func (h *Handler) handleBound(sess *session.Session, elem *xmpp.Element) {
	stanza, ok := h.parseStanza(sess, elem)
	if !ok {
		return
	}
	// stamp sender address
	if s, ok := stanza.(interface{ SetFromJID(*jid.JID) }); ok {
		s.SetFromJID(sess.JID())
	}
	switch st := stanza.(type) {
	case *xmpp.IQ:
		h.processIQ(sess, st)
	case *xmpp.Message:
		h.processMessage(sess, st)
	case *xmpp.Presence:
		h.processPresence(sess, st)
	default:
		sess.CloseWithError(xmpp.ErrStreamUnsupportedStanzaType)
	}
}

func (h *Handler) processIQ(sess *session.Session, iq *xmpp.IQ) {
	toJID := iq.ToJID()
	if toJID == nil || toJID.IsServer() && toJID.Domain() == sess.Domain() || toJID.Equal(sess.JID().ToBareJID()) {
		if iq.Elem().ChildNamespace("bind", xmpp.BindNamespace) != nil {
			sess.Deliver(xmpp.NotAllowedError(iq))
			return
		}
		h.router.ProcessIQ(sess, iq)
		return
	}
	h.route(sess, iq)
}

func (h *Handler) processMessage(sess *session.Session, msg *xmpp.Message) {
	if msg.ToJID() == nil {
		msg.SetToJID(sess.JID().ToBareJID())
	}
	h.route(sess, msg)
}

func (h *Handler) processPresence(sess *session.Session, presence *xmpp.Presence) {
	if presence.ToJID() != nil {
		_ = h.router.Route(presence)
		return
	}
	switch presence.Type() {
	case xmpp.AvailableType, xmpp.UnavailableType:
		sess.SetPresence(presence)
	default:
		return
	}
	// deliver offline messages on initial available presence
	if presence.IsAvailable() && presence.Priority() >= 0 {
		h.offline.DeliverOffline(sess)
	}
}

func (h *Handler) route(sess *session.Session, stanza xmpp.Stanza) {
	err := h.router.Route(stanza)
	switch {
	case err == nil:
		return
	case errors.Is(err, router.ErrRemoteServerNotFound):
		sess.Deliver(xmpp.RemoteServerNotFoundError(stanza))
	case errors.Is(err, router.ErrResourceNotFound),
		errors.Is(err, router.ErrUserNotAvailable),
		errors.Is(err, router.ErrServiceUnavailable):
		sess.Deliver(xmpp.ServiceUnavailableError(stanza))
	default:
		level.Warn(h.logger).Log("msg", "failed to route stanza", "stream_id", sess.StreamID(), "err", err)
		sess.Deliver(xmpp.InternalServerError(stanza))
	}
}

func (h *Handler) parseStanza(sess *session.Session, elem *xmpp.Element) (xmpp.Stanza, bool) {
	stanza, err := xmpp.NewStanzaFromElement(elem)
	switch {
	case err == nil:
		if _, ok := stanza.(*xmpp.Route); ok {
			sess.CloseWithError(xmpp.ErrStreamUnsupportedStanzaType)
			return nil, false
		}
		return stanza, true
	case errors.Is(err, xmpp.ErrUnsupportedStanza):
		sess.CloseWithError(xmpp.ErrStreamUnsupportedStanzaType)
	case errors.Is(err, xmpp.ErrJidMalformed):
		sess.Connection().DeliverRawText(xmpp.NewErrorElementFromElement(elem, xmpp.ErrJidMalformed).String())
	default:
		sess.Connection().DeliverRawText(xmpp.NewErrorElementFromElement(elem, xmpp.ErrBadRequest).String())
	}
	return nil, false
}

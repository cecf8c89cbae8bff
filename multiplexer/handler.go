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

package multiplexer

import (
	"fmt"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackal-xmpp/cmux/session"
	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/pkg/errors"
)

// ClientHandler processes the elements sent by hosted client sessions.
type ClientHandler interface {
	ProcessElement(sess *session.Session, elem *xmpp.Element)
}

// OfflineStore stores messages the connection manager failed to deliver.
type OfflineStore interface {
	StoreOffline(msg *xmpp.Message)
}

// PacketHandler processes the packets sent by authenticated connection managers.
type PacketHandler struct {
	manager *Manager
	clients ClientHandler
	offline OfflineStore
	logger  kitlog.Logger
}

// NewPacketHandler returns a new connection manager packet handler.
func NewPacketHandler(manager *Manager, clients ClientHandler, offline OfflineStore, logger kitlog.Logger) *PacketHandler {
	return &PacketHandler{
		manager: manager,
		clients: clients,
		offline: offline,
		logger:  logger,
	}
}

// Process handles an element received from p.
func (h *PacketHandler) Process(p *Physical, elem *xmpp.Element) {
	stanza, err := xmpp.NewStanzaFromElement(elem)
	if err != nil {
		level.Debug(h.logger).Log("msg", "rejected connection manager packet", "cm", p.Domain(), "err", err)
		stanzaErr := xmpp.ErrBadRequest
		if errors.Is(err, xmpp.ErrJidMalformed) {
			stanzaErr = xmpp.ErrJidMalformed
		}
		p.conn.DeliverRawText(xmpp.NewErrorElementFromElement(elem, stanzaErr).String())
		return
	}
	defer func() {
		if r := recover(); r != nil {
			level.Error(h.logger).Log("msg", "panic processing connection manager packet", "cm", p.Domain(), "err", fmt.Sprintf("%v", r))
			p.Deliver(xmpp.InternalServerError(stanza))
		}
	}()

	switch st := stanza.(type) {
	case *xmpp.Route:
		h.processRoute(p, st)
	case *xmpp.IQ:
		h.processIQ(p, st)
	default:
		p.Deliver(xmpp.BadRequestError(stanza))
	}
}

func (h *PacketHandler) processRoute(p *Physical, route *xmpp.Route) {
	streamID := route.StreamID()
	if len(streamID) == 0 {
		p.Deliver(xmpp.BadRequestError(route, xmpp.IDRequiredError()))
		return
	}
	sess, ok := h.manager.ClientSession(p.Domain(), streamID)
	if !ok {
		p.Deliver(xmpp.ItemNotFoundError(route))
		return
	}
	_, payload, err := route.Unwrap()
	if err != nil {
		p.Deliver(xmpp.BadRequestError(route))
		return
	}
	sess.IncrementClientPacketCount()
	h.clients.ProcessElement(sess, payload)
}

func (h *PacketHandler) processIQ(p *Physical, iq *xmpp.IQ) {
	switch iq.Type() {
	case xmpp.ResultType:
		return
	case xmpp.ErrorType:
		level.Warn(h.logger).Log("msg", "connection manager returned an error", "cm", p.Domain(), "iq", iq.String())
		return
	}
	sessEl := iq.Elem().ChildNamespace("session", xmpp.MultiplexerNamespace)
	if sessEl == nil {
		p.Deliver(xmpp.BadRequestError(iq))
		return
	}
	streamID := sessEl.ID()
	if len(streamID) == 0 {
		p.Deliver(xmpp.BadRequestError(iq, xmpp.IDRequiredError()))
		return
	}
	domain := p.Domain()

	if create := sessEl.Child("create"); create != nil {
		var hostName, hostAddress string
		if host := create.Child("host"); host != nil {
			hostName, hostAddress = host.Attribute("name"), host.Attribute("address")
		}
		if _, err := h.manager.CreateClientSession(domain, streamID, hostName, hostAddress); err != nil {
			level.Info(h.logger).Log("msg", "rejected client session", "cm", domain, "stream_id", streamID, "err", err)
			p.Deliver(xmpp.NotAllowedError(iq))
			return
		}
		p.Deliver(iq.ResultIQ())
		return
	}
	if _, ok := h.manager.ClientSession(domain, streamID); !ok {
		p.Deliver(xmpp.ItemNotFoundError(iq))
		return
	}
	switch {
	case sessEl.Child("close") != nil:
		h.manager.CloseClientSession(domain, streamID)
		p.Deliver(iq.ResultIQ())

	case sessEl.Child("failed") != nil:
		h.processFailed(p, iq, sessEl.Child("failed"))

	default:
		p.Deliver(xmpp.BadRequestError(iq))
	}
}

func (h *PacketHandler) processFailed(p *Physical, iq *xmpp.IQ, failed *xmpp.Element) {
	if failed.ElementCount() != 1 {
		p.Deliver(xmpp.BadRequestError(iq))
		return
	}
	stanza, err := xmpp.NewStanzaFromElement(failed.Elements()[0])
	if err != nil {
		p.Deliver(xmpp.BadRequestError(iq, xmpp.UnknownStanzaError()))
		return
	}
	msg, ok := stanza.(*xmpp.Message)
	if !ok {
		p.Deliver(xmpp.BadRequestError(iq, xmpp.UnknownStanzaError()))
		return
	}
	h.offline.StoreOffline(msg)
	p.Deliver(iq.ResultIQ())
}

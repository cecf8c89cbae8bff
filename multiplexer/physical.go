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
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"sync"
	"sync/atomic"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackal-xmpp/cmux/connection"
	"github.com/jackal-xmpp/cmux/session"
	"github.com/jackal-xmpp/cmux/stream"
	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/pkg/errors"
)

type physicalState int32

const (
	connecting physicalState = iota
	handshaking
	authenticated
	disconnected
)

// Hosts tells whether a domain is served locally.
type Hosts interface {
	IsLocalHost(domain string) bool
}

// Physical is an inbound connection manager stream.
// Its elements are processed in order on the connection run queue.
type Physical struct {
	id      session.StreamID
	conn    *connection.Socket
	sess    *session.Session
	rd      *stream.Reader
	manager *Manager
	handler *PacketHandler
	hosts   Hosts
	secret  string
	logger  kitlog.Logger

	state int32

	mu           sync.RWMutex
	domain       string
	serverDomain string
}

func newPhysical(
	conn *connection.Socket,
	manager *Manager,
	handler *PacketHandler,
	hosts Hosts,
	secret string,
	maxStanzaSize int,
	logger kitlog.Logger,
) *Physical {
	id := session.NewStreamID()
	p := &Physical{
		id:      id,
		conn:    conn,
		rd:      stream.NewReader(conn.Transport(), maxStanzaSize),
		manager: manager,
		handler: handler,
		hosts:   hosts,
		secret:  secret,
		logger:  kitlog.With(logger, "stream_id", id),
	}
	p.sess = session.New(id, conn)
	p.sess.AddCloseListener(p.onClose)
	return p
}

// StreamID returns the physical stream identifier.
func (p *Physical) StreamID() session.StreamID { return p.id }

// Domain returns the connection manager domain. It is empty until the stream header is received.
func (p *Physical) Domain() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.domain
}

// ServerDomain returns the local domain the connection manager attached to.
func (p *Physical) ServerDomain() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.serverDomain
}

// Connection returns the physical connection.
func (p *Physical) Connection() connection.Connection { return p.conn }

// Session returns the physical stream session.
func (p *Physical) Session() *session.Session { return p.sess }

// IsAuthenticated tells whether the connection manager completed its handshake.
func (p *Physical) IsAuthenticated() bool {
	return p.getState() == authenticated
}

// Deliver sends a stanza to the connection manager.
func (p *Physical) Deliver(stanza xmpp.Stanza) {
	p.conn.Deliver(stanza)
}

func (p *Physical) start() {
	go p.readLoop()
}

func (p *Physical) readLoop() {
	for {
		elem, err := p.rd.Next()
		if err != nil {
			p.conn.RunQueue().Run(func() { p.handleReadError(err) })
			return
		}
		p.conn.RunQueue().Run(func() { p.process(elem) })
	}
}

func (p *Physical) process(elem *xmpp.Element) {
	switch p.getState() {
	case connecting:
		p.handleStreamHeader(elem)
	case handshaking:
		p.handleHandshake(elem)
	case authenticated:
		reportIncomingPacket(elem.Name(), elem.Type())
		p.handler.Process(p, elem)
	}
}

func (p *Physical) handleStreamHeader(elem *xmpp.Element) {
	hdr, ok := stream.ParseHeader(elem)
	switch {
	case !ok || hdr.Namespace != xmpp.ConnectionManagerNamespace:
		p.disconnect(xmpp.ErrStreamInvalidNamespace)
		return
	case !p.hosts.IsLocalHost(hdr.To):
		p.disconnect(xmpp.ErrStreamHostUnknown)
		return
	case len(hdr.From) == 0:
		p.disconnect(xmpp.ErrStreamInvalidFrom)
		return
	}
	p.mu.Lock()
	p.domain = hdr.From
	p.serverDomain = hdr.To
	p.mu.Unlock()

	if err := p.openStream(); err != nil {
		level.Warn(p.logger).Log("msg", "failed to open stream", "err", err)
		return
	}
	_ = p.sess.SetStatus(session.Authenticating)
	p.setState(handshaking)
}

func (p *Physical) handleHandshake(elem *xmpp.Element) {
	if elem.Name() != "handshake" {
		p.disconnect(xmpp.ErrStreamNotAuthorized)
		return
	}
	expected := handshakeDigest(p.id.String(), p.secret)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(elem.Text())) != 1 {
		level.Info(p.logger).Log("msg", "connection manager handshake failed", "cm", p.Domain())
		p.disconnect(xmpp.ErrStreamNotAuthorized)
		return
	}
	if err := p.conn.DeliverRawTextSync("<handshake/>"); err != nil {
		return
	}
	if err := p.sess.SetAuthenticated(p.Domain()); err != nil {
		return
	}
	p.setState(authenticated)
	p.manager.AddPhysical(p)
	if p.conn.IsClosed() {
		p.manager.RemovePhysical(p)
		return
	}

	level.Info(p.logger).Log("msg", "connection manager authenticated", "cm", p.Domain(), "addr", p.conn.Address())
}

func (p *Physical) handleReadError(err error) {
	if errors.Is(err, stream.ErrStreamClosed) {
		p.disconnect(nil)
		return
	}
	se := stream.ToStreamError(err)
	if se != nil {
		level.Info(p.logger).Log("msg", "closing connection manager stream", "err", err)
	}
	p.disconnect(se)
}

func (p *Physical) disconnect(se *xmpp.StreamError) {
	if p.getState() == connecting && se != nil {
		_ = p.openStream()
	}
	p.conn.Close(se)
}

func (p *Physical) openStream() error {
	hdr := stream.Header{
		Namespace: xmpp.ConnectionManagerNamespace,
		From:      p.ServerDomain(),
		ID:        p.id.String(),
	}
	return p.conn.DeliverRawTextSync(hdr.Open())
}

func (p *Physical) onClose(_ *session.Session) {
	prev := physicalState(atomic.SwapInt32(&p.state, int32(disconnected)))
	if prev == authenticated {
		p.manager.RemovePhysical(p)
		level.Info(p.logger).Log("msg", "connection manager disconnected", "cm", p.Domain())
	}
}

func (p *Physical) getState() physicalState {
	return physicalState(atomic.LoadInt32(&p.state))
}

func (p *Physical) setState(st physicalState) {
	atomic.StoreInt32(&p.state, int32(st))
}

func handshakeDigest(streamID, secret string) string {
	h := sha1.Sum([]byte(streamID + secret))
	return hex.EncodeToString(h[:])
}

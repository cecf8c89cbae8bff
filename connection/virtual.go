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

package connection

import (
	"sync"
	"sync/atomic"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/jackal-xmpp/cmux/xmpp/jid"
	"github.com/pkg/errors"
)

// ErrNoDeliveryConnection is returned when a connection manager has no physical connection available.
var ErrNoDeliveryConnection = errors.New("connection: no delivery connection available")

// Selector picks the physical connection manager stream used to reach a client stream.
type Selector interface {
	SelectDeliveryConnection(domain, streamID string) Connection
}

// VirtualConfig contains virtual connection parameters.
type VirtualConfig struct {
	// StreamID is the connection manager assigned client stream identifier.
	StreamID string

	// ServerDomain is the local domain the client is connected to.
	ServerDomain string

	// ManagerDomain is the connection manager domain.
	ManagerDomain string

	// Address is the client network address reported by the connection manager.
	Address string

	// Secure tells whether the client to connection manager leg is secured.
	Secure bool
}

// Virtual is a client connection hosted by a remote connection manager.
// Every write is wrapped into a route envelope and sent through a physical connection.
type Virtual struct {
	cfg       VirtualConfig
	serverJID *jid.JID
	cmJID     *jid.JID
	selector  Selector
	logger    kitlog.Logger

	closed int32

	mu          sync.RWMutex
	backup      Deliverer
	closeLn     func()
	onDelivered func()
}

// NewVirtual returns a virtual connection for the given client stream.
func NewVirtual(cfg VirtualConfig, selector Selector, logger kitlog.Logger) (*Virtual, error) {
	serverJID, err := jid.New("", cfg.ServerDomain, "")
	if err != nil {
		return nil, err
	}
	cmJID, err := jid.New("", cfg.ManagerDomain, "")
	if err != nil {
		return nil, err
	}
	return &Virtual{
		cfg:       cfg,
		serverJID: serverJID,
		cmJID:     cmJID,
		selector:  selector,
		logger:    kitlog.With(logger, "cm", cfg.ManagerDomain, "stream_id", cfg.StreamID),
	}, nil
}

// Deliver satisfies Connection interface.
func (v *Virtual) Deliver(stanza xmpp.Stanza) {
	if v.IsClosed() {
		v.deliverBackup(stanza)
		return
	}
	conn := v.selector.SelectDeliveryConnection(v.cfg.ManagerDomain, v.cfg.StreamID)
	if conn == nil {
		v.deliverBackup(stanza)
		return
	}
	conn.Deliver(xmpp.NewRoute(v.serverJID, v.cmJID, v.cfg.StreamID, stanza.Elem()))

	v.mu.RLock()
	fn := v.onDelivered
	v.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// DeliverRawText satisfies Connection interface.
func (v *Virtual) DeliverRawText(text string) {
	if v.IsClosed() {
		return
	}
	conn := v.selector.SelectDeliveryConnection(v.cfg.ManagerDomain, v.cfg.StreamID)
	if conn == nil {
		level.Debug(v.logger).Log("msg", "dropping raw text", "err", ErrNoDeliveryConnection)
		return
	}
	conn.DeliverRawText(v.wrapRawText(text))
}

// DeliverRawTextSync satisfies Connection interface.
func (v *Virtual) DeliverRawTextSync(text string) error {
	if v.IsClosed() {
		return ErrClosed
	}
	conn := v.selector.SelectDeliveryConnection(v.cfg.ManagerDomain, v.cfg.StreamID)
	if conn == nil {
		return ErrNoDeliveryConnection
	}
	return conn.DeliverRawTextSync(v.wrapRawText(text))
}

// Close satisfies Connection interface.
// The connection manager is told to close the client stream.
func (v *Virtual) Close(streamErr *xmpp.StreamError) {
	if !atomic.CompareAndSwapInt32(&v.closed, 0, 1) {
		return
	}
	if conn := v.selector.SelectDeliveryConnection(v.cfg.ManagerDomain, v.cfg.StreamID); conn != nil {
		if streamErr != nil {
			conn.DeliverRawText(v.wrapRawText(streamErr.Element().String()))
		}
		iq, err := xmpp.NewIQFromElement(
			xmpp.NewSessionControlIQ(uuid.New().String(), v.serverJID.String(), v.cmJID.String(), v.cfg.StreamID, "close"),
			v.serverJID,
			v.cmJID,
		)
		if err == nil {
			conn.Deliver(iq)
		}
	}
	v.mu.Lock()
	fn := v.closeLn
	v.closeLn = nil
	v.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// IsClosed satisfies Connection interface.
func (v *Virtual) IsClosed() bool {
	return atomic.LoadInt32(&v.closed) == 1
}

// RegisterCloseListener satisfies Connection interface.
func (v *Virtual) RegisterCloseListener(fn func()) {
	v.mu.Lock()
	if !v.IsClosed() {
		v.closeLn = fn
		v.mu.Unlock()
		return
	}
	v.mu.Unlock()
	fn()
}

// SetBackupDeliverer satisfies Connection interface.
func (v *Virtual) SetBackupDeliverer(d Deliverer) {
	v.mu.Lock()
	v.backup = d
	v.mu.Unlock()
}

// OnDelivered satisfies Connection interface.
func (v *Virtual) OnDelivered(fn func()) {
	v.mu.Lock()
	v.onDelivered = fn
	v.mu.Unlock()
}

// Address satisfies Connection interface.
func (v *Virtual) Address() string { return v.cfg.Address }

// IsSecure satisfies Connection interface.
func (v *Virtual) IsSecure() bool { return v.cfg.Secure }

// IsCompressed satisfies Connection interface.
func (v *Virtual) IsCompressed() bool { return false }

// StreamID returns the client stream identifier.
func (v *Virtual) StreamID() string { return v.cfg.StreamID }

// ManagerDomain returns the hosting connection manager domain.
func (v *Virtual) ManagerDomain() string { return v.cfg.ManagerDomain }

func (v *Virtual) wrapRawText(text string) string {
	return xmpp.RouteRawText(v.serverJID.String(), v.cmJID.String(), v.cfg.StreamID, text)
}

func (v *Virtual) deliverBackup(stanza xmpp.Stanza) {
	v.mu.RLock()
	d := v.backup
	v.mu.RUnlock()
	if d == nil {
		level.Debug(v.logger).Log("msg", "dropping undeliverable stanza", "name", stanza.Name(), "id", stanza.ID())
		return
	}
	d.Deliver(stanza)
}

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

// Package session models the logical XMPP session bound to a connection.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jackal-xmpp/cmux/connection"
	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/jackal-xmpp/cmux/xmpp/jid"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidStatusTransition is returned when moving a session status backwards.
	ErrInvalidStatusTransition = errors.New("session: invalid status transition")

	// ErrSessionClosed is returned when transitioning out of the closed status.
	ErrSessionClosed = errors.New("session: closed")
)

// StreamID is an opaque, server unique and immutable stream identifier.
type StreamID string

// NewStreamID returns a freshly generated stream identifier.
func NewStreamID() StreamID {
	return StreamID(uuid.New().String())
}

// String returns StreamID string representation.
func (id StreamID) String() string { return string(id) }

// Status represents a session lifecycle status.
type Status int32

const (
	// Initialized is the status of a freshly created session.
	Initialized Status = iota

	// Authenticating represents a session negotiating its credentials.
	Authenticating

	// Authenticated represents a session whose peer has been authenticated.
	Authenticated

	// Closed represents a terminated session.
	Closed
)

// String returns Status string representation.
func (s Status) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Session is the logical entity associated to a client or connection manager stream.
type Session struct {
	id   StreamID
	conn connection.Connection

	status          int32
	conflictCount   int32
	clientPackets   uint64
	serverPackets   uint64
	floodStopped    int32
	closeListenerMu sync.Mutex
	closeListeners  []func(*Session)

	mu       sync.RWMutex
	domain   string
	jd       *jid.JID
	username string
	presence *xmpp.Presence
}

// New returns a session bound to conn.
// Closing the connection closes the session as well.
func New(id StreamID, conn connection.Connection) *Session {
	s := &Session{id: id, conn: conn}
	conn.OnDelivered(s.IncrementServerPacketCount)
	conn.RegisterCloseListener(s.onConnectionClosed)
	return s
}

// StreamID returns the session stream identifier.
func (s *Session) StreamID() StreamID { return s.id }

// Connection returns the session connection.
func (s *Session) Connection() connection.Connection { return s.conn }

// Address returns the session peer network address.
func (s *Session) Address() string { return s.conn.Address() }

// Status returns current session status.
func (s *Session) Status() Status {
	return Status(atomic.LoadInt32(&s.status))
}

// SetStatus moves the session status forward.
func (s *Session) SetStatus(st Status) error {
	for {
		cur := atomic.LoadInt32(&s.status)
		switch {
		case Status(cur) == Closed:
			if st == Closed {
				return nil
			}
			return ErrSessionClosed
		case st != Closed && int32(st) < cur:
			return errors.Wrapf(ErrInvalidStatusTransition, "%s -> %s", Status(cur), st)
		}
		if atomic.CompareAndSwapInt32(&s.status, cur, int32(st)) {
			return nil
		}
	}
}

// Domain returns the local domain the session peer attached to.
func (s *Session) Domain() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.domain
}

// SetDomain sets the local domain the session peer attached to.
func (s *Session) SetDomain(domain string) {
	s.mu.Lock()
	s.domain = domain
	s.mu.Unlock()
}

// JID returns the session bound address. It is nil until the resource gets bound.
func (s *Session) JID() *jid.JID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jd
}

// SetJID sets the session bound address.
func (s *Session) SetJID(j *jid.JID) {
	s.mu.Lock()
	s.jd = j
	s.mu.Unlock()
}

// Username returns the authenticated username.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// SetAuthenticated records the authenticated username and moves the session to Authenticated status.
func (s *Session) SetAuthenticated(username string) error {
	if err := s.SetStatus(Authenticated); err != nil {
		return err
	}
	s.mu.Lock()
	s.username = username
	s.mu.Unlock()
	return nil
}

// Presence returns the last presence sent by the session peer.
func (s *Session) Presence() *xmpp.Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presence
}

// SetPresence records the last presence sent by the session peer.
func (s *Session) SetPresence(p *xmpp.Presence) {
	s.mu.Lock()
	s.presence = p
	s.mu.Unlock()
}

// IncrementConflictCount increments and returns the number of times a new
// session tried to bind this session resource.
func (s *Session) IncrementConflictCount() int {
	return int(atomic.AddInt32(&s.conflictCount, 1))
}

// IncrementClientPacketCount accounts a stanza received from the peer.
func (s *Session) IncrementClientPacketCount() {
	atomic.AddUint64(&s.clientPackets, 1)
}

// IncrementServerPacketCount accounts a stanza delivered to the peer.
func (s *Session) IncrementServerPacketCount() {
	atomic.AddUint64(&s.serverPackets, 1)
}

// ClientPacketCount returns the number of stanzas received from the peer.
func (s *Session) ClientPacketCount() uint64 {
	return atomic.LoadUint64(&s.clientPackets)
}

// ServerPacketCount returns the number of stanzas delivered to the peer.
func (s *Session) ServerPacketCount() uint64 {
	return atomic.LoadUint64(&s.serverPackets)
}

// StopOfflineFlood marks the offline queue as flushed.
// It returns true only for the first caller.
func (s *Session) StopOfflineFlood() bool {
	return atomic.CompareAndSwapInt32(&s.floodStopped, 0, 1)
}

// IsOfflineFloodStopped tells whether the offline queue has already been flushed.
func (s *Session) IsOfflineFloodStopped() bool {
	return atomic.LoadInt32(&s.floodStopped) == 1
}

// Deliver sends a stanza to the session peer.
func (s *Session) Deliver(stanza xmpp.Stanza) {
	s.conn.Deliver(stanza)
}

// AddCloseListener registers fn to be invoked once the session gets closed.
func (s *Session) AddCloseListener(fn func(*Session)) {
	s.closeListenerMu.Lock()
	s.closeListeners = append(s.closeListeners, fn)
	s.closeListenerMu.Unlock()
}

// Close closes the session connection.
func (s *Session) Close() {
	s.CloseWithError(nil)
}

// CloseWithError closes the session connection sending a stream error first.
func (s *Session) CloseWithError(se *xmpp.StreamError) {
	s.conn.Close(se)
}

func (s *Session) onConnectionClosed() {
	_ = s.SetStatus(Closed)

	s.closeListenerMu.Lock()
	listeners := s.closeListeners
	s.closeListeners = nil
	s.closeListenerMu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}

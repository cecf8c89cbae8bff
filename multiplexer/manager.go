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

// Package multiplexer hosts the client sessions served through remote connection managers.
package multiplexer

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackal-xmpp/cmux/connection"
	"github.com/jackal-xmpp/cmux/session"
	"github.com/jackal-xmpp/cmux/streamrouter"
	"github.com/pkg/errors"
)

var (
	// ErrAccessDenied is returned when a client address fails the access check.
	ErrAccessDenied = errors.New("multiplexer: access denied")

	// ErrMultiplexerUnavailable is returned when a connection manager has no live physical connection.
	ErrMultiplexerUnavailable = errors.New("multiplexer: connection manager unavailable")
)

const heartbeatText = " "

type physicalPool struct {
	mu       sync.RWMutex
	dead     bool
	sessions []*Physical
}

// Manager keeps track of connection manager physical connections and
// the virtual client sessions they host.
type Manager struct {
	serverDomain string
	router       *streamrouter.Router
	access       *AccessChecker
	hbInterval   time.Duration
	logger       kitlog.Logger

	pools sync.Map // domain -> *physicalPool

	mu     sync.RWMutex
	backup connection.Deliverer

	hbStop chan struct{}
	hbDone chan struct{}
}

// NewManager returns a manager hosting client sessions for serverDomain.
func NewManager(serverDomain string, router *streamrouter.Router, access *AccessChecker, heartbeatInterval time.Duration, logger kitlog.Logger) *Manager {
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}
	return &Manager{
		serverDomain: serverDomain,
		router:       router,
		access:       access,
		hbInterval:   heartbeatInterval,
		logger:       kitlog.With(logger, "component", "multiplexer"),
	}
}

// SetBackupDeliverer sets the deliverer used by hosted sessions when no physical connection can be used.
func (m *Manager) SetBackupDeliverer(d connection.Deliverer) {
	m.mu.Lock()
	m.backup = d
	m.mu.Unlock()
}

func (m *Manager) backupDeliverer() connection.Deliverer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backup
}

// Start starts sending heartbeats through every physical connection.
func (m *Manager) Start() {
	m.hbStop = make(chan struct{})
	m.hbDone = make(chan struct{})
	go m.heartbeatLoop(m.hbStop, m.hbDone)

	level.Info(m.logger).Log("msg", "started multiplexer manager", "heartbeat_interval", m.hbInterval)
}

// Stop stops the heartbeat loop.
func (m *Manager) Stop(ctx context.Context) error {
	if m.hbStop == nil {
		return nil
	}
	close(m.hbStop)
	select {
	case <-m.hbDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	level.Info(m.logger).Log("msg", "stopped multiplexer manager")
	return nil
}

// CreateClientSession creates a virtual client session hosted by the domain connection manager.
// An empty clientAddress skips the access check.
func (m *Manager) CreateClientSession(domain, streamID, clientHost, clientAddress string) (*session.Session, error) {
	if len(clientAddress) > 0 && !m.access.IsAllowed(clientAddress) {
		return nil, errors.Wrapf(ErrAccessDenied, "%s", clientAddress)
	}
	if !m.isAvailable(domain) {
		return nil, errors.Wrapf(ErrMultiplexerUnavailable, "%s", domain)
	}
	vc, err := connection.NewVirtual(connection.VirtualConfig{
		StreamID:      streamID,
		ServerDomain:  m.serverDomain,
		ManagerDomain: domain,
		Address:       clientAddress,
	}, m, m.logger)
	if err != nil {
		return nil, err
	}
	if backup := m.backupDeliverer(); backup != nil {
		vc.SetBackupDeliverer(backup)
	}

	sess := session.New(session.StreamID(streamID), vc)
	sess.SetDomain(m.serverDomain)
	if err := m.router.Register(sess.StreamID(), domain, sess); err != nil {
		return nil, err
	}
	// the pool may have been torn down after the availability check
	if !m.isAvailable(domain) {
		m.router.Unregister(sess.StreamID())
		return nil, errors.Wrapf(ErrMultiplexerUnavailable, "%s", domain)
	}
	sess.AddCloseListener(func(s *session.Session) {
		if _, ok := m.router.Unregister(s.StreamID()); ok {
			reportClientSessionClosed(domain)
		}
	})
	reportClientSessionCreated(domain)

	level.Debug(m.logger).Log("msg", "created client session",
		"cm", domain, "stream_id", streamID, "host", clientHost, "address", clientAddress,
	)
	return sess, nil
}

// CloseClientSession closes a hosted client session.
// It returns false if no such session exists.
func (m *Manager) CloseClientSession(domain, streamID string) bool {
	sess, ok := m.router.Lookup(domain, session.StreamID(streamID))
	if !ok {
		return false
	}
	sess.Close()
	return true
}

// ClientSession returns a hosted client session.
func (m *Manager) ClientSession(domain, streamID string) (*session.Session, bool) {
	return m.router.Lookup(domain, session.StreamID(streamID))
}

// SelectDeliverySession picks the physical connection used to reach a client stream.
// Sessions of the same stream stick to the same physical connection while the pool is unchanged.
func (m *Manager) SelectDeliverySession(domain, streamID string) *Physical {
	v, ok := m.pools.Load(domain)
	if !ok {
		return nil
	}
	pool := v.(*physicalPool)
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	n := len(pool.sessions)
	switch {
	case n == 0:
		return nil
	case n == 1:
		return pool.sessions[0]
	case len(streamID) > 0:
		h := fnv.New32a()
		_, _ = h.Write([]byte(streamID))
		return pool.sessions[h.Sum32()%uint32(n)]
	}
	return pool.sessions[rand.Intn(n)]
}

// SelectDeliveryConnection satisfies connection.Selector interface.
func (m *Manager) SelectDeliveryConnection(domain, streamID string) connection.Connection {
	p := m.SelectDeliverySession(domain, streamID)
	if p == nil {
		return nil
	}
	return p.Connection()
}

// Physicals returns a snapshot of the domain physical connections.
func (m *Manager) Physicals(domain string) []*Physical {
	v, ok := m.pools.Load(domain)
	if !ok {
		return nil
	}
	pool := v.(*physicalPool)
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	return append([]*Physical(nil), pool.sessions...)
}

// MultiplexerAvailable registers domain as an available connection manager.
func (m *Manager) MultiplexerAvailable(domain string) {
	m.pools.LoadOrStore(domain, &physicalPool{})
	reportMultiplexerAvailable(domain, true)

	level.Info(m.logger).Log("msg", "connection manager available", "cm", domain)
}

// MultiplexerUnavailable removes the domain connection manager and closes every session it hosted.
func (m *Manager) MultiplexerUnavailable(domain string) {
	var pool *physicalPool
	if v, ok := m.pools.Load(domain); ok {
		pool = v.(*physicalPool)
		pool.mu.Lock()
		pool.dead = true
		m.pools.CompareAndDelete(domain, pool)
		pool.mu.Unlock()
	}
	m.closeDomainSessions(domain)
}

// poolUnavailable tears down the sessions hosted through a dead pool,
// unless a new pool already took over the domain.
func (m *Manager) poolUnavailable(domain string, dead *physicalPool) {
	if v, ok := m.pools.Load(domain); ok && v.(*physicalPool) != dead {
		level.Info(m.logger).Log("msg", "connection manager reconnected during teardown", "cm", domain)
		return
	}
	m.closeDomainSessions(domain)
}

func (m *Manager) closeDomainSessions(domain string) {
	sessions := m.router.UnregisterDomain(domain)
	for _, sess := range sessions {
		sess.Close()
		reportClientSessionClosed(domain)
	}
	reportMultiplexerAvailable(domain, false)

	level.Info(m.logger).Log("msg", "connection manager unavailable", "cm", domain, "closed_sessions", len(sessions))
}

func (m *Manager) isAvailable(domain string) bool {
	v, ok := m.pools.Load(domain)
	if !ok {
		return false
	}
	pool := v.(*physicalPool)
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	return !pool.dead && len(pool.sessions) > 0
}

// AddPhysical adds an authenticated physical connection to its domain pool.
func (m *Manager) AddPhysical(p *Physical) {
	domain := p.Domain()
	for {
		v, _ := m.pools.LoadOrStore(domain, &physicalPool{})
		pool := v.(*physicalPool)

		pool.mu.Lock()
		if pool.dead {
			pool.mu.Unlock()
			continue
		}
		pool.sessions = append(pool.sessions, p)
		first := len(pool.sessions) == 1
		pool.mu.Unlock()

		if first {
			m.MultiplexerAvailable(domain)
		}
		return
	}
}

// RemovePhysical removes a physical connection from its domain pool.
// Removing the last one makes the connection manager unavailable.
func (m *Manager) RemovePhysical(p *Physical) {
	domain := p.Domain()
	v, ok := m.pools.Load(domain)
	if !ok {
		return
	}
	pool := v.(*physicalPool)

	pool.mu.Lock()
	removed := false
	for i, s := range pool.sessions {
		if s == p {
			pool.sessions = append(pool.sessions[:i], pool.sessions[i+1:]...)
			removed = true
			break
		}
	}
	last := removed && len(pool.sessions) == 0
	if last {
		pool.dead = true
		m.pools.CompareAndDelete(domain, pool)
	}
	pool.mu.Unlock()

	if last {
		m.poolUnavailable(domain, pool)
	}
}

func (m *Manager) heartbeatLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	tc := time.NewTicker(m.hbInterval)
	defer tc.Stop()
	for {
		select {
		case <-tc.C:
			m.sendHeartbeats()
		case <-stop:
			return
		}
	}
}

func (m *Manager) sendHeartbeats() {
	m.pools.Range(func(_, v interface{}) bool {
		pool := v.(*physicalPool)
		pool.mu.RLock()
		sessions := append([]*Physical(nil), pool.sessions...)
		pool.mu.RUnlock()

		for _, p := range sessions {
			p.Connection().DeliverRawText(heartbeatText)
			reportHeartbeat(p.Domain())
		}
		return true
	})
}

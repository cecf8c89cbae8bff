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
	"context"
	"net"
	"sync/atomic"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackal-xmpp/cmux/connection"
	"github.com/jackal-xmpp/cmux/runqueue"
	"github.com/jackal-xmpp/cmux/transport"
)

const listenKeepAlive = time.Second * 15

// Listener accepts connection manager connections.
type Listener struct {
	cfg     Config
	manager *Manager
	handler *PacketHandler
	hosts   Hosts
	pool    *runqueue.Pool
	logger  kitlog.Logger

	ln     net.Listener
	active uint32
}

// NewListener returns a connection manager listener.
func NewListener(cfg Config, manager *Manager, handler *PacketHandler, hosts Hosts, pool *runqueue.Pool, logger kitlog.Logger) *Listener {
	return &Listener{
		cfg:     cfg,
		manager: manager,
		handler: handler,
		hosts:   hosts,
		pool:    pool,
		logger:  kitlog.With(logger, "component", "multiplexer"),
	}
}

// Start starts accepting connections.
func (l *Listener) Start(ctx context.Context) error {
	lc := net.ListenConfig{
		KeepAlive: listenKeepAlive,
	}
	ln, err := lc.Listen(ctx, "tcp", l.cfg.ListenAddr)
	if err != nil {
		return err
	}
	l.ln = ln
	atomic.StoreUint32(&l.active, 1)

	go func() {
		for atomic.LoadUint32(&l.active) == 1 {
			conn, err := l.ln.Accept()
			if err != nil {
				continue
			}
			level.Info(l.logger).Log("msg", "received connection manager connection", "remote_address", conn.RemoteAddr().String())

			go l.handleConn(conn)
		}
	}()
	level.Info(l.logger).Log("msg", "accepting connection manager connections", "addr", ln.Addr().String())
	return nil
}

// Stop stops accepting connections.
func (l *Listener) Stop(_ context.Context) error {
	atomic.StoreUint32(&l.active, 0)
	if err := l.ln.Close(); err != nil {
		return err
	}
	level.Info(l.logger).Log("msg", "stopped connection manager listener", "addr", l.cfg.ListenAddr)
	return nil
}

// Addr returns the listener network address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *Listener) handleConn(conn net.Conn) {
	tr := transport.NewSocketTransport(conn, transport.WithIdleTimeout(l.cfg.IdleTimeout))
	rq := runqueue.New("cm:"+conn.RemoteAddr().String(), l.pool, l.logger)

	sc := connection.NewSocket(tr, rq, connection.Options{}, l.logger)
	if backup := l.manager.backupDeliverer(); backup != nil {
		sc.SetBackupDeliverer(backup)
	}
	p := newPhysical(sc, l.manager, l.handler, l.hosts, l.cfg.Secret, l.cfg.MaxStanzaSize, l.logger)
	p.start()
}

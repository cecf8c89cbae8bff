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
	"context"
	"net"
	"sync/atomic"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackal-xmpp/cmux/connection"
	"github.com/jackal-xmpp/cmux/runqueue"
	"github.com/jackal-xmpp/cmux/transport"
	"golang.org/x/time/rate"
)

const listenKeepAlive = time.Second * 15

// Listener accepts client connections.
type Listener struct {
	cfg     Config
	handler *Handler
	hosts   Hosts
	pool    *runqueue.Pool
	logger  kitlog.Logger

	ln     net.Listener
	active uint32
}

// NewListener returns a client listener.
func NewListener(cfg Config, handler *Handler, hosts Hosts, pool *runqueue.Pool, logger kitlog.Logger) *Listener {
	return &Listener{
		cfg:     cfg,
		handler: handler,
		hosts:   hosts,
		pool:    pool,
		logger:  kitlog.With(logger, "component", "c2s"),
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
			level.Debug(l.logger).Log("msg", "received client connection", "remote_address", conn.RemoteAddr().String())

			go l.handleConn(conn)
		}
	}()
	level.Info(l.logger).Log("msg", "accepting client connections", "addr", ln.Addr().String())
	return nil
}

// Stop stops accepting connections.
func (l *Listener) Stop(_ context.Context) error {
	atomic.StoreUint32(&l.active, 0)
	if err := l.ln.Close(); err != nil {
		return err
	}
	level.Info(l.logger).Log("msg", "stopped client listener", "addr", l.cfg.ListenAddr)
	return nil
}

// Addr returns the listener network address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *Listener) handleConn(conn net.Conn) {
	opts := []transport.SocketOption{transport.WithIdleTimeout(l.cfg.IdleTimeout)}
	if l.cfg.ReadRate.Limit > 0 {
		opts = append(opts, transport.WithReadRateLimiter(rate.NewLimiter(rate.Limit(l.cfg.ReadRate.Limit), l.cfg.ReadRate.Burst)))
	}
	tr := transport.NewSocketTransport(conn, opts...)
	rq := runqueue.New("c2s:"+conn.RemoteAddr().String(), l.pool, l.logger)

	sc := connection.NewSocket(tr, rq, connection.Options{SyncWriteTimeout: l.cfg.SyncWriteTimeout}, l.logger)
	stm := newInStream(l.cfg, sc, l.handler, l.hosts, l.logger)
	stm.start()
}

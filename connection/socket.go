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
	"crypto/tls"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackal-xmpp/cmux/log"
	"github.com/jackal-xmpp/cmux/runqueue"
	"github.com/jackal-xmpp/cmux/transport"
	"github.com/jackal-xmpp/cmux/transport/compress"
	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/jackal-xmpp/cmux/xmpp/tokenizer"
)

// Options defines socket connection behavior.
type Options struct {
	// SyncWriteTimeout bounds every transport write.
	SyncWriteTimeout time.Duration
}

// Socket is a connection bound to a network transport.
// Asynchronous writes are serialized through its run queue.
type Socket struct {
	tr        transport.Transport
	rq        *runqueue.RunQueue
	opts      Options
	logger    kitlog.Logger
	stanzaLog bool

	closed int32
	wmu    sync.Mutex

	mu          sync.RWMutex
	backup      Deliverer
	closeLn     func()
	onDelivered func()
}

// NewSocket returns a socket connection writing through rq.
func NewSocket(tr transport.Transport, rq *runqueue.RunQueue, opts Options, logger kitlog.Logger) *Socket {
	if opts.SyncWriteTimeout <= 0 {
		opts.SyncWriteTimeout = DefaultSyncWriteTimeout
	}
	return &Socket{
		tr:        tr,
		rq:        rq,
		opts:      opts,
		logger:    kitlog.With(logger, "addr", addressOf(tr)),
		stanzaLog: log.StanzaLoggingEnabled(),
	}
}

// Deliver satisfies Connection interface.
func (s *Socket) Deliver(stanza xmpp.Stanza) {
	if s.IsClosed() {
		s.deliverBackup(stanza)
		return
	}
	s.rq.Run(func() {
		if s.IsClosed() {
			s.deliverBackup(stanza)
			return
		}
		if err := s.write(stanza.String()); err != nil {
			level.Warn(s.logger).Log("msg", "failed to write stanza", "err", err)
			s.Close(nil)
			s.deliverBackup(stanza)
			return
		}
		if s.stanzaLog {
			level.Debug(s.logger).Log("msg", "SEND", "stanza", stanza.String())
		}
		s.mu.RLock()
		fn := s.onDelivered
		s.mu.RUnlock()
		if fn != nil {
			fn()
		}
	})
}

// DeliverRawText satisfies Connection interface.
func (s *Socket) DeliverRawText(text string) {
	if s.IsClosed() {
		return
	}
	s.rq.Run(func() {
		if s.IsClosed() {
			return
		}
		if err := s.write(text); err != nil {
			level.Warn(s.logger).Log("msg", "failed to write raw text", "err", err)
			s.Close(nil)
		}
	})
}

// DeliverRawTextSync satisfies Connection interface.
func (s *Socket) DeliverRawTextSync(text string) error {
	if s.IsClosed() {
		return ErrClosed
	}
	if err := s.write(text); err != nil {
		s.Close(nil)
		return err
	}
	return nil
}

// Close satisfies Connection interface.
func (s *Socket) Close(streamErr *xmpp.StreamError) {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return
	}
	var sb strings.Builder
	if streamErr != nil {
		sb.WriteString(streamErr.Element().String())
	}
	sb.WriteString(tokenizer.StreamClose)
	if err := s.write(sb.String()); err != nil {
		level.Debug(s.logger).Log("msg", "failed to write stream close", "err", err)
	}
	_ = s.tr.Close()

	s.mu.Lock()
	fn := s.closeLn
	s.closeLn = nil
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// IsClosed satisfies Connection interface.
func (s *Socket) IsClosed() bool {
	return atomic.LoadInt32(&s.closed) == 1
}

// RegisterCloseListener satisfies Connection interface.
// A listener registered on an already closed connection is invoked right away.
func (s *Socket) RegisterCloseListener(fn func()) {
	s.mu.Lock()
	if !s.IsClosed() {
		s.closeLn = fn
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn()
}

// SetBackupDeliverer satisfies Connection interface.
func (s *Socket) SetBackupDeliverer(d Deliverer) {
	s.mu.Lock()
	s.backup = d
	s.mu.Unlock()
}

// OnDelivered satisfies Connection interface.
func (s *Socket) OnDelivered(fn func()) {
	s.mu.Lock()
	s.onDelivered = fn
	s.mu.Unlock()
}

// Address satisfies Connection interface.
func (s *Socket) Address() string {
	return addressOf(s.tr)
}

// IsSecure satisfies Connection interface.
func (s *Socket) IsSecure() bool { return s.tr.IsSecure() }

// IsCompressed satisfies Connection interface.
func (s *Socket) IsCompressed() bool { return s.tr.IsCompressed() }

// StartTLS secures the underlying transport.
func (s *Socket) StartTLS(cfg *tls.Config) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.tr.StartTLS(cfg, false)
}

// EnableCompression activates stream compression on the underlying transport.
func (s *Socket) EnableCompression(lv compress.Level) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.tr.EnableCompression(lv)
}

// Transport returns the underlying transport.
func (s *Socket) Transport() transport.Transport { return s.tr }

// RunQueue returns the queue serializing this connection work.
func (s *Socket) RunQueue() *runqueue.RunQueue { return s.rq }

func (s *Socket) write(text string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	_ = s.tr.SetWriteDeadline(time.Now().Add(s.opts.SyncWriteTimeout))
	defer func() { _ = s.tr.SetWriteDeadline(time.Time{}) }()

	if _, err := s.tr.WriteString(text); err != nil {
		return err
	}
	return s.tr.Flush()
}

func (s *Socket) deliverBackup(stanza xmpp.Stanza) {
	s.mu.RLock()
	d := s.backup
	s.mu.RUnlock()
	if d == nil {
		level.Debug(s.logger).Log("msg", "dropping undeliverable stanza", "name", stanza.Name(), "id", stanza.ID())
		return
	}
	d.Deliver(stanza)
}

func addressOf(tr transport.Transport) string {
	addr := tr.RemoteAddr()
	if addr == nil {
		return ""
	}
	return addr.String()
}

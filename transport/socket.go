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

package transport

import (
	"bufio"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jackal-xmpp/cmux/transport/compress"
	"golang.org/x/time/rate"
)

const writeBuffSize = 4096

// SocketOption configures a socket transport.
type SocketOption func(*socketTransport)

// WithIdleTimeout makes reads fail with ErrIdleTimeout after d of silence.
func WithIdleTimeout(d time.Duration) SocketOption {
	return func(s *socketTransport) { s.idleTimeout = d }
}

// WithReadRateLimiter installs rLim as initial read rate limiter.
func WithReadRateLimiter(rLim *rate.Limiter) SocketOption {
	return func(s *socketTransport) { s.lr.setLimiter(rLim) }
}

type readWriter struct {
	io.Reader
	io.Writer
}

type socketTransport struct {
	mu          sync.RWMutex
	conn        net.Conn
	idleTimeout time.Duration
	lr          *limitedReader
	bw          *bufio.Writer
	rw          io.ReadWriter
	secured     bool
	compressed  bool
	level       compress.Level
}

// NewSocketTransport creates a socket class stream transport.
func NewSocketTransport(conn net.Conn, opts ...SocketOption) Transport {
	s := &socketTransport{}
	s.lr = newLimitedReader(nil)
	for _, opt := range opts {
		opt(s)
	}
	_, s.secured = conn.(*tls.Conn)
	s.setConn(conn)
	return s
}

func (s *socketTransport) setConn(conn net.Conn) {
	s.conn = conn
	s.lr.r = &idleConn{Conn: conn, idleTimeout: s.idleTimeout}
	s.bw = bufio.NewWriterSize(conn, writeBuffSize)
	s.rw = &readWriter{s.lr, s.bw}
}

func (s *socketTransport) Read(p []byte) (n int, err error) {
	s.mu.RLock()
	rw := s.rw
	s.mu.RUnlock()
	return rw.Read(p)
}

func (s *socketTransport) Write(p []byte) (n int, err error) {
	s.mu.RLock()
	rw := s.rw
	s.mu.RUnlock()
	return rw.Write(p)
}

func (s *socketTransport) WriteString(str string) (int, error) {
	s.mu.RLock()
	rw := s.rw
	s.mu.RUnlock()
	n, err := io.Copy(rw, strings.NewReader(str))
	return int(n), err
}

func (s *socketTransport) Close() error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	return conn.Close()
}

func (s *socketTransport) Type() Type {
	return Socket
}

func (s *socketTransport) Flush() error {
	s.mu.RLock()
	bw := s.bw
	s.mu.RUnlock()
	return bw.Flush()
}

func (s *socketTransport) SetWriteDeadline(d time.Time) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	return conn.SetWriteDeadline(d)
}

func (s *socketTransport) SetReadRateLimiter(rLim *rate.Limiter) {
	s.lr.setLimiter(rLim)
}

func (s *socketTransport) StartTLS(cfg *tls.Config, asClient bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secured {
		return
	}
	var conn net.Conn
	if asClient {
		conn = tls.Client(s.conn, cfg)
	} else {
		conn = tls.Server(s.conn, cfg)
	}
	s.setConn(conn)
	s.secured = true
	if s.compressed {
		s.rw = compress.NewZlib(s.rw, s.rw, s.level)
	}
}

func (s *socketTransport) EnableCompression(level compress.Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.compressed || level == compress.NoCompression {
		return
	}
	s.rw = compress.NewZlib(s.rw, s.rw, level)
	s.level = level
	s.compressed = true
}

func (s *socketTransport) IsSecure() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secured
}

func (s *socketTransport) IsCompressed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compressed
}

func (s *socketTransport) RemoteAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.RemoteAddr()
}

func (s *socketTransport) PeerCertificates() []*x509.Certificate {
	s.mu.RLock()
	conn, ok := s.conn.(*tls.Conn)
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return conn.ConnectionState().PeerCertificates
}

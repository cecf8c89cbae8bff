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
	"bytes"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/jackal-xmpp/cmux/connection"
	"github.com/jackal-xmpp/cmux/runqueue"
	"github.com/jackal-xmpp/cmux/session"
	"github.com/jackal-xmpp/cmux/streamrouter"
	"github.com/jackal-xmpp/cmux/transport"
	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/stretchr/testify/require"
)

type localHosts []string

func (h localHosts) IsLocalHost(domain string) bool {
	for _, d := range h {
		if d == domain {
			return true
		}
	}
	return false
}

type clientRecorder struct {
	mu    sync.Mutex
	sess  []*session.Session
	elems []*xmpp.Element
}

func (r *clientRecorder) ProcessElement(sess *session.Session, elem *xmpp.Element) {
	r.mu.Lock()
	r.sess = append(r.sess, sess)
	r.elems = append(r.elems, elem)
	r.mu.Unlock()
}

func (r *clientRecorder) elements() []*xmpp.Element {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*xmpp.Element(nil), r.elems...)
}

type offlineRecorder struct {
	mu   sync.Mutex
	msgs []*xmpp.Message
}

func (r *offlineRecorder) StoreOffline(msg *xmpp.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *offlineRecorder) messages() []*xmpp.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*xmpp.Message(nil), r.msgs...)
}

// peer collects everything written to the remote end of a physical connection.
type peer struct {
	conn net.Conn
	mu   sync.Mutex
	buf  bytes.Buffer
}

func (p *peer) readLoop() {
	b := make([]byte, 4096)
	for {
		n, err := p.conn.Read(b)
		if n > 0 {
			p.mu.Lock()
			p.buf.Write(b[:n])
			p.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (p *peer) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.String()
}

func (p *peer) waitFor(t *testing.T, substr string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(p.String(), substr)
	}, time.Second, time.Millisecond*5, "expected %q in %q", substr, p.String())
}

func newTestManager() *Manager {
	ac, _ := NewAccessChecker(AccessConfig{Deny: []string{"10.0.0.66"}})
	return NewManager("example.com", streamrouter.New(), ac, time.Second, kitlog.NewNopLogger())
}

func newTestPhysical(t *testing.T, m *Manager, h *PacketHandler, domain string) (*Physical, *peer) {
	t.Helper()
	c1, c2 := net.Pipe()
	rq := runqueue.New("test", runqueue.NewPool(4), kitlog.NewNopLogger())
	sc := connection.NewSocket(transport.NewSocketTransport(c1), rq, connection.Options{}, kitlog.NewNopLogger())

	p := newPhysical(sc, m, h, localHosts{"example.com"}, "secret", 0, kitlog.NewNopLogger())
	p.domain = domain
	p.serverDomain = "example.com"
	p.setState(authenticated)

	pr := &peer{conn: c2}
	go pr.readLoop()
	t.Cleanup(func() { _ = c2.Close() })
	return p, pr
}

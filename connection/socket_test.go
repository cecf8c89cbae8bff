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
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/jackal-xmpp/cmux/runqueue"
	"github.com/jackal-xmpp/cmux/transport"
	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/stretchr/testify/require"
)

type deliverRecorder struct {
	mu  sync.Mutex
	got []xmpp.Stanza
}

func (r *deliverRecorder) Deliver(stanza xmpp.Stanza) {
	r.mu.Lock()
	r.got = append(r.got, stanza)
	r.mu.Unlock()
}

func (r *deliverRecorder) stanzas() []xmpp.Stanza {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]xmpp.Stanza(nil), r.got...)
}

func newTestSocket(t *testing.T) (*Socket, net.Conn) {
	t.Helper()
	c1, c2 := net.Pipe()
	rq := runqueue.New("test", runqueue.NewPool(4), kitlog.NewNopLogger())
	s := NewSocket(transport.NewSocketTransport(c1), rq, Options{SyncWriteTimeout: time.Second}, kitlog.NewNopLogger())
	return s, c2
}

func readN(t *testing.T, c net.Conn, n int) string {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(time.Second))
	p := make([]byte, n)
	br := bufio.NewReader(c)
	read := 0
	for read < n {
		m, err := br.Read(p[read:])
		require.Nil(t, err)
		read += m
	}
	return string(p)
}

func TestSocket_Deliver(t *testing.T) {
	// given
	s, peer := newTestSocket(t)
	defer func() { _ = peer.Close() }()

	var delivered int32
	s.OnDelivered(func() { atomic.AddInt32(&delivered, 1) })

	msg := xmpp.NewMessageType("m1", xmpp.ChatType)

	// when
	s.Deliver(msg)
	got := readN(t, peer, len(msg.String()))

	// then
	require.Equal(t, msg.String(), got)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&delivered) == 1 }, time.Second, time.Millisecond*5)
}

func TestSocket_Close(t *testing.T) {
	// given
	s, peer := newTestSocket(t)
	defer func() { _ = peer.Close() }()

	var closed int32
	s.RegisterCloseListener(func() { atomic.AddInt32(&closed, 1) })

	expected := xmpp.ErrStreamConflict.Element().String() + "</stream:stream>"

	// when
	done := make(chan string)
	go func() { done <- readN(t, peer, len(expected)) }()

	s.Close(xmpp.ErrStreamConflict)
	s.Close(nil)

	// then
	require.Equal(t, expected, <-done)
	require.True(t, s.IsClosed())
	require.Equal(t, int32(1), atomic.LoadInt32(&closed))
	require.Equal(t, ErrClosed, s.DeliverRawTextSync("<presence/>"))
}

func TestSocket_DeliverAfterCloseUsesBackup(t *testing.T) {
	// given
	s, peer := newTestSocket(t)
	_ = peer.Close()

	backup := &deliverRecorder{}
	s.SetBackupDeliverer(backup)
	s.Close(nil)

	// when
	s.Deliver(xmpp.NewMessageType("m1", xmpp.ChatType))

	// then
	require.Len(t, backup.stanzas(), 1)
	require.Equal(t, "m1", backup.stanzas()[0].ID())
}

func TestSocket_WriteFailureRetriesThroughBackup(t *testing.T) {
	// given
	s, peer := newTestSocket(t)
	_ = peer.Close()

	backup := &deliverRecorder{}
	s.SetBackupDeliverer(backup)

	var closed int32
	s.RegisterCloseListener(func() { atomic.AddInt32(&closed, 1) })

	// when
	s.Deliver(xmpp.NewMessageType("m1", xmpp.ChatType))

	// then
	require.Eventually(t, func() bool { return len(backup.stanzas()) == 1 }, time.Second, time.Millisecond*5)
	require.True(t, s.IsClosed())
	require.Equal(t, int32(1), atomic.LoadInt32(&closed))
}

func TestSocket_CloseListenerAfterClose(t *testing.T) {
	s, peer := newTestSocket(t)
	_ = peer.Close()
	s.Close(nil)

	var called bool
	s.RegisterCloseListener(func() { called = true })

	require.True(t, called)
}

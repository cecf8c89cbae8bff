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
	"fmt"
	"net"
	"testing"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/jackal-xmpp/cmux/runqueue"
	"github.com/jackal-xmpp/cmux/stream"
	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cr3t"

type cmPeer struct {
	t    *testing.T
	conn net.Conn
	rd   *stream.Reader
}

func (c *cmPeer) send(s string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(s))
	require.Nil(c.t, err)
}

func (c *cmPeer) next() *xmpp.Element {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(time.Second * 2))
	elem, err := c.rd.Next()
	require.Nil(c.t, err)
	return elem
}

// nextID skips elements until one identified by id is read.
func (c *cmPeer) nextID(id string) *xmpp.Element {
	c.t.Helper()
	for {
		elem := c.next()
		if elem.ID() == id {
			return elem
		}
	}
}

func (c *cmPeer) openStream(ns string) *xmpp.Element {
	c.t.Helper()
	c.send(`<?xml version='1.0'?><stream:stream xmlns='` + ns + `' xmlns:stream='http://etherx.jabber.org/streams' to='example.com' from='cm.example.com'>`)
	return c.next()
}

type testEnv struct {
	manager *Manager
	clients *clientRecorder
	offline *offlineRecorder
	ln      *Listener
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	m := newTestManager()
	clients := &clientRecorder{}
	offline := &offlineRecorder{}
	h := NewPacketHandler(m, clients, offline, kitlog.NewNopLogger())

	cfg := Config{
		ListenAddr:  "127.0.0.1:0",
		Secret:      testSecret,
		IdleTimeout: time.Minute,
	}
	ln := NewListener(cfg, m, h, localHosts{"example.com"}, runqueue.NewPool(4), kitlog.NewNopLogger())
	require.Nil(t, ln.Start(context.Background()))
	t.Cleanup(func() { _ = ln.Stop(context.Background()) })

	return &testEnv{manager: m, clients: clients, offline: offline, ln: ln}
}

func (env *testEnv) dial(t *testing.T) *cmPeer {
	t.Helper()
	conn, err := net.Dial("tcp", env.ln.Addr().String())
	require.Nil(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &cmPeer{t: t, conn: conn, rd: stream.NewReader(conn, 0)}
}

func (env *testEnv) authenticate(t *testing.T) *cmPeer {
	t.Helper()
	c := env.dial(t)
	hdr := c.openStream(xmpp.ConnectionManagerNamespace)
	require.Equal(t, "stream:stream", hdr.Name())
	require.NotEmpty(t, hdr.ID())

	c.send("<handshake>" + handshakeDigest(hdr.ID(), testSecret) + "</handshake>")
	require.Equal(t, "handshake", c.next().Name())

	require.Eventually(t, func() bool {
		return len(env.manager.Physicals("cm.example.com")) == 1
	}, time.Second, time.Millisecond*5)
	return c
}

func sessionIQ(id, streamID, body string) string {
	return fmt.Sprintf(`<iq id="%s" type="set" from="cm.example.com" to="example.com"><session xmlns="http://jabber.org/protocol/connectionmanager" id="%s">%s</session></iq>`, id, streamID, body)
}

func TestPhysical_Handshake(t *testing.T) {
	env := newTestEnv(t)

	c := env.authenticate(t)
	_ = c

	p := env.manager.Physicals("cm.example.com")[0]
	require.True(t, p.IsAuthenticated())
	require.Equal(t, "example.com", p.ServerDomain())
}

func TestPhysical_HandshakeFailure(t *testing.T) {
	// given
	env := newTestEnv(t)
	c := env.dial(t)
	_ = c.openStream(xmpp.ConnectionManagerNamespace)

	// when
	c.send("<handshake>0000</handshake>")

	// then
	elem := c.next()
	require.Equal(t, "stream:error", elem.Name())
	require.NotNil(t, elem.Child("not-authorized"))
	require.Len(t, env.manager.Physicals("cm.example.com"), 0)
}

func TestPhysical_InvalidNamespace(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)

	hdr := c.openStream(xmpp.ClientNamespace)
	require.Equal(t, "stream:stream", hdr.Name())

	elem := c.next()
	require.Equal(t, "stream:error", elem.Name())
	require.NotNil(t, elem.Child("invalid-namespace"))
}

func TestPhysical_HostUnknown(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)

	c.send(`<stream:stream xmlns='jabber:connectionmanager' xmlns:stream='http://etherx.jabber.org/streams' to='other.org' from='cm.example.com'>`)
	_ = c.next()

	elem := c.next()
	require.Equal(t, "stream:error", elem.Name())
	require.NotNil(t, elem.Child("host-unknown"))
}

func TestPacketHandler_CreateRouteClose(t *testing.T) {
	// given
	env := newTestEnv(t)
	c := env.authenticate(t)

	// when
	c.send(sessionIQ("c1", "client-1", `<create><host name="client.example.net" address="10.0.0.1"/></create>`))

	// then
	res := c.nextID("c1")
	require.Equal(t, xmpp.ResultType, res.Type())

	sess, ok := env.manager.ClientSession("cm.example.com", "client-1")
	require.True(t, ok)
	require.Equal(t, "10.0.0.1", sess.Address())

	// route a client stanza
	c.send(`<route from="cm.example.com" to="example.com" streamid="client-1"><message id="m1" to="bob@example.com"><body>hi</body></message></route>`)
	require.Eventually(t, func() bool { return len(env.clients.elements()) == 1 }, time.Second, time.Millisecond*5)
	require.Equal(t, "m1", env.clients.elements()[0].ID())
	require.Equal(t, uint64(1), sess.ClientPacketCount())

	// close it
	c.send(sessionIQ("c2", "client-1", `<close/>`))
	res = c.nextID("c2")
	require.Equal(t, xmpp.ResultType, res.Type())

	_, ok = env.manager.ClientSession("cm.example.com", "client-1")
	require.False(t, ok)
}

func TestPacketHandler_CreateDenied(t *testing.T) {
	env := newTestEnv(t)
	c := env.authenticate(t)

	c.send(sessionIQ("c1", "client-1", `<create><host name="evil.example.net" address="10.0.0.66"/></create>`))

	res := c.nextID("c1")
	require.Equal(t, xmpp.ErrorType, res.Type())
	require.NotNil(t, res.Child("error").Child("not-allowed"))
}

func TestPacketHandler_UnknownSession(t *testing.T) {
	env := newTestEnv(t)
	c := env.authenticate(t)

	c.send(`<route from="cm.example.com" to="example.com" streamid="nope" id="r1"><message id="m1"/></route>`)
	res := c.nextID("r1")
	require.Equal(t, "route", res.Name())
	require.Equal(t, xmpp.ErrorType, res.Type())
	require.NotNil(t, res.Child("error").Child("item-not-found"))

	c.send(sessionIQ("c1", "nope", `<close/>`))
	res = c.nextID("c1")
	require.NotNil(t, res.Child("error").Child("item-not-found"))
}

func TestPacketHandler_MissingStreamID(t *testing.T) {
	env := newTestEnv(t)
	c := env.authenticate(t)

	c.send(sessionIQ("c1", "", `<create/>`))

	res := c.nextID("c1")
	require.Equal(t, xmpp.ErrorType, res.Type())
	errEl := res.Child("error")
	require.NotNil(t, errEl.Child("bad-request"))
	require.NotNil(t, errEl.ChildNamespace("id-required", xmpp.MultiplexerErrorsNamespace))
}

func TestPacketHandler_FailedStoresOffline(t *testing.T) {
	// given
	env := newTestEnv(t)
	c := env.authenticate(t)
	c.send(sessionIQ("c1", "client-1", `<create/>`))
	_ = c.nextID("c1")

	// when
	c.send(sessionIQ("f1", "client-1", `<failed><message id="m1" type="chat" to="alice@example.com" from="bob@example.com/home"><body>hey</body></message></failed>`))

	// then
	res := c.nextID("f1")
	require.Equal(t, xmpp.ResultType, res.Type())

	msgs := env.offline.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "m1", msgs[0].ID())
}

func TestPacketHandler_FailedRejectsNonMessage(t *testing.T) {
	env := newTestEnv(t)
	c := env.authenticate(t)
	c.send(sessionIQ("c1", "client-1", `<create/>`))
	_ = c.nextID("c1")

	c.send(sessionIQ("f1", "client-1", `<failed><presence/></failed>`))

	res := c.nextID("f1")
	require.Equal(t, xmpp.ErrorType, res.Type())
	require.NotNil(t, res.Child("error").ChildNamespace("unknown-stanza", xmpp.MultiplexerErrorsNamespace))
	require.Len(t, env.offline.messages(), 0)
}

func TestPacketHandler_UnexpectedStanza(t *testing.T) {
	env := newTestEnv(t)
	c := env.authenticate(t)

	c.send(`<message id="m1" from="cm.example.com" to="example.com"/>`)

	res := c.nextID("m1")
	require.Equal(t, xmpp.ErrorType, res.Type())
	require.NotNil(t, res.Child("error").Child("bad-request"))
}

func TestPacketHandler_DisconnectClosesSessions(t *testing.T) {
	// given
	env := newTestEnv(t)
	c := env.authenticate(t)
	c.send(sessionIQ("c1", "client-1", `<create/>`))
	_ = c.nextID("c1")
	sess, _ := env.manager.ClientSession("cm.example.com", "client-1")

	// when
	c.send(`</stream:stream>`)

	// then
	require.Eventually(t, func() bool {
		_, ok := env.manager.ClientSession("cm.example.com", "client-1")
		return !ok
	}, time.Second, time.Millisecond*5)
	require.True(t, sess.Connection().IsClosed())
	require.Len(t, env.manager.Physicals("cm.example.com"), 0)
}

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

package router

import (
	"sync"
	"testing"

	kitlog "github.com/go-kit/log"
	"github.com/jackal-xmpp/cmux/connection"
	"github.com/jackal-xmpp/cmux/session"
	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/jackal-xmpp/cmux/xmpp/jid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu        sync.Mutex
	closed    bool
	delivered []xmpp.Stanza
}

func (c *fakeConn) Deliver(stanza xmpp.Stanza) {
	c.mu.Lock()
	c.delivered = append(c.delivered, stanza)
	c.mu.Unlock()
}
func (c *fakeConn) DeliverRawText(_ string)                   {}
func (c *fakeConn) DeliverRawTextSync(_ string) error         { return nil }
func (c *fakeConn) Close(_ *xmpp.StreamError)                 { c.closed = true }
func (c *fakeConn) IsClosed() bool                            { return c.closed }
func (c *fakeConn) RegisterCloseListener(_ func())            {}
func (c *fakeConn) SetBackupDeliverer(_ connection.Deliverer) {}
func (c *fakeConn) OnDelivered(_ func())                      {}
func (c *fakeConn) Address() string                           { return "127.0.0.1:5222" }
func (c *fakeConn) IsSecure() bool                            { return false }
func (c *fakeConn) IsCompressed() bool                        { return false }

func (c *fakeConn) stanzas() []xmpp.Stanza {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]xmpp.Stanza(nil), c.delivered...)
}

type localHosts []string

func (h localHosts) IsLocalHost(domain string) bool {
	for _, d := range h {
		if d == domain {
			return true
		}
	}
	return false
}

type offlineRecorder struct {
	msgs    []*xmpp.Message
	flushed []*session.Session
}

func (r *offlineRecorder) StoreOffline(msg *xmpp.Message) { r.msgs = append(r.msgs, msg) }

func (r *offlineRecorder) DeliverOffline(sess *session.Session) {
	r.flushed = append(r.flushed, sess)
}

func newTestRouter() (*Router, *offlineRecorder) {
	off := &offlineRecorder{}
	return New(localHosts{"example.com"}, off, kitlog.NewNopLogger()), off
}

func boundSession(t *testing.T, r *Router, fullJID string) (*session.Session, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	sess := session.New(session.NewStreamID(), conn)
	sess.SetJID(jid.MustParse(fullJID))
	require.Nil(t, r.Bind(sess))
	return sess, conn
}

func setPresence(t *testing.T, sess *session.Session, priority string) {
	t.Helper()
	p := stanza(t, `<presence><priority>`+priority+`</priority></presence>`).(*xmpp.Presence)
	sess.SetPresence(p)
}

func stanza(t *testing.T, s string) xmpp.Stanza {
	t.Helper()
	e, err := xmpp.ParseElement(s)
	require.Nil(t, err)
	st, err := xmpp.NewStanzaFromElement(e)
	require.Nil(t, err)
	return st
}

func TestRouter_BindConflict(t *testing.T) {
	// given
	r, _ := newTestRouter()
	sess, _ := boundSession(t, r, "alice@example.com/home")

	// when
	other := session.New(session.NewStreamID(), &fakeConn{})
	other.SetJID(jid.MustParse("alice@example.com/home"))
	err := r.Bind(other)

	// then
	require.Equal(t, ErrResourceConflict, err)
	require.Equal(t, sess, r.LocalSession("alice", "example.com", "home"))
	require.Nil(t, r.Bind(sess))
}

func TestRouter_BindRequiresFullJID(t *testing.T) {
	r, _ := newTestRouter()

	sess := session.New(session.NewStreamID(), &fakeConn{})
	require.Equal(t, ErrNotBound, r.Bind(sess))

	sess.SetJID(jid.MustParse("alice@example.com"))
	require.Equal(t, ErrNotBound, r.Bind(sess))
}

func TestRouter_UnbindOnlyHolder(t *testing.T) {
	// given
	r, _ := newTestRouter()
	sess, _ := boundSession(t, r, "alice@example.com/home")

	stale := session.New(session.NewStreamID(), &fakeConn{})
	stale.SetJID(jid.MustParse("alice@example.com/home"))

	// when
	r.Unbind(stale)

	// then
	require.Equal(t, sess, r.LocalSession("alice", "example.com", "home"))

	r.Unbind(sess)
	require.Nil(t, r.LocalSession("alice", "example.com", "home"))
	require.Len(t, r.Sessions("alice", "example.com"), 0)
}

func TestRouter_RouteFullJID(t *testing.T) {
	// given
	r, off := newTestRouter()
	_, conn := boundSession(t, r, "alice@example.com/home")

	// when
	err := r.Route(stanza(t, `<message to="alice@example.com/home" type="chat"><body>hi</body></message>`))

	// then
	require.Nil(t, err)
	require.Len(t, conn.stanzas(), 1)
	require.Len(t, off.msgs, 0)
}

func TestRouter_RouteFullJIDUnavailableResource(t *testing.T) {
	r, off := newTestRouter()
	boundSession(t, r, "alice@example.com/home")

	err := r.Route(stanza(t, `<message to="alice@example.com/work" type="chat"><body>hi</body></message>`))
	require.Nil(t, err)
	require.Len(t, off.msgs, 1)

	err = r.Route(stanza(t, `<iq id="1" type="get" to="alice@example.com/work"><query xmlns="jabber:iq:version"/></iq>`))
	require.Equal(t, ErrResourceNotFound, err)

	require.Nil(t, r.Route(stanza(t, `<presence to="alice@example.com/work"/>`)))
}

func TestRouter_RouteBareJIDMessage(t *testing.T) {
	// given
	r, off := newTestRouter()
	home, homeConn := boundSession(t, r, "alice@example.com/home")
	work, workConn := boundSession(t, r, "alice@example.com/work")
	_, idleConn := boundSession(t, r, "alice@example.com/idle")
	setPresence(t, home, "1")
	setPresence(t, work, "0")

	// when
	err := r.Route(stanza(t, `<message to="alice@example.com" type="chat"><body>hi</body></message>`))

	// then
	require.Nil(t, err)
	require.Len(t, homeConn.stanzas(), 1)
	require.Len(t, workConn.stanzas(), 1)
	require.Len(t, idleConn.stanzas(), 0)
	require.Len(t, off.msgs, 0)
}

func TestRouter_RouteBareJIDNegativePriority(t *testing.T) {
	r, off := newTestRouter()
	home, homeConn := boundSession(t, r, "alice@example.com/home")
	setPresence(t, home, "-1")

	err := r.Route(stanza(t, `<message to="alice@example.com" type="chat"><body>hi</body></message>`))

	require.Nil(t, err)
	require.Len(t, homeConn.stanzas(), 0)
	require.Len(t, off.msgs, 1)
}

func TestRouter_RouteBareJIDPresenceBroadcast(t *testing.T) {
	r, _ := newTestRouter()
	_, c1 := boundSession(t, r, "alice@example.com/home")
	_, c2 := boundSession(t, r, "alice@example.com/work")

	err := r.Route(stanza(t, `<presence from="bob@example.com/x" to="alice@example.com"/>`))

	require.Nil(t, err)
	require.Len(t, c1.stanzas(), 1)
	require.Len(t, c2.stanzas(), 1)
}

func TestRouter_RouteUnknownUser(t *testing.T) {
	r, off := newTestRouter()

	require.Nil(t, r.Route(stanza(t, `<message to="bob@example.com" type="chat"><body>hi</body></message>`)))
	require.Len(t, off.msgs, 1)

	require.Nil(t, r.Route(stanza(t, `<presence to="bob@example.com"/>`)))

	err := r.Route(stanza(t, `<iq id="1" type="get" to="bob@example.com"><query xmlns="jabber:iq:version"/></iq>`))
	require.Equal(t, ErrUserNotAvailable, err)
}

func TestRouter_RouteRemoteAndServer(t *testing.T) {
	r, _ := newTestRouter()

	err := r.Route(stanza(t, `<message to="bob@jabber.org"><body>hi</body></message>`))
	require.True(t, errors.Is(err, ErrRemoteServerNotFound))

	err = r.Route(stanza(t, `<iq id="1" type="get" to="example.com"><query xmlns="jabber:iq:version"/></iq>`))
	require.Equal(t, ErrServiceUnavailable, err)

	require.Nil(t, r.Route(stanza(t, `<message to="example.com"><body>hi</body></message>`)))
}

func TestRouter_ProcessIQ(t *testing.T) {
	// given
	r, off := newTestRouter()
	r.RegisterIQHandler(Ping{})
	r.RegisterIQHandler(Session{})
	r.RegisterIQHandler(NewOfflineFetch(off))
	sess, conn := boundSession(t, r, "alice@example.com/home")

	// when
	r.ProcessIQ(sess, stanza(t, `<iq id="p1" type="get" to="example.com"><ping xmlns="urn:xmpp:ping"/></iq>`).(*xmpp.IQ))
	r.ProcessIQ(sess, stanza(t, `<iq id="s1" type="set"><session xmlns="urn:ietf:params:xml:ns:xmpp-session"/></iq>`).(*xmpp.IQ))
	r.ProcessIQ(sess, stanza(t, `<iq id="o1" type="get"><offline xmlns="http://jabber.org/protocol/offline"><fetch/></offline></iq>`).(*xmpp.IQ))
	r.ProcessIQ(sess, stanza(t, `<iq id="v1" type="get"><query xmlns="jabber:iq:version"/></iq>`).(*xmpp.IQ))
	r.ProcessIQ(sess, stanza(t, `<iq id="r1" type="result"/>`).(*xmpp.IQ))

	// then
	out := conn.stanzas()
	require.Len(t, out, 4)
	require.Equal(t, "p1", out[0].ID())
	require.Equal(t, xmpp.ResultType, out[0].Type())
	require.Equal(t, xmpp.ResultType, out[1].Type())
	require.Equal(t, xmpp.ResultType, out[2].Type())
	require.Equal(t, xmpp.ErrorType, out[3].Type())
	require.NotNil(t, out[3].Elem().Child("error").ChildNamespace("service-unavailable", xmpp.StanzasNamespace))
	require.Equal(t, []*session.Session{sess}, off.flushed)
}

type failingHandler struct {
	err   error
	panic bool
}

func (h failingHandler) MatchesIQ(_ *xmpp.IQ) bool { return true }

func (h failingHandler) ProcessIQ(_ *session.Session, _ *xmpp.IQ) error {
	if h.panic {
		panic("boom")
	}
	return h.err
}

func TestRouter_ProcessIQErrors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		handler failingHandler
		reason  string
	}{
		{"not authorized", failingHandler{err: errors.Wrap(ErrNotAuthorized, "no jid")}, "not-authorized"},
		{"failure", failingHandler{err: errors.New("storage down")}, "internal-server-error"},
		{"panic", failingHandler{panic: true}, "internal-server-error"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			// given
			r, _ := newTestRouter()
			r.RegisterIQHandler(tc.handler)
			conn := &fakeConn{}
			sess := session.New(session.NewStreamID(), conn)

			// when
			r.ProcessIQ(sess, stanza(t, `<iq id="x" type="get"><query xmlns="jabber:iq:version"/></iq>`).(*xmpp.IQ))

			// then
			out := conn.stanzas()
			require.Len(t, out, 1)
			require.NotNil(t, out[0].Elem().Child("error").ChildNamespace(tc.reason, xmpp.StanzasNamespace))
		})
	}
}

func TestSession_RequiresBoundJID(t *testing.T) {
	r, _ := newTestRouter()
	r.RegisterIQHandler(Session{})
	conn := &fakeConn{}
	sess := session.New(session.NewStreamID(), conn)

	r.ProcessIQ(sess, stanza(t, `<iq id="s1" type="set"><session xmlns="urn:ietf:params:xml:ns:xmpp-session"/></iq>`).(*xmpp.IQ))

	out := conn.stanzas()
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Elem().Child("error").ChildNamespace("not-authorized", xmpp.StanzasNamespace))
}

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

package offline

import (
	"context"
	"sync"
	"testing"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/jackal-xmpp/cmux/connection"
	"github.com/jackal-xmpp/cmux/runqueue"
	"github.com/jackal-xmpp/cmux/session"
	memoryrepository "github.com/jackal-xmpp/cmux/storage/memory"
	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/jackal-xmpp/cmux/xmpp/jid"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu        sync.Mutex
	delivered []xmpp.Stanza
}

func (c *fakeConn) Deliver(stanza xmpp.Stanza) {
	c.mu.Lock()
	c.delivered = append(c.delivered, stanza)
	c.mu.Unlock()
}
func (c *fakeConn) DeliverRawText(_ string)                   {}
func (c *fakeConn) DeliverRawTextSync(_ string) error         { return nil }
func (c *fakeConn) Close(_ *xmpp.StreamError)                 {}
func (c *fakeConn) IsClosed() bool                            { return false }
func (c *fakeConn) RegisterCloseListener(_ func())            {}
func (c *fakeConn) SetBackupDeliverer(_ connection.Deliverer) {}
func (c *fakeConn) OnDelivered(_ func())                      {}
func (c *fakeConn) Address() string                           { return "" }
func (c *fakeConn) IsSecure() bool                            { return false }
func (c *fakeConn) IsCompressed() bool                        { return false }

func (c *fakeConn) stanzas() []xmpp.Stanza {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]xmpp.Stanza(nil), c.delivered...)
}

type routerRecorder struct {
	mu      sync.Mutex
	stanzas []xmpp.Stanza
}

func (r *routerRecorder) Route(stanza xmpp.Stanza) error {
	r.mu.Lock()
	r.stanzas = append(r.stanzas, stanza)
	r.mu.Unlock()
	return nil
}

func (r *routerRecorder) routed() []xmpp.Stanza {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]xmpp.Stanza(nil), r.stanzas...)
}

func chatTo(id, to string) *xmpp.Message {
	msg := xmpp.NewMessageType(id, xmpp.ChatType)
	msg.SetFromJID(jid.MustParse("noelia@example.com/yard"))
	msg.SetToJID(jid.MustParse(to))
	body := xmpp.NewElementName("body")
	body.SetText("hi")
	msg.AppendElement(body)
	return msg
}

func newTestStrategy(queueSize int) (*Strategy, *memoryrepository.Repository) {
	rep := memoryrepository.New()
	return NewStrategy(Config{QueueSize: queueSize}, rep, runqueue.NewPool(2), kitlog.NewNopLogger()), rep
}

func stop(t *testing.T, s *Strategy) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.Nil(t, s.Stop(ctx))
}

func TestStrategy_StoreOffline(t *testing.T) {
	// given
	s, rep := newTestStrategy(10)

	// when
	s.StoreOffline(chatTo("m1", "ortuman@example.com"))
	s.StoreOffline(chatTo("m2", "ortuman@example.com/balcony"))
	stop(t, s)

	// then
	ms, err := rep.FetchOfflineMessages(context.Background(), "ortuman")
	require.Nil(t, err)
	require.Len(t, ms, 2)
	require.NotNil(t, ms[0].ChildNamespace("delay", xmpp.DelayNamespace))
}

func TestStrategy_QuotaBounce(t *testing.T) {
	// given
	s, rep := newTestStrategy(1)
	r := &routerRecorder{}
	s.SetRouter(r)

	// when
	s.StoreOffline(chatTo("m1", "ortuman@example.com"))
	s.StoreOffline(chatTo("m2", "ortuman@example.com"))
	stop(t, s)

	// then
	cnt, _ := rep.CountOfflineMessages(context.Background(), "ortuman")
	require.Equal(t, 1, cnt)

	routed := r.routed()
	require.Len(t, routed, 1)
	require.Equal(t, "m2", routed[0].ID())
	require.Equal(t, xmpp.ErrorType, routed[0].Type())
	require.Equal(t, "noelia@example.com/yard", routed[0].ToJID().String())
	require.NotNil(t, routed[0].Elem().Child("error").Child("service-unavailable"))
}

func TestStrategy_DeliverOfflineOnce(t *testing.T) {
	// given
	s, rep := newTestStrategy(10)
	_ = rep.InsertOfflineMessage(context.Background(), chatTo("m1", "ortuman@example.com"), "ortuman")
	_ = rep.InsertOfflineMessage(context.Background(), chatTo("m2", "ortuman@example.com"), "ortuman")

	conn := &fakeConn{}
	sess := session.New(session.NewStreamID(), conn)
	sess.SetJID(jid.MustParse("ortuman@example.com/balcony"))

	// when
	s.DeliverOffline(sess)
	s.DeliverOffline(sess)
	stop(t, s)

	// then
	require.Len(t, conn.stanzas(), 2)
	require.True(t, sess.IsOfflineFloodStopped())

	cnt, _ := rep.CountOfflineMessages(context.Background(), "ortuman")
	require.Equal(t, 0, cnt)
}

func TestShouldStore(t *testing.T) {
	withChild := func(msg *xmpp.Message, name, ns string) *xmpp.Message {
		msg.AppendElement(xmpp.NewElementNamespace(name, ns))
		return msg
	}
	bare := func(typ string) *xmpp.Message {
		msg := xmpp.NewMessageType("m1", typ)
		msg.SetToJID(jid.MustParse("ortuman@example.com"))
		return msg
	}

	tcs := map[string]struct {
		msg    *xmpp.Message
		stored bool
	}{
		"ChatWithBody":        {msg: chatTo("m1", "ortuman@example.com"), stored: true},
		"NoStoreHint":         {msg: withChild(chatTo("m1", "ortuman@example.com"), "no-store", xmpp.HintsNamespace), stored: false},
		"StoreHint":           {msg: withChild(bare(xmpp.HeadlineType), "store", xmpp.HintsNamespace), stored: true},
		"ChatStateOnly":       {msg: withChild(bare(xmpp.ChatType), "composing", xmpp.ChatStatesNamespace), stored: false},
		"ChatOtherPayload":    {msg: withChild(bare(xmpp.ChatType), "rtt", xmpp.RealTimeTextNamespace), stored: true},
		"EmptyChat":           {msg: bare(xmpp.ChatType), stored: false},
		"GroupChat":           {msg: bare(xmpp.GroupChatType), stored: false},
		"Headline":            {msg: bare(xmpp.HeadlineType), stored: false},
		"Normal":              {msg: bare(xmpp.NormalType), stored: true},
		"ErrorWithoutAMP":     {msg: bare(xmpp.ErrorType), stored: false},
		"ErrorWithAMP":        {msg: withChild(bare(xmpp.ErrorType), "amp", xmpp.AMPNamespace), stored: true},
		"ServerAddressedChat": {msg: withChild(xmpp.NewMessageType("m1", xmpp.NormalType), "x", "urn:test"), stored: false},
	}
	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.stored, ShouldStore(tc.msg))
		})
	}
}

func TestStrategy_DropsUnstorable(t *testing.T) {
	s, rep := newTestStrategy(10)

	msg := xmpp.NewMessageType("m1", xmpp.GroupChatType)
	msg.SetToJID(jid.MustParse("ortuman@example.com"))
	s.StoreOffline(msg)
	stop(t, s)

	cnt, _ := rep.CountOfflineMessages(context.Background(), "ortuman")
	require.Equal(t, 0, cnt)
}

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
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"net"
	"testing"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/jackal-xmpp/cmux/auth"
	"github.com/jackal-xmpp/cmux/host"
	"github.com/jackal-xmpp/cmux/offline"
	"github.com/jackal-xmpp/cmux/router"
	"github.com/jackal-xmpp/cmux/runqueue"
	memoryrepository "github.com/jackal-xmpp/cmux/storage/memory"
	"github.com/jackal-xmpp/cmux/stream"
	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "secret"

func testUsers(t *testing.T) *auth.Users {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.Nil(t, err)
	users, err := auth.NewUsers([]auth.UserConfig{
		{Username: "alice", PasswordHash: string(hash)},
		{Username: "bob", PasswordHash: string(hash)},
	})
	require.Nil(t, err)
	return users
}

type testEnv struct {
	hosts    *host.Hosts
	router   *router.Router
	strategy *offline.Strategy
	rep      *memoryrepository.Repository
	ln       *Listener
}

func newTestEnv(t *testing.T, kickThreshold int, withTLS bool) *testEnv {
	t.Helper()
	hs, err := host.NewHosts(host.Configs{{Domain: "example.com"}})
	require.Nil(t, err)
	if withTLS {
		cer, err := host.SelfSignedCertificate("example.com")
		require.Nil(t, err)
		hs.RegisterHost("example.com", &cer)
	}
	logger := kitlog.NewNopLogger()
	pool := runqueue.NewPool(8)

	rep := memoryrepository.New()
	strategy := offline.NewStrategy(offline.Config{}, rep, pool, logger)
	r := router.New(hs, strategy, logger)
	strategy.SetRouter(r)
	r.RegisterIQHandler(router.Ping{})
	r.RegisterIQHandler(router.Session{})
	r.RegisterIQHandler(router.NewOfflineFetch(strategy))

	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.ResourceConflict.KickThreshold = kickThreshold

	h := NewHandler(cfg.ResourceConflict, testUsers(t), r, strategy, logger)
	ln := NewListener(cfg, h, hs, pool, logger)
	require.Nil(t, ln.Start(context.Background()))
	t.Cleanup(func() { _ = ln.Stop(context.Background()) })

	return &testEnv{hosts: hs, router: r, strategy: strategy, rep: rep, ln: ln}
}

type client struct {
	t    *testing.T
	conn net.Conn
	rd   *stream.Reader
}

func (env *testEnv) dial(t *testing.T) *client {
	t.Helper()
	conn, err := net.Dial("tcp", env.ln.Addr().String())
	require.Nil(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn, rd: stream.NewReader(conn, 0)}
}

func (c *client) send(s string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(s))
	require.Nil(c.t, err)
}

func (c *client) next() *xmpp.Element {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(time.Second * 2))
	elem, err := c.rd.Next()
	require.Nil(c.t, err)
	return elem
}

// nextName skips elements until one named name is read.
func (c *client) nextName(name string) *xmpp.Element {
	c.t.Helper()
	for {
		elem := c.next()
		if elem.Name() == name {
			return elem
		}
	}
}

// expectClose reads until the server closes the stream.
func (c *client) expectClose() {
	c.t.Helper()
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(time.Second * 2))
		_, err := c.rd.Next()
		if err != nil {
			require.Equal(c.t, stream.ErrStreamClosed, err)
			return
		}
	}
}

func (c *client) openStream(to string) (hdr *xmpp.Element, features *xmpp.Element) {
	c.t.Helper()
	c.send(`<?xml version='1.0'?><stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' to='` + to + `' version='1.0'>`)
	hdr = c.next()
	require.Equal(c.t, "stream:stream", hdr.Name())
	return hdr, c.next()
}

func (c *client) startTLS() {
	c.t.Helper()
	c.send(`<starttls xmlns="urn:ietf:params:xml:ns:xmpp-tls"/>`)
	require.Equal(c.t, "proceed", c.next().Name())

	c.conn = tls.Client(c.conn, &tls.Config{ServerName: "example.com", InsecureSkipVerify: true})
	c.rd = stream.NewReader(c.conn, 0)
}

func (c *client) authenticate(username, password string) *xmpp.Element {
	c.t.Helper()
	buf := new(bytes.Buffer)
	buf.WriteByte(0)
	buf.WriteString(username)
	buf.WriteByte(0)
	buf.WriteString(password)
	c.send(`<auth xmlns="urn:ietf:params:xml:ns:xmpp-sasl" mechanism="PLAIN">` + base64.StdEncoding.EncodeToString(buf.Bytes()) + `</auth>`)
	return c.next()
}

func (c *client) bind(resource string) *xmpp.Element {
	c.t.Helper()
	c.send(`<iq id="bind_1" type="set"><bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"><resource>` + resource + `</resource></bind></iq>`)
	return c.nextName("iq")
}

// login authenticates and binds resource, returning a ready to use client.
func (env *testEnv) login(t *testing.T, username, resource string) *client {
	t.Helper()
	c := env.dial(t)
	_, _ = c.openStream("example.com")

	require.Equal(t, "success", c.authenticate(username, testPassword).Name())

	_, features := c.openStream("example.com")
	require.NotNil(t, features.ChildNamespace("bind", xmpp.BindNamespace))

	res := c.bind(resource)
	require.Equal(t, xmpp.ResultType, res.Type())
	return c
}

func mechanisms(features *xmpp.Element) []string {
	mechs := features.ChildNamespace("mechanisms", xmpp.SASLNamespace)
	if mechs == nil {
		return nil
	}
	var ret []string
	for _, m := range mechs.Children("mechanism") {
		ret = append(ret, m.Text())
	}
	return ret
}

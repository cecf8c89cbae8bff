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

package streamrouter

import (
	"fmt"
	"sync"
	"testing"

	"github.com/jackal-xmpp/cmux/connection"
	"github.com/jackal-xmpp/cmux/session"
	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type nopConn struct{}

func (nopConn) Deliver(_ xmpp.Stanza)                     {}
func (nopConn) DeliverRawText(_ string)                   {}
func (nopConn) DeliverRawTextSync(_ string) error         { return nil }
func (nopConn) Close(_ *xmpp.StreamError)                 {}
func (nopConn) IsClosed() bool                            { return false }
func (nopConn) RegisterCloseListener(_ func())            {}
func (nopConn) SetBackupDeliverer(_ connection.Deliverer) {}
func (nopConn) OnDelivered(_ func())                      {}
func (nopConn) Address() string                           { return "" }
func (nopConn) IsSecure() bool                            { return false }
func (nopConn) IsCompressed() bool                        { return false }

func newSession(id string) *session.Session {
	return session.New(session.StreamID(id), nopConn{})
}

func TestRouter_RegisterLookup(t *testing.T) {
	// given
	r := New()
	s1 := newSession("s1")

	// when
	err := r.Register("s1", "cm.example.com", s1)

	// then
	require.Nil(t, err)

	sess, ok := r.Lookup("cm.example.com", "s1")
	require.True(t, ok)
	require.Equal(t, s1, sess)

	_, ok = r.Lookup("other.example.com", "s1")
	require.False(t, ok)

	domain, ok := r.Domain("s1")
	require.True(t, ok)
	require.Equal(t, "cm.example.com", domain)
	require.Equal(t, 1, r.Len())
}

func TestRouter_DuplicateRegister(t *testing.T) {
	r := New()
	require.Nil(t, r.Register("s1", "a.example.com", newSession("s1")))

	err := r.Register("s1", "b.example.com", newSession("s1"))

	require.True(t, errors.Is(err, ErrAlreadyRegistered))
	_, ok := r.Lookup("b.example.com", "s1")
	require.False(t, ok)
	require.Equal(t, 1, r.Len())
}

func TestRouter_Unregister(t *testing.T) {
	// given
	r := New()
	s1 := newSession("s1")
	_ = r.Register("s1", "cm.example.com", s1)

	// when
	sess, ok := r.Unregister("s1")

	// then
	require.True(t, ok)
	require.Equal(t, s1, sess)

	_, ok = r.Lookup("cm.example.com", "s1")
	require.False(t, ok)
	_, ok = r.Domain("s1")
	require.False(t, ok)
	require.Equal(t, 0, r.Len())

	_, ok = r.Unregister("s1")
	require.False(t, ok)
}

func TestRouter_UnregisterDomain(t *testing.T) {
	// given
	r := New()
	_ = r.Register("s1", "cm.example.com", newSession("s1"))
	_ = r.Register("s2", "cm.example.com", newSession("s2"))
	_ = r.Register("s3", "other.example.com", newSession("s3"))

	// when
	removed := r.UnregisterDomain("cm.example.com")

	// then
	require.Len(t, removed, 2)
	require.Len(t, r.Sessions("cm.example.com"), 0)
	_, ok := r.Domain("s1")
	require.False(t, ok)
	_, ok = r.Domain("s2")
	require.False(t, ok)
	require.Equal(t, 1, r.Len())

	// domain can be reused afterwards
	require.Nil(t, r.Register("s4", "cm.example.com", newSession("s4")))
	require.Len(t, r.Sessions("cm.example.com"), 1)
}

func TestRouter_ConcurrentAtomicity(t *testing.T) {
	r := New()
	domains := []string{"a.example.com", "b.example.com", "c.example.com"}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				id := session.StreamID(fmt.Sprintf("%d-%d", w, i))
				domain := domains[(w+i)%len(domains)]
				_ = r.Register(id, domain, session.New(id, nopConn{}))

				switch i % 7 {
				case 0:
					r.Unregister(id)
				case 3:
					r.UnregisterDomain(domain)
				}
			}
		}(w)
	}
	wg.Wait()

	// every global entry belongs to exactly one domain table
	total := 0
	r.global.Range(func(k, v interface{}) bool {
		id := k.(session.StreamID)
		found := 0
		for _, d := range domains {
			if _, ok := r.Lookup(d, id); ok {
				found++
			}
		}
		require.Equal(t, 1, found, "stream %s", id)
		total++
		return true
	})
	sum := 0
	for _, d := range domains {
		for _, sess := range r.Sessions(d) {
			domain, ok := r.Domain(sess.StreamID())
			require.True(t, ok)
			require.Equal(t, d, domain)
			sum++
		}
	}
	require.Equal(t, total, sum)
	require.Equal(t, total, r.Len())
}

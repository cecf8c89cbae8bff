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

// Package streamrouter keeps the stream identifier to session registry.
package streamrouter

import (
	"sync"
	"sync/atomic"

	"github.com/jackal-xmpp/cmux/session"
	"github.com/pkg/errors"
)

// ErrAlreadyRegistered is returned when registering a stream identifier twice.
var ErrAlreadyRegistered = errors.New("streamrouter: stream already registered")

type domainTable struct {
	domain   string
	mu       sync.RWMutex
	dead     bool
	sessions map[session.StreamID]*session.Session
}

// Router maps stream identifiers to their owning domain and session.
// A stream identifier present in the global table is always present in exactly one
// domain table, and both entries are written and removed under that domain lock.
type Router struct {
	global  sync.Map // session.StreamID -> *domainTable
	domains sync.Map // string -> *domainTable
	size    int64
}

// New returns an empty stream router.
func New() *Router {
	return &Router{}
}

// Register associates id with domain and sess.
func (r *Router) Register(id session.StreamID, domain string, sess *session.Session) error {
	for {
		v, _ := r.domains.LoadOrStore(domain, &domainTable{
			domain:   domain,
			sessions: make(map[session.StreamID]*session.Session),
		})
		tbl := v.(*domainTable)

		tbl.mu.Lock()
		if tbl.dead {
			// table removed by a concurrent UnregisterDomain
			tbl.mu.Unlock()
			continue
		}
		if _, loaded := r.global.LoadOrStore(id, tbl); loaded {
			tbl.mu.Unlock()
			return errors.Wrapf(ErrAlreadyRegistered, "%s", id)
		}
		tbl.sessions[id] = sess
		tbl.mu.Unlock()

		n := atomic.AddInt64(&r.size, 1)
		reportRegistrySize(n)
		return nil
	}
}

// Lookup returns the session registered under domain and id.
func (r *Router) Lookup(domain string, id session.StreamID) (*session.Session, bool) {
	v, ok := r.domains.Load(domain)
	if !ok {
		return nil, false
	}
	tbl := v.(*domainTable)
	tbl.mu.RLock()
	defer tbl.mu.RUnlock()
	sess, ok := tbl.sessions[id]
	return sess, ok
}

// Domain returns the domain id is registered under.
func (r *Router) Domain(id session.StreamID) (string, bool) {
	v, ok := r.global.Load(id)
	if !ok {
		return "", false
	}
	return v.(*domainTable).domain, true
}

// Unregister removes id from both registry levels.
func (r *Router) Unregister(id session.StreamID) (*session.Session, bool) {
	v, ok := r.global.Load(id)
	if !ok {
		return nil, false
	}
	tbl := v.(*domainTable)

	tbl.mu.Lock()
	sess, ok := tbl.sessions[id]
	if ok {
		delete(tbl.sessions, id)
		r.global.CompareAndDelete(id, tbl)
	}
	tbl.mu.Unlock()

	if ok {
		n := atomic.AddInt64(&r.size, -1)
		reportRegistrySize(n)
	}
	return sess, ok
}

// UnregisterDomain removes every stream registered under domain, returning their sessions.
func (r *Router) UnregisterDomain(domain string) []*session.Session {
	v, ok := r.domains.Load(domain)
	if !ok {
		return nil
	}
	tbl := v.(*domainTable)

	tbl.mu.Lock()
	tbl.dead = true
	r.domains.CompareAndDelete(domain, tbl)

	ret := make([]*session.Session, 0, len(tbl.sessions))
	for id, sess := range tbl.sessions {
		r.global.CompareAndDelete(id, tbl)
		ret = append(ret, sess)
	}
	tbl.sessions = nil
	tbl.mu.Unlock()

	n := atomic.AddInt64(&r.size, -int64(len(ret)))
	reportRegistrySize(n)
	return ret
}

// Sessions returns a snapshot of the sessions registered under domain.
func (r *Router) Sessions(domain string) []*session.Session {
	v, ok := r.domains.Load(domain)
	if !ok {
		return nil
	}
	tbl := v.(*domainTable)
	tbl.mu.RLock()
	defer tbl.mu.RUnlock()

	ret := make([]*session.Session, 0, len(tbl.sessions))
	for _, sess := range tbl.sessions {
		ret = append(ret, sess)
	}
	return ret
}

// Len returns the total number of registered streams.
func (r *Router) Len() int {
	return int(atomic.LoadInt64(&r.size))
}

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

// Package router routes stanzas among the sessions bound to local hosts.
package router

import (
	"fmt"
	"sync"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackal-xmpp/cmux/session"
	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/pkg/errors"
)

// Hosts tells whether a domain is served locally.
type Hosts interface {
	IsLocalHost(domain string) bool
}

// OfflineStore keeps messages addressed to unavailable users.
type OfflineStore interface {
	StoreOffline(msg *xmpp.Message)
}

// IQHandler processes IQ stanzas addressed to the server on behalf of a session.
type IQHandler interface {
	// MatchesIQ returns whether or not iq should be processed by the handler.
	MatchesIQ(iq *xmpp.IQ) bool

	// ProcessIQ processes iq replying to sess.
	ProcessIQ(sess *session.Session, iq *xmpp.IQ) error
}

// Router is the local routing table: bare JID -> resource -> session.
type Router struct {
	hosts   Hosts
	offline OfflineStore
	logger  kitlog.Logger

	mu    sync.RWMutex
	users map[string]*resources

	hMu        sync.RWMutex
	iqHandlers []IQHandler
}

// New returns an initialized Router.
func New(hosts Hosts, offline OfflineStore, logger kitlog.Logger) *Router {
	return &Router{
		hosts:   hosts,
		offline: offline,
		users:   make(map[string]*resources),
		logger:  kitlog.With(logger, "component", "router"),
	}
}

// RegisterIQHandler appends h to the server IQ handler chain.
func (r *Router) RegisterIQHandler(h IQHandler) {
	r.hMu.Lock()
	r.iqHandlers = append(r.iqHandlers, h)
	r.hMu.Unlock()
}

// Bind registers sess under its full JID.
// ErrResourceConflict is returned if a different session holds the same resource.
func (r *Router) Bind(sess *session.Session) error {
	j := sess.JID()
	if j == nil || !j.IsFullWithUser() {
		return ErrNotBound
	}
	bare := j.ToBareJID().String()

	r.mu.Lock()
	rs := r.users[bare]
	if rs == nil {
		rs = &resources{}
		r.users[bare] = rs
	}
	err := rs.bind(sess)
	r.mu.Unlock()

	if err != nil {
		return err
	}
	reportBound()
	level.Debug(r.logger).Log("msg", "bound session", "jid", j.String(), "stream_id", sess.StreamID())
	return nil
}

// Unbind removes sess from the routing table.
// A session that no longer holds its resource is left untouched.
func (r *Router) Unbind(sess *session.Session) {
	j := sess.JID()
	if j == nil {
		return
	}
	bare := j.ToBareJID().String()

	r.mu.Lock()
	rs := r.users[bare]
	if rs == nil || !rs.unbind(sess) {
		r.mu.Unlock()
		return
	}
	if rs.len() == 0 {
		delete(r.users, bare)
	}
	r.mu.Unlock()

	reportUnbound()
	level.Debug(r.logger).Log("msg", "unbound session", "jid", j.String(), "stream_id", sess.StreamID())
}

// LocalSession returns the session bound to username and resource, or nil.
func (r *Router) LocalSession(username, domain, resource string) *session.Session {
	rs := r.userResources(username + "@" + domain)
	if rs == nil {
		return nil
	}
	return rs.session(resource)
}

// Sessions returns every session bound by username at domain.
func (r *Router) Sessions(username, domain string) []*session.Session {
	rs := r.userResources(username + "@" + domain)
	if rs == nil {
		return nil
	}
	return rs.all()
}

// Route delivers stanza to its local destination.
// Messages addressed to unavailable users are handed to the offline store.
func (r *Router) Route(stanza xmpp.Stanza) error {
	err := r.route(stanza)
	reportRouted(stanza.Name(), err)
	return err
}

func (r *Router) route(stanza xmpp.Stanza) error {
	toJID := stanza.ToJID()
	if toJID == nil {
		return ErrServiceUnavailable
	}
	if !r.hosts.IsLocalHost(toJID.Domain()) {
		return ErrRemoteServerNotFound
	}
	if toJID.IsServer() {
		if _, ok := stanza.(*xmpp.IQ); ok {
			return ErrServiceUnavailable
		}
		return nil
	}
	rs := r.userResources(toJID.ToBareJID().String())
	if rs == nil {
		switch st := stanza.(type) {
		case *xmpp.Message:
			r.offline.StoreOffline(st)
			return nil
		case *xmpp.Presence:
			return nil
		}
		return ErrUserNotAvailable
	}
	return rs.route(stanza, r.offline)
}

// ProcessIQ dispatches an IQ addressed to the server to the first matching handler.
// Any reply is delivered back to sess.
func (r *Router) ProcessIQ(sess *session.Session, iq *xmpp.IQ) {
	if iq.IsResult() || iq.IsError() {
		return
	}
	h := r.iqHandler(iq)
	if h == nil {
		sess.Deliver(xmpp.ServiceUnavailableError(iq))
		return
	}
	defer func() {
		if rc := recover(); rc != nil {
			level.Error(r.logger).Log("msg", "panic processing iq", "id", iq.ID(), "err", fmt.Sprintf("%v", rc))
			sess.Deliver(xmpp.InternalServerError(iq))
		}
	}()
	err := h.ProcessIQ(sess, iq)
	switch {
	case err == nil:
		return
	case errors.Is(err, ErrNotAuthorized):
		if sess.Connection().IsClosed() {
			return
		}
		sess.Deliver(xmpp.NotAuthorizedError(iq))
	default:
		level.Warn(r.logger).Log("msg", "failed to process iq", "id", iq.ID(), "err", err)
		sess.Deliver(xmpp.InternalServerError(iq))
	}
}

func (r *Router) iqHandler(iq *xmpp.IQ) IQHandler {
	r.hMu.RLock()
	defer r.hMu.RUnlock()
	for _, h := range r.iqHandlers {
		if h.MatchesIQ(iq) {
			return h
		}
	}
	return nil
}

func (r *Router) userResources(bare string) *resources {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.users[bare]
}

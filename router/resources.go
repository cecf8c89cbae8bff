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

	"github.com/jackal-xmpp/cmux/session"
	"github.com/jackal-xmpp/cmux/xmpp"
)

type resources struct {
	mu       sync.RWMutex
	sessions []*session.Session
}

func (r *resources) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *resources) bind(sess *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := sess.JID().Resource()
	for _, s := range r.sessions {
		if s.JID().Resource() != res {
			continue
		}
		if s == sess {
			return nil
		}
		return ErrResourceConflict
	}
	r.sessions = append(r.sessions, sess)
	return nil
}

// unbind removes sess, but only if it is still the resource holder.
func (r *resources) unbind(sess *session.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.sessions {
		if s != sess {
			continue
		}
		r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
		return true
	}
	return false
}

func (r *resources) session(res string) *session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.JID().Resource() == res {
			return s
		}
	}
	return nil
}

func (r *resources) all() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]*session.Session, len(r.sessions))
	copy(ret, r.sessions)
	return ret
}

// available returns the sessions eligible for bare JID message delivery:
// those that sent an available presence with non negative priority.
func (r *resources) available() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ret []*session.Session
	for _, s := range r.sessions {
		p := s.Presence()
		if p == nil || !p.IsAvailable() || p.Priority() < 0 {
			continue
		}
		ret = append(ret, s)
	}
	return ret
}

func (r *resources) route(stanza xmpp.Stanza, offline OfflineStore) error {
	toJID := stanza.ToJID()
	if toJID.IsFullWithUser() {
		if s := r.session(toJID.Resource()); s != nil {
			s.Deliver(stanza)
			return nil
		}
		switch st := stanza.(type) {
		case *xmpp.Message:
			offline.StoreOffline(st)
			return nil
		case *xmpp.Presence:
			return nil
		}
		return ErrResourceNotFound
	}
	switch st := stanza.(type) {
	case *xmpp.Message:
		avail := r.available()
		if len(avail) == 0 {
			offline.StoreOffline(st)
			return nil
		}
		for _, s := range avail {
			s.Deliver(stanza)
		}

	case *xmpp.Presence:
		// broadcast to all bound resources
		for _, s := range r.all() {
			s.Deliver(stanza)
		}

	default:
		return ErrServiceUnavailable
	}
	return nil
}

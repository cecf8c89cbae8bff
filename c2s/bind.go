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
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/jackal-xmpp/cmux/router"
	"github.com/jackal-xmpp/cmux/session"
	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/jackal-xmpp/cmux/xmpp/jid"
	"github.com/pkg/errors"
)

func (h *Handler) bind(sess *session.Session, iq *xmpp.IQ) {
	if !iq.IsSet() {
		sess.Deliver(xmpp.BadRequestError(iq))
		return
	}
	bind := iq.Elem().ChildNamespace("bind", xmpp.BindNamespace)

	var resource string
	if resourceElem := bind.Child("resource"); resourceElem != nil && len(resourceElem.Text()) > 0 {
		resource = resourceElem.Text()
	} else {
		resource = uuid.New().String()
	}
	userJID, err := jid.New(sess.Username(), sess.Domain(), resource)
	if err != nil {
		reportBind(false)
		if errors.Is(err, jid.ErrMalformed) {
			sess.Deliver(xmpp.JidMalformedError(iq))
			return
		}
		sess.Deliver(xmpp.BadRequestError(iq))
		return
	}
	// resolve resource conflict
	if prev := h.router.LocalSession(userJID.Node(), userJID.Domain(), userJID.Resource()); prev != nil && prev != sess {
		if !h.kick(prev) {
			reportBind(false)
			sess.Deliver(xmpp.ConflictError(iq))
			return
		}
	}
	sess.SetJID(userJID)
	if err := h.router.Bind(sess); err != nil {
		sess.SetJID(nil)
		reportBind(false)
		if errors.Is(err, router.ErrResourceConflict) {
			sess.Deliver(xmpp.ConflictError(iq))
			return
		}
		sess.Deliver(xmpp.InternalServerError(iq))
		return
	}
	sess.AddCloseListener(h.router.Unbind)
	if sess.Status() == session.Closed {
		h.router.Unbind(sess)
		return
	}
	reportBind(true)

	result := iq.ResultIQ()
	boundElem := xmpp.NewElementNamespace("bind", xmpp.BindNamespace)
	j := xmpp.NewElementName("jid")
	j.SetText(userJID.String())
	boundElem.AppendElement(j)
	result.AppendElement(boundElem)
	sess.Deliver(result)

	level.Info(h.logger).Log("msg", "bound client resource", "stream_id", sess.StreamID(), "jid", userJID.String())
}

// kick closes prev once it accumulated more conflicts than allowed.
// It returns false if prev keeps holding its resource.
func (h *Handler) kick(prev *session.Session) bool {
	threshold := h.cfg.KickThreshold
	if threshold < 0 {
		return false
	}
	if prev.IncrementConflictCount() <= threshold {
		return false
	}
	level.Info(h.logger).Log("msg", "closing session on resource conflict", "stream_id", prev.StreamID(), "jid", prev.JID())

	prev.CloseWithError(xmpp.ErrStreamConflict)
	h.router.Unbind(prev)
	return true
}

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

// Package offline stores the messages addressed to unavailable users and
// delivers them back once the user becomes available.
package offline

import (
	"context"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackal-xmpp/cmux/runqueue"
	"github.com/jackal-xmpp/cmux/session"
	"github.com/jackal-xmpp/cmux/storage/repository"
	"github.com/jackal-xmpp/cmux/xmpp"
)

const (
	// DefaultQueueSize is the default per user offline queue capacity.
	DefaultQueueSize = 2500

	opTimeout = time.Second * 5

	delayText = "Offline Storage"
)

// Config contains offline strategy configuration.
type Config struct {
	QueueSize int `yaml:"queue_size"`
}

// Router routes bounced messages back to their senders.
type Router interface {
	Route(stanza xmpp.Stanza) error
}

// Strategy decides which messages are kept for unavailable users and stores them.
// Storage operations are serialized on a run queue.
type Strategy struct {
	cfg    Config
	rep    repository.Offline
	rq     *runqueue.RunQueue
	router Router
	logger kitlog.Logger
}

// NewStrategy returns a new offline strategy.
func NewStrategy(cfg Config, rep repository.Offline, pool *runqueue.Pool, logger kitlog.Logger) *Strategy {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	logger = kitlog.With(logger, "component", "offline")
	return &Strategy{
		cfg:    cfg,
		rep:    rep,
		rq:     runqueue.New("offline", pool, logger),
		logger: logger,
	}
}

// SetRouter sets the router used to bounce messages exceeding the queue capacity.
func (s *Strategy) SetRouter(r Router) {
	s.rq.Run(func() { s.router = r })
}

// StoreOffline stores msg for later delivery if it qualifies for storage.
func (s *Strategy) StoreOffline(msg *xmpp.Message) {
	if !ShouldStore(msg) {
		reportDropped()
		return
	}
	s.rq.Run(func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := s.storeOffline(ctx, msg); err != nil {
			level.Warn(s.logger).Log("msg", "failed to store offline message", "id", msg.ID(), "err", err)
		}
	})
}

// DeliverOffline delivers every stored message to sess and clears the queue.
// It takes effect only once per session.
func (s *Strategy) DeliverOffline(sess *session.Session) {
	if !sess.StopOfflineFlood() {
		return
	}
	s.rq.Run(func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := s.deliverOffline(ctx, sess); err != nil {
			level.Warn(s.logger).Log("msg", "failed to deliver offline messages", "jid", sess.JID(), "err", err)
		}
	})
}

// Stop stops the strategy once every pending operation completes.
func (s *Strategy) Stop(ctx context.Context) error {
	done := make(chan struct{})
	s.rq.Stop(func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Strategy) storeOffline(ctx context.Context, msg *xmpp.Message) error {
	username := msg.ToJID().Node()

	queueSize, err := s.rep.CountOfflineMessages(ctx, username)
	if err != nil {
		return err
	}
	if queueSize >= s.cfg.QueueSize {
		s.bounce(msg)
		reportBounced()
		return nil
	}
	delayed := xmpp.CopyStanza(msg).(*xmpp.Message)
	delayed.Delay(msg.ToJID().Domain(), delayText)

	if err := s.rep.InsertOfflineMessage(ctx, delayed, username); err != nil {
		return err
	}
	reportStored()

	level.Debug(s.logger).Log("msg", "archived offline message", "id", msg.ID(), "username", username)
	return nil
}

func (s *Strategy) deliverOffline(ctx context.Context, sess *session.Session) error {
	username := sess.Username()
	if j := sess.JID(); j != nil {
		username = j.Node()
	}
	ms, err := s.rep.FetchOfflineMessages(ctx, username)
	if err != nil {
		return err
	}
	if len(ms) == 0 {
		return nil
	}
	for _, m := range ms {
		sess.Deliver(m)
	}
	level.Info(s.logger).Log("msg", "delivered offline messages", "jid", sess.JID(), "count", len(ms))

	return s.rep.DeleteOfflineMessages(ctx, username)
}

func (s *Strategy) bounce(msg *xmpp.Message) {
	if s.router == nil || msg.FromJID() == nil {
		return
	}
	if err := s.router.Route(xmpp.ServiceUnavailableError(msg)); err != nil {
		level.Debug(s.logger).Log("msg", "failed to bounce offline message", "id", msg.ID(), "err", err)
	}
}

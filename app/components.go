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

package app

import (
	"context"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackal-xmpp/cmux/auth"
	"github.com/jackal-xmpp/cmux/c2s"
	"github.com/jackal-xmpp/cmux/config"
	"github.com/jackal-xmpp/cmux/deliverer"
	"github.com/jackal-xmpp/cmux/host"
	"github.com/jackal-xmpp/cmux/multiplexer"
	"github.com/jackal-xmpp/cmux/offline"
	"github.com/jackal-xmpp/cmux/router"
	"github.com/jackal-xmpp/cmux/runqueue"
	"github.com/jackal-xmpp/cmux/storage"
	"github.com/jackal-xmpp/cmux/streamrouter"
)

// startStopFuncs adapts components whose lifecycle doesn't match startStopper.
type startStopFuncs struct {
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

func (f startStopFuncs) Start(ctx context.Context) error {
	if f.start == nil {
		return nil
	}
	return f.start(ctx)
}

func (f startStopFuncs) Stop(ctx context.Context) error {
	if f.stop == nil {
		return nil
	}
	return f.stop(ctx)
}

func (a *Application) initComponents(cfg *config.Config) error {
	logger := a.logger

	// debug HTTP server
	if cfg.Debug.Port > 0 {
		a.registerStartStopper(newHTTPServer(cfg.Debug.Port, logger))
	}
	hosts, err := host.NewHosts(cfg.Hosts)
	if err != nil {
		return err
	}
	users, err := auth.NewUsers(cfg.Users)
	if err != nil {
		return err
	}
	pool := runqueue.NewPool(cfg.RunQueue.Workers)

	// storage
	rep, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return err
	}
	a.registerStartStopper(rep)

	// offline strategy & local router
	strategy := offline.NewStrategy(cfg.Offline, rep, pool, logger)
	a.registerStartStopper(startStopFuncs{stop: strategy.Stop})

	r := router.New(hosts, strategy, logger)
	r.RegisterIQHandler(router.Ping{})
	r.RegisterIQHandler(router.Session{})
	r.RegisterIQHandler(router.NewOfflineFetch(strategy))
	strategy.SetRouter(r)

	clients := c2s.NewHandler(cfg.C2S.ResourceConflict, users, r, strategy, logger)

	// connection manager multiplexing
	if len(cfg.Multiplexer.ListenAddr) > 0 {
		if err := a.initMultiplexer(cfg.Multiplexer, hosts, clients, strategy, pool, logger); err != nil {
			return err
		}
	}
	// direct client connections
	if len(cfg.C2S.ListenAddr) > 0 {
		a.registerStartStopper(c2s.NewListener(cfg.C2S, clients, hosts, pool, logger))
	}
	level.Info(logger).Log("msg", "components initialized", "hosts", len(hosts.HostNames()), "users", len(cfg.Users))
	return nil
}

func (a *Application) initMultiplexer(
	cfg multiplexer.Config,
	hosts *host.Hosts,
	clients multiplexer.ClientHandler,
	strategy *offline.Strategy,
	pool *runqueue.Pool,
	logger kitlog.Logger,
) error {
	access, err := multiplexer.NewAccessChecker(cfg.Access)
	if err != nil {
		return err
	}
	manager := multiplexer.NewManager(hosts.DefaultHostName(), streamrouter.New(), access, cfg.HeartbeatInterval, logger)
	manager.SetBackupDeliverer(deliverer.NewFallback(manager, strategy, logger))

	a.registerStartStopper(startStopFuncs{
		start: func(_ context.Context) error {
			manager.Start()
			return nil
		},
		stop: manager.Stop,
	})
	handler := multiplexer.NewPacketHandler(manager, clients, strategy, logger)
	a.registerStartStopper(multiplexer.NewListener(cfg, manager, handler, hosts, pool, logger))
	return nil
}

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

package sqlrepository

import (
	"context"

	"github.com/jackal-xmpp/cmux/storage/repository"
	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/sony/gobreaker"
)

// breakerOffline fails fast while the database is unreachable.
type breakerOffline struct {
	rep repository.Offline
	cb  *gobreaker.CircuitBreaker
}

func newBreakerOffline(rep repository.Offline, name string, cfg BreakerConfig) *breakerOffline {
	return &breakerOffline{
		rep: rep,
		cb:  gobreaker.NewCircuitBreaker(breakerSettings(name+":offline", cfg)),
	}
}

func (b *breakerOffline) InsertOfflineMessage(ctx context.Context, message *xmpp.Message, username string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.rep.InsertOfflineMessage(ctx, message, username)
	})
	return err
}

func (b *breakerOffline) CountOfflineMessages(ctx context.Context, username string) (int, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.rep.CountOfflineMessages(ctx, username)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (b *breakerOffline) FetchOfflineMessages(ctx context.Context, username string) ([]*xmpp.Message, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.rep.FetchOfflineMessages(ctx, username)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*xmpp.Message), nil
}

func (b *breakerOffline) DeleteOfflineMessages(ctx context.Context, username string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.rep.DeleteOfflineMessages(ctx, username)
	})
	return err
}

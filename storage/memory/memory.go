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

// Package memoryrepository implements an in-memory repository, suitable for tests
// and single node deployments that do not need persistence.
package memoryrepository

import (
	"context"
	"sync"

	"github.com/jackal-xmpp/cmux/storage/repository"
	"github.com/jackal-xmpp/cmux/xmpp"
)

// Repository is an in-memory repository.Repository implementation.
type Repository struct {
	mu sync.RWMutex
	kv map[string][][]byte
}

var _ repository.Repository = (*Repository)(nil)

// New returns an empty in-memory repository.
func New() *Repository {
	return &Repository{kv: make(map[string][][]byte)}
}

// InsertOfflineMessage inserts a new message element into user's offline queue.
func (r *Repository) InsertOfflineMessage(_ context.Context, message *xmpp.Message, username string) error {
	b := []byte(message.String())

	r.mu.Lock()
	defer r.mu.Unlock()
	k := offlineMessageKey(username)
	r.kv[k] = append(r.kv[k], b)
	return nil
}

// CountOfflineMessages returns current length of user's offline queue.
func (r *Repository) CountOfflineMessages(_ context.Context, username string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kv[offlineMessageKey(username)]), nil
}

// FetchOfflineMessages retrieves from storage current user offline queue.
func (r *Repository) FetchOfflineMessages(_ context.Context, username string) ([]*xmpp.Message, error) {
	r.mu.RLock()
	entries := r.kv[offlineMessageKey(username)]
	r.mu.RUnlock()

	var ms []*xmpp.Message
	for _, b := range entries {
		msg, err := xmpp.ParseMessage(string(b))
		if err != nil {
			return nil, err
		}
		ms = append(ms, msg)
	}
	return ms, nil
}

// DeleteOfflineMessages clears a user offline queue.
func (r *Repository) DeleteOfflineMessages(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.kv, offlineMessageKey(username))
	return nil
}

// Start satisfies repository.Repository interface.
func (r *Repository) Start(_ context.Context) error { return nil }

// Stop satisfies repository.Repository interface.
func (r *Repository) Stop(_ context.Context) error { return nil }

func offlineMessageKey(username string) string {
	return "offlineMessages:" + username
}

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

// Package connection provides the transport-facing side of a session:
// a socket backed connection and a virtual one multiplexed through a connection manager.
package connection

import (
	"time"

	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/pkg/errors"
)

// DefaultSyncWriteTimeout bounds synchronous raw text writes.
const DefaultSyncWriteTimeout = 2000 * time.Millisecond

// ErrClosed is returned when writing to a closed connection.
var ErrClosed = errors.New("connection: closed")

// Deliverer accepts stanzas a connection was unable to write.
type Deliverer interface {
	Deliver(stanza xmpp.Stanza)
}

// Connection represents a session's stream endpoint.
type Connection interface {
	// Deliver writes a stanza asynchronously. Undeliverable stanzas are
	// handed to the backup deliverer.
	Deliver(stanza xmpp.Stanza)

	// DeliverRawText writes a pre-serialized fragment asynchronously.
	DeliverRawText(text string)

	// DeliverRawTextSync writes a pre-serialized fragment and waits for the write to complete.
	DeliverRawTextSync(text string) error

	// Close closes the connection, optionally sending a stream error first.
	// Subsequent calls are no-ops.
	Close(streamErr *xmpp.StreamError)

	// IsClosed tells whether the connection has been closed.
	IsClosed() bool

	// RegisterCloseListener sets the function invoked once the connection gets closed.
	RegisterCloseListener(fn func())

	// SetBackupDeliverer sets the deliverer of last resort.
	SetBackupDeliverer(d Deliverer)

	// OnDelivered sets the function invoked after every successful stanza write.
	OnDelivered(fn func())

	// Address returns the peer network address.
	Address() string

	// IsSecure tells whether the stream has been secured.
	IsSecure() bool

	// IsCompressed tells whether stream compression is active.
	IsCompressed() bool
}

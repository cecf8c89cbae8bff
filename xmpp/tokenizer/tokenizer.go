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

// Package tokenizer splits an arbitrarily chunked XMPP byte stream into
// complete top-level stanzas without building a document tree.
package tokenizer

import (
	"unicode/utf8"

	"github.com/pkg/errors"
)

// DefaultMaxBufferSize is the default pending stanza ceiling (1 MiB).
const DefaultMaxBufferSize = 1 << 20

// StreamClose is the synthetic fragment emitted when the peer closes the stream root.
const StreamClose = "</stream:stream>"

var (
	// ErrBufferTooLarge is returned when a pending stanza grows beyond the configured ceiling.
	ErrBufferTooLarge = errors.New("tokenizer: stanza exceeds maximum buffer size")

	// ErrMalformedNesting is returned when closing tags do not match the element being parsed.
	ErrMalformedNesting = errors.New("tokenizer: malformed tag nesting")

	// ErrInvalidChar is returned on characters not allowed in XML documents.
	ErrInvalidChar = errors.New("tokenizer: invalid character")

	// ErrInvalidUTF8 is returned on byte sequences that are not valid UTF-8.
	ErrInvalidUTF8 = errors.New("tokenizer: invalid UTF-8 sequence")
)

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithMaxBufferSize sets the pending stanza ceiling.
func WithMaxBufferSize(size int) Option {
	return func(t *Tokenizer) {
		if size > 0 {
			t.maxSize = size
		}
	}
}

// Tokenizer is an incremental stanza splitter.
// It is not safe for concurrent use: a connection must feed it from a single reader.
type Tokenizer struct {
	m       machine
	buf     []byte
	partial []byte
	maxSize int
	err     error
}

// New returns an initialized Tokenizer.
func New(opts ...Option) *Tokenizer {
	t := &Tokenizer{maxSize: DefaultMaxBufferSize}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Feed consumes a chunk of bytes and returns every stanza completed by it, in order.
// A stream opening tag is returned as a stanza of its own, and the closing of the
// stream root yields StreamClose.
//
// Once an error is returned the tokenizer is unusable, and every subsequent call
// returns the same error. Stanzas completed before the fault are still returned.
func (t *Tokenizer) Feed(p []byte) ([]string, error) {
	if t.err != nil {
		return nil, t.err
	}
	data := p
	if len(t.partial) > 0 {
		data = append(t.partial, p...)
		t.partial = nil
	}
	var out []string
	for i := 0; i < len(data); {
		if !utf8.FullRune(data[i:]) {
			t.partial = append([]byte(nil), data[i:]...)
			break
		}
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			return out, t.fail(ErrInvalidUTF8)
		}
		m, sig, err := t.m.next(r)
		if err != nil {
			return out, t.fail(err)
		}
		t.m = m

		switch sig {
		case sigSkip:
		case sigStreamClose:
			t.buf = t.buf[:0]
			out = append(out, StreamClose)
		case sigStanza:
			t.buf = append(t.buf, data[i:i+size]...)
			out = append(out, string(t.buf))
			t.buf = t.buf[:0]
		default:
			t.buf = append(t.buf, data[i:i+size]...)
			if len(t.buf) > t.maxSize {
				return out, t.fail(ErrBufferTooLarge)
			}
		}
		i += size
	}
	return out, nil
}

// Reset discards any pending data and returns the tokenizer to its initial state.
// It is used on stream restarts (after TLS or SASL negotiation).
func (t *Tokenizer) Reset() {
	t.m = machine{}
	t.buf = t.buf[:0]
	t.partial = nil
	t.err = nil
}

// Buffered returns the number of pending bytes not yet emitted.
func (t *Tokenizer) Buffered() int {
	return len(t.buf) + len(t.partial)
}

func (t *Tokenizer) fail(err error) error {
	t.err = err
	t.buf = nil
	t.partial = nil
	return err
}

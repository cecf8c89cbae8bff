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

// Package stream reads XMPP elements out of a raw byte stream and
// maps stream level faults into stream errors.
package stream

import (
	"io"

	"github.com/jackal-xmpp/cmux/transport"
	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/jackal-xmpp/cmux/xmpp/tokenizer"
	"github.com/pkg/errors"
)

const readBufferSize = 4096

// ErrStreamClosed is returned by Next once the peer closed its stream.
var ErrStreamClosed = errors.New("stream: closed by peer")

// Reader reads top-level elements from an XMPP stream.
// It must be used from a single goroutine.
type Reader struct {
	r             io.Reader
	tk            *tokenizer.Tokenizer
	maxStanzaSize int
	buf           []byte
	pending       []string
	err           error
}

// NewReader returns a reader consuming r.
// A non positive maxStanzaSize applies the tokenizer default ceiling.
func NewReader(r io.Reader, maxStanzaSize int) *Reader {
	return &Reader{
		r:             r,
		tk:            newTokenizer(maxStanzaSize),
		maxStanzaSize: maxStanzaSize,
		buf:           make([]byte, readBufferSize),
	}
}

// Next returns the next stream element.
// A stream header is returned as a 'stream:stream' element with no children.
func (sr *Reader) Next() (*xmpp.Element, error) {
	for len(sr.pending) == 0 {
		if sr.err != nil {
			return nil, sr.err
		}
		n, err := sr.r.Read(sr.buf)
		if n > 0 {
			out, ferr := sr.tk.Feed(sr.buf[:n])
			sr.pending = append(sr.pending, out...)
			if ferr != nil {
				sr.err = ferr
			}
		}
		if err != nil && sr.err == nil {
			sr.err = err
		}
	}
	frag := sr.pending[0]
	sr.pending = sr.pending[1:]

	switch {
	case xmpp.IsStreamClose(frag):
		return nil, ErrStreamClosed
	case xmpp.IsStreamHeader(frag):
		return xmpp.ParseStreamHeader(frag)
	}
	return xmpp.ParseElement(frag)
}

// Reset discards any buffered data and starts reading from r.
// It is used once the underlying transport has been upgraded.
func (sr *Reader) Reset(r io.Reader) {
	sr.r = r
	sr.tk = newTokenizer(sr.maxStanzaSize)
	sr.pending = nil
	sr.err = nil
}

// ToStreamError maps a reader fault into the stream error to be sent to the peer.
// It returns nil for faults that leave no stream to report to, such as a closed connection.
func ToStreamError(err error) *xmpp.StreamError {
	switch errors.Cause(err) {
	case tokenizer.ErrBufferTooLarge:
		return xmpp.ErrStreamPolicyViolation.WithText("stanza too big")
	case transport.ErrReadLimitExceeded:
		return xmpp.ErrStreamPolicyViolation.WithText("rate limit exceeded")
	case tokenizer.ErrMalformedNesting, tokenizer.ErrInvalidChar, tokenizer.ErrInvalidUTF8:
		return xmpp.ErrStreamNotWellFormed
	case xmpp.ErrInvalidXML:
		return xmpp.ErrStreamInvalidXML
	case transport.ErrIdleTimeout:
		return xmpp.ErrStreamConnectionTimeout
	}
	return nil
}

func newTokenizer(maxStanzaSize int) *tokenizer.Tokenizer {
	if maxStanzaSize > 0 {
		return tokenizer.New(tokenizer.WithMaxBufferSize(maxStanzaSize))
	}
	return tokenizer.New()
}

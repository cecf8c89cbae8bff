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

package transport

import (
	"crypto/tls"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/jackal-xmpp/cmux/transport/compress"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestSocket_ReadWrite(t *testing.T) {
	// given
	c1, c2 := net.Pipe()
	defer func() { _ = c2.Close() }()
	tr := NewSocketTransport(c1)

	// when
	go func() {
		_, _ = tr.WriteString("<presence/>")
		_ = tr.Flush()
	}()
	p := make([]byte, len("<presence/>"))
	_, err := io.ReadFull(c2, p)

	// then
	require.Nil(t, err)
	require.Equal(t, "<presence/>", string(p))
	require.Equal(t, Socket, tr.Type())
	require.Equal(t, "socket", tr.Type().String())

	go func() { _, _ = c2.Write([]byte("<iq/>")) }()
	n, err := tr.Read(p)
	require.Nil(t, err)
	require.Equal(t, "<iq/>", string(p[:n]))

	require.Nil(t, tr.Close())
}

func TestSocket_IdleTimeout(t *testing.T) {
	// given
	c1, c2 := net.Pipe()
	defer func() { _ = c2.Close() }()
	tr := NewSocketTransport(c1, WithIdleTimeout(time.Millisecond*20))

	// when
	_, err := tr.Read(make([]byte, 16))

	// then
	require.Equal(t, ErrIdleTimeout, err)
}

func TestSocket_ReadRateLimit(t *testing.T) {
	// given
	c1, c2 := net.Pipe()
	defer func() { _ = c2.Close() }()
	tr := NewSocketTransport(c1, WithReadRateLimiter(rate.NewLimiter(1, 4)))

	go func() { _, _ = c2.Write([]byte("<presence/>")) }()

	// when
	_, err := tr.Read(make([]byte, 32))

	// then
	require.Equal(t, ErrReadLimitExceeded, err)
}

func TestSocket_Upgrades(t *testing.T) {
	// given
	c1, c2 := net.Pipe()
	defer func() { _ = c2.Close() }()
	tr := NewSocketTransport(c1)

	require.False(t, tr.IsSecure())
	require.False(t, tr.IsCompressed())
	require.Nil(t, tr.PeerCertificates())

	// when
	tr.EnableCompression(compress.NoCompression)
	require.False(t, tr.IsCompressed())

	tr.EnableCompression(compress.BestCompression)
	tr.StartTLS(&tls.Config{}, false)

	// then
	require.True(t, tr.IsCompressed())
	require.True(t, tr.IsSecure())
	require.NotNil(t, tr.RemoteAddr())
}

func TestSocket_WriteStringLarge(t *testing.T) {
	// given
	c1, c2 := net.Pipe()
	defer func() { _ = c2.Close() }()
	tr := NewSocketTransport(c1)

	payload := "<message><body>" + strings.Repeat("x", 64*1024) + "</body></message>"

	// when
	errCh := make(chan error, 1)
	go func() {
		n, err := tr.WriteString(payload)
		if err == nil && n != len(payload) {
			err = io.ErrShortWrite
		}
		if err == nil {
			err = tr.Flush()
		}
		errCh <- err
	}()
	p := make([]byte, len(payload))
	_, err := io.ReadFull(c2, p)

	// then
	require.Nil(t, err)
	require.Nil(t, <-errCh)
	require.Equal(t, payload, string(p))
}

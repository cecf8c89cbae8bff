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

package xmpp

import (
	"testing"

	"github.com/jackal-xmpp/cmux/xmpp/jid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestParseElement(t *testing.T) {
	e, err := ParseElement(`<message to='a@b'>
  <body>hello &amp; bye</body>
  <x xmlns="urn:test"><![CDATA[<fake></fake>]]></x>
</message>`)
	require.Nil(t, err)
	require.Equal(t, "message", e.Name())
	require.Equal(t, "", e.Text())
	require.Equal(t, "hello & bye", e.Child("body").Text())
	require.Equal(t, "<fake></fake>", e.ChildNamespace("x", "urn:test").Text())
}

func TestParseElement_Prefixed(t *testing.T) {
	e, err := ParseElement(`<stream:features xmlns:stream="http://etherx.jabber.org/streams"><bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"/></stream:features>`)
	require.Nil(t, err)
	require.Equal(t, "stream:features", e.Name())
	require.Equal(t, StreamNamespace, e.Attribute("xmlns:stream"))
}

func TestParseElement_Invalid(t *testing.T) {
	_, err := ParseElement(`<a><b></a>`)
	require.True(t, errors.Is(err, ErrInvalidXML))

	_, err = ParseElement(`<a>`)
	require.True(t, errors.Is(err, ErrInvalidXML))

	_, err = ParseElement(`<a/><b/>`)
	require.True(t, errors.Is(err, ErrInvalidXML))

	_, err = ParseElement(``)
	require.True(t, errors.Is(err, ErrInvalidXML))
}

func TestParseStreamHeader(t *testing.T) {
	hdr := `<?xml version='1.0'?><stream:stream to='example.com' xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' version='1.0'>`
	require.True(t, IsStreamHeader(hdr))

	e, err := ParseStreamHeader(hdr)
	require.Nil(t, err)
	require.Equal(t, "stream:stream", e.Name())
	require.Equal(t, "example.com", e.To())
	require.Equal(t, ClientNamespace, e.Namespace())

	require.True(t, IsStreamClose("</stream:stream>"))
	require.False(t, IsStreamHeader("<message/>"))
}

func TestRoute(t *testing.T) {
	msg := mustParse(t, `<message to="bob@example.com"><body>hi</body></message>`)

	r := NewRoute(jid.MustParse("example.com"), jid.MustParse("cm.example.com"), "s1", msg)
	require.Equal(t, `<route from="example.com" to="cm.example.com" streamid="s1"><message to="bob@example.com"><body>hi</body></message></route>`, r.String())
	require.Equal(t, "s1", r.StreamID())

	st, err := NewStanzaFromElement(mustParse(t, r.String()))
	require.Nil(t, err)
	parsed, ok := st.(*Route)
	require.True(t, ok)

	id, payload, err := parsed.Unwrap()
	require.Nil(t, err)
	require.Equal(t, "s1", id)
	require.Equal(t, msg.String(), payload.String())

	raw := RouteRawText("example.com", "cm.example.com", "s1", "<proceed/>")
	id, payload, err = UnwrapRoute(mustParse(t, raw))
	require.Nil(t, err)
	require.Equal(t, "s1", id)
	require.Equal(t, "proceed", payload.Name())
}

func TestUnwrapRoute_Errors(t *testing.T) {
	_, _, err := UnwrapRoute(mustParse(t, `<route><message/></route>`))
	require.Equal(t, ErrMissingStreamID, err)

	_, _, err = UnwrapRoute(mustParse(t, `<route streamid="x"><message/><message/></route>`))
	require.Equal(t, ErrRoutePayload, err)

	_, _, err = UnwrapRoute(mustParse(t, `<route streamid="x"/>`))
	require.Equal(t, ErrRoutePayload, err)
}

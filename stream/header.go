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

package stream

import (
	"strings"

	"github.com/jackal-xmpp/cmux/xmpp"
)

// Header describes a stream opening tag.
type Header struct {
	Namespace string
	From      string
	To        string
	ID        string
	Version   string
}

// ParseHeader extracts the header fields from a 'stream:stream' element.
func ParseHeader(elem *xmpp.Element) (Header, bool) {
	if elem.Name() != "stream:stream" {
		return Header{}, false
	}
	return Header{
		Namespace: elem.Namespace(),
		From:      elem.From(),
		To:        elem.To(),
		ID:        elem.ID(),
		Version:   elem.Attribute("version"),
	}, elem.Attribute("xmlns:stream") == xmpp.StreamNamespace
}

// Open returns the serialized stream opening tag, preceded by the XML declaration.
func (h Header) Open() string {
	el := xmpp.NewElementName("stream:stream")
	el.SetNamespace(h.Namespace)
	el.SetAttribute("xmlns:stream", xmpp.StreamNamespace)
	el.SetFrom(h.From)
	el.SetTo(h.To)
	el.SetID(h.ID)
	el.SetAttribute("version", h.Version)

	var sb strings.Builder
	sb.WriteString("<?xml version='1.0'?>")
	el.ToXML(&sb, false)
	return sb.String()
}

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
	"encoding/xml"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidXML is returned when a tokenized stanza cannot be turned into an element.
var ErrInvalidXML = errors.New("xmpp: invalid xml")

// ParseElement parses a single complete top-level XML element,
// as emitted by the stanza tokenizer.
func ParseElement(s string) (*Element, error) {
	dec := xml.NewDecoder(strings.NewReader(s))

	var stack []*Element
	var root *Element
	for {
		t, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(ErrInvalidXML, err.Error())
		}
		switch tk := t.(type) {
		case xml.StartElement:
			if root != nil {
				return nil, errors.Wrap(ErrInvalidXML, "trailing element")
			}
			stack = append(stack, newElementFromToken(tk))

		case xml.CharData:
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				top.text += string(tk)
			}

		case xml.EndElement:
			name := xmlName(tk.Name.Space, tk.Name.Local)
			if len(stack) == 0 || stack[len(stack)-1].name != name {
				return nil, errors.Wrapf(ErrInvalidXML, "unexpected end element </%s>", name)
			}
			el := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				root = el
			} else {
				stack[len(stack)-1].AppendElement(el)
			}
		}
	}
	if root == nil || len(stack) > 0 {
		return nil, errors.Wrap(ErrInvalidXML, "incomplete element")
	}
	trimWhitespaceText(root)
	return root, nil
}

// ParseStreamHeader parses a stream opening tag. A leading XML declaration is skipped.
func ParseStreamHeader(s string) (*Element, error) {
	dec := xml.NewDecoder(strings.NewReader(s))
	for {
		t, err := dec.RawToken()
		if err != nil {
			return nil, errors.Wrap(ErrInvalidXML, "missing stream header")
		}
		if st, ok := t.(xml.StartElement); ok {
			return newElementFromToken(st), nil
		}
	}
}

// IsStreamHeader tells whether a tokenized fragment opens an XMPP stream.
func IsStreamHeader(s string) bool {
	return strings.HasPrefix(s, "<stream:stream") ||
		strings.HasPrefix(s, "<flash:stream") ||
		(strings.HasPrefix(s, "<?xml") && strings.Contains(s, ":stream"))
}

// IsStreamClose tells whether a tokenized fragment closes an XMPP stream.
func IsStreamClose(s string) bool {
	return s == "</stream:stream>"
}

func newElementFromToken(t xml.StartElement) *Element {
	el := &Element{name: xmlName(t.Name.Space, t.Name.Local)}
	for _, a := range t.Attr {
		el.attrs = append(el.attrs, Attribute{Label: xmlName(a.Name.Space, a.Name.Local), Value: a.Value})
	}
	return el
}

// trimWhitespaceText drops pretty-printing whitespace from elements carrying children.
func trimWhitespaceText(e *Element) {
	if len(e.elements) == 0 {
		return
	}
	if len(strings.TrimSpace(e.text)) == 0 {
		e.text = ""
	}
	for _, el := range e.elements {
		trimWhitespaceText(el)
	}
}

func xmlName(space, local string) string {
	if len(space) > 0 {
		return space + ":" + local
	}
	return local
}

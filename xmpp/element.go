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

	"github.com/jackal-xmpp/cmux/pool"
)

var bufPool = pool.NewBufferPool()

// Attribute represents a single XML attribute.
type Attribute struct {
	Label string
	Value string
}

// Element represents a generic and mutable XML node element.
type Element struct {
	name     string
	text     string
	attrs    []Attribute
	elements []*Element
}

// NewElementName creates a mutable XML element instance with a given name.
func NewElementName(name string) *Element {
	return &Element{name: name}
}

// NewElementNamespace creates a mutable XML element instance with a given name and namespace.
func NewElementNamespace(name, namespace string) *Element {
	return &Element{
		name:  name,
		attrs: []Attribute{{Label: "xmlns", Value: namespace}},
	}
}

// Name returns XML node name.
func (e *Element) Name() string { return e.name }

// Text returns XML node text value.
func (e *Element) Text() string { return e.text }

// Attribute returns an attribute value, or an empty string if not present.
func (e *Element) Attribute(label string) string {
	for _, a := range e.attrs {
		if a.Label == label {
			return a.Value
		}
	}
	return ""
}

// Attributes returns all element attributes.
func (e *Element) Attributes() []Attribute { return e.attrs }

// Elements returns all child elements.
func (e *Element) Elements() []*Element { return e.elements }

// ElementCount returns the number of child elements.
func (e *Element) ElementCount() int { return len(e.elements) }

// Child returns the first child element named name.
func (e *Element) Child(name string) *Element {
	for _, el := range e.elements {
		if el.name == name {
			return el
		}
	}
	return nil
}

// ChildNamespace returns the first child element matching name and namespace.
func (e *Element) ChildNamespace(name, namespace string) *Element {
	for _, el := range e.elements {
		if el.name == name && el.Namespace() == namespace {
			return el
		}
	}
	return nil
}

// Children returns all child elements named name.
func (e *Element) Children(name string) []*Element {
	var ret []*Element
	for _, el := range e.elements {
		if el.name == name {
			ret = append(ret, el)
		}
	}
	return ret
}

// Namespace returns 'xmlns' node attribute.
func (e *Element) Namespace() string { return e.Attribute("xmlns") }

// ID returns 'id' node attribute.
func (e *Element) ID() string { return e.Attribute("id") }

// From returns 'from' node attribute.
func (e *Element) From() string { return e.Attribute("from") }

// To returns 'to' node attribute.
func (e *Element) To() string { return e.Attribute("to") }

// Type returns 'type' node attribute.
func (e *Element) Type() string { return e.Attribute("type") }

// IsStanza returns true if element is an XMPP stanza.
func (e *Element) IsStanza() bool {
	switch e.name {
	case IQName, PresenceName, MessageName:
		return true
	}
	return false
}

// IsError returns true if element has a 'type' attribute of value 'error'.
func (e *Element) IsError() bool {
	return e.Type() == ErrorType
}

// SetName sets XML node name.
func (e *Element) SetName(name string) { e.name = name }

// SetText sets XML node text value.
func (e *Element) SetText(text string) { e.text = text }

// SetAttribute sets an attribute value, replacing any previous one with the same label.
func (e *Element) SetAttribute(label, value string) {
	for i := range e.attrs {
		if e.attrs[i].Label == label {
			e.attrs[i].Value = value
			return
		}
	}
	e.attrs = append(e.attrs, Attribute{Label: label, Value: value})
}

// RemoveAttribute removes an attribute.
func (e *Element) RemoveAttribute(label string) {
	for i := range e.attrs {
		if e.attrs[i].Label == label {
			e.attrs = append(e.attrs[:i], e.attrs[i+1:]...)
			return
		}
	}
}

// SetNamespace sets 'xmlns' node attribute.
func (e *Element) SetNamespace(namespace string) { e.SetAttribute("xmlns", namespace) }

// SetID sets 'id' node attribute.
func (e *Element) SetID(id string) { e.SetAttribute("id", id) }

// SetFrom sets 'from' node attribute.
func (e *Element) SetFrom(from string) { e.SetAttribute("from", from) }

// SetTo sets 'to' node attribute.
func (e *Element) SetTo(to string) { e.SetAttribute("to", to) }

// SetType sets 'type' node attribute.
func (e *Element) SetType(tp string) { e.SetAttribute("type", tp) }

// AppendElement appends a new sub element.
func (e *Element) AppendElement(el *Element) {
	e.elements = append(e.elements, el)
}

// AppendElements appends an array of sub elements.
func (e *Element) AppendElements(els []*Element) {
	e.elements = append(e.elements, els...)
}

// RemoveElements removes all sub elements named name.
func (e *Element) RemoveElements(name string) {
	filtered := e.elements[:0]
	for _, el := range e.elements {
		if el.name != name {
			filtered = append(filtered, el)
		}
	}
	e.elements = filtered
}

// ClearElements removes all sub elements.
func (e *Element) ClearElements() { e.elements = nil }

// Copy returns a deep copy of the element.
func (e *Element) Copy() *Element {
	cp := &Element{name: e.name, text: e.text}
	if len(e.attrs) > 0 {
		cp.attrs = make([]Attribute, len(e.attrs))
		copy(cp.attrs, e.attrs)
	}
	if len(e.elements) > 0 {
		cp.elements = make([]*Element, len(e.elements))
		for i, el := range e.elements {
			cp.elements[i] = el.Copy()
		}
	}
	return cp
}

// String returns a string representation of the element.
func (e *Element) String() string {
	buf := bufPool.Get()
	defer bufPool.Put(buf)

	e.ToXML(buf, true)
	return buf.String()
}

// ToXML serializes element to a raw XML representation.
// includeClosing determines if closing tag should be attached.
func (e *Element) ToXML(w io.Writer, includeClosing bool) {
	_, _ = io.WriteString(w, "<")
	_, _ = io.WriteString(w, e.name)

	for _, attr := range e.attrs {
		if len(attr.Value) == 0 {
			continue
		}
		_, _ = io.WriteString(w, " ")
		_, _ = io.WriteString(w, attr.Label)
		_, _ = io.WriteString(w, `="`)
		_ = xml.EscapeText(w, []byte(attr.Value))
		_, _ = io.WriteString(w, `"`)
	}
	if len(e.elements) == 0 && len(e.text) == 0 {
		if includeClosing {
			_, _ = io.WriteString(w, "/>")
		} else {
			_, _ = io.WriteString(w, ">")
		}
		return
	}
	_, _ = io.WriteString(w, ">")

	if len(e.text) > 0 {
		_ = xml.EscapeText(w, []byte(e.text))
	}
	for _, el := range e.elements {
		el.ToXML(w, true)
	}
	if includeClosing {
		_, _ = io.WriteString(w, "</")
		_, _ = io.WriteString(w, e.name)
		_, _ = io.WriteString(w, ">")
	}
}

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

package tokenizer

import (
	"unicode/utf8"
)

type state uint8

const (
	stInit state = iota
	stHead
	stInside
	stPretail
	stTail
	stVerifyClose
	stInsideAttrValue
	stInsideCDATA
	stInsideComment
	stOutside
)

func (s state) String() string {
	switch s {
	case stInit:
		return "INIT"
	case stHead:
		return "HEAD"
	case stInside:
		return "INSIDE"
	case stPretail:
		return "PRETAIL"
	case stTail:
		return "TAIL"
	case stVerifyClose:
		return "VERIFY_CLOSE"
	case stInsideAttrValue:
		return "INSIDE_ATTR_VALUE"
	case stInsideCDATA:
		return "INSIDE_CDATA"
	case stInsideComment:
		return "INSIDE_COMMENT"
	case stOutside:
		return "OUTSIDE"
	}
	return "UNKNOWN"
}

type signal uint8

const (
	// sigNone: the rune belongs to the pending span.
	sigNone signal = iota

	// sigSkip: the rune lies outside any element and is dropped.
	sigSkip

	// sigStanza: the pending span, including this rune, is complete.
	sigStanza

	// sigStreamClose: the stream root was closed; the pending span is replaced
	// by a synthetic "</stream:stream>".
	sigStreamClose
)

const (
	cdataStart = "<![CDATA["

	streamHead      = "stream:stream>"
	flashStreamHead = "flash:stream>"
	xmlDeclHead     = "?xml>"
)

// machine is the character-driven stanza boundary recognizer.
// It is a value type: next never mutates its receiver.
type machine struct {
	st       state
	depth    int
	head     string // root tag name; terminated with '>' once complete
	tailIdx  int    // bytes of head matched by the closing tag
	cdataIdx int    // bytes of the CDATA or comment marker matched
	quote    rune
	rootTag  bool // scanning the root opening tag
}

func (m machine) next(r rune) (machine, signal, error) {
	if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
		return m, sigNone, ErrInvalidChar
	}
	switch m.st {
	case stInit:
		if r == '<' {
			return machine{st: stHead, depth: 1}, sigNone, nil
		}
		return m, sigSkip, nil

	case stHead:
		switch {
		case r == '>' || isSpace(r):
			if len(m.head) == 0 {
				return m, sigNone, ErrMalformedNesting
			}
			name := m.head
			m.head = name + ">"
			m.rootTag = true
			if name[0] == '/' && !isStreamHead(name[1:]+">") {
				return m, sigNone, ErrMalformedNesting
			}
			if r == '>' {
				return m.endRootTag()
			}
			m.st = stInside
			return m, sigNone, nil

		case r == '/' && len(m.head) > 0:
			m.head += ">"
			m.st = stVerifyClose
			return m, sigNone, nil
		}
		m.head += string(r)
		return m, sigNone, nil

	case stInside:
		if m.cdataIdx > 0 {
			if m.cdataIdx == 2 && r == '-' {
				// quotes and markup inside comments are not significant
				m.st = stInsideComment
				m.cdataIdx = 0
				return m, sigNone, nil
			}
			if r == rune(cdataStart[m.cdataIdx]) {
				m.cdataIdx++
				if m.cdataIdx == len(cdataStart) {
					m.st = stInsideCDATA
					m.cdataIdx = 0
				}
				return m, sigNone, nil
			}
			m.cdataIdx = 0
		}
		switch r {
		case '"', '\'':
			m.st = stInsideAttrValue
			m.quote = r
		case '/':
			m.st = stVerifyClose
		case '>':
			if m.rootTag {
				return m.endRootTag()
			}
			m.st = stOutside
		}
		return m, sigNone, nil

	case stInsideAttrValue:
		if r == m.quote {
			m.st = stInside
			m.quote = 0
		}
		return m, sigNone, nil

	case stVerifyClose:
		switch r {
		case '>':
			m.depth--
			m.st = stOutside
			m.rootTag = false
			if m.depth < 1 {
				return machine{}, sigStanza, nil
			}
		case '<':
			m.st = stPretail
		default:
			m.st = stInside
		}
		return m, sigNone, nil

	case stOutside:
		if r == '<' {
			m.st = stPretail
		}
		return m, sigNone, nil

	case stPretail:
		switch r {
		case '/':
			m.depth--
			m.st = stTail
			m.tailIdx = 0
		case '!':
			// comment, CDATA section or declaration
			m.st = stInside
			m.cdataIdx = 2
		case '?':
			m.st = stInside
		default:
			m.depth++
			m.st = stInside
		}
		return m, sigNone, nil

	case stTail:
		if m.depth >= 1 {
			m.st = stInside
			return m, sigNone, nil
		}
		rest := m.head[m.tailIdx:]
		if rest == ">" && isSpace(r) {
			return m, sigNone, nil
		}
		hr, size := utf8.DecodeRuneInString(rest)
		if len(rest) == 0 || hr != r {
			return m, sigNone, ErrMalformedNesting
		}
		m.tailIdx += size
		if m.tailIdx == len(m.head) {
			return machine{}, sigStanza, nil
		}
		return m, sigNone, nil

	case stInsideComment:
		switch {
		case r == '-':
			if m.cdataIdx < 2 {
				m.cdataIdx++
			}
		case r == '>' && m.cdataIdx == 2:
			m.st = stOutside
			m.cdataIdx = 0
		default:
			m.cdataIdx = 0
		}
		return m, sigNone, nil

	case stInsideCDATA:
		switch {
		case r == ']':
			if m.cdataIdx < 2 {
				m.cdataIdx++
			}
		case r == '>' && m.cdataIdx == 2:
			m.st = stOutside
			m.cdataIdx = 0
		default:
			m.cdataIdx = 0
		}
		return m, sigNone, nil
	}
	return m, sigNone, nil
}

// endRootTag handles the '>' terminating the root opening tag.
func (m machine) endRootTag() (machine, signal, error) {
	switch m.head {
	case streamHead, flashStreamHead:
		return machine{}, sigStanza, nil
	case "/" + streamHead, "/" + flashStreamHead:
		return machine{}, sigStreamClose, nil
	case xmlDeclHead:
		// keep the declaration pending so it travels with the stream header
		return machine{}, sigNone, nil
	}
	m.rootTag = false
	m.st = stOutside
	return m, sigNone, nil
}

func isStreamHead(head string) bool {
	return head == streamHead || head == flashStreamHead
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

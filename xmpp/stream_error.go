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

// StreamError represents a "stream:error" element.
type StreamError struct {
	reason string
	text   string
}

var (
	// ErrStreamConflict represents 'conflict' stream error.
	ErrStreamConflict = newStreamError("conflict")

	// ErrStreamConnectionTimeout represents 'connection-timeout' stream error.
	ErrStreamConnectionTimeout = newStreamError("connection-timeout")

	// ErrStreamHostUnknown represents 'host-unknown' stream error.
	ErrStreamHostUnknown = newStreamError("host-unknown")

	// ErrStreamInternalServerError represents 'internal-server-error' stream error.
	ErrStreamInternalServerError = newStreamError("internal-server-error")

	// ErrStreamInvalidFrom represents 'invalid-from' stream error.
	ErrStreamInvalidFrom = newStreamError("invalid-from")

	// ErrStreamInvalidNamespace represents 'invalid-namespace' stream error.
	ErrStreamInvalidNamespace = newStreamError("invalid-namespace")

	// ErrStreamInvalidXML represents 'invalid-xml' stream error.
	ErrStreamInvalidXML = newStreamError("invalid-xml")

	// ErrStreamNotAuthorized represents 'not-authorized' stream error.
	ErrStreamNotAuthorized = newStreamError("not-authorized")

	// ErrStreamNotWellFormed represents 'not-well-formed' stream error.
	ErrStreamNotWellFormed = newStreamError("not-well-formed")

	// ErrStreamPolicyViolation represents 'policy-violation' stream error.
	ErrStreamPolicyViolation = newStreamError("policy-violation")

	// ErrStreamSystemShutdown represents 'system-shutdown' stream error.
	ErrStreamSystemShutdown = newStreamError("system-shutdown")

	// ErrStreamUnsupportedStanzaType represents 'unsupported-stanza-type' stream error.
	ErrStreamUnsupportedStanzaType = newStreamError("unsupported-stanza-type")

	// ErrStreamUndefinedCondition represents 'undefined-condition' stream error.
	ErrStreamUndefinedCondition = newStreamError("undefined-condition")
)

func newStreamError(reason string) *StreamError {
	return &StreamError{reason: reason}
}

// WithText returns a copy of the stream error carrying a descriptive text.
func (se *StreamError) WithText(text string) *StreamError {
	return &StreamError{reason: se.reason, text: text}
}

// Reason returns the stream error defined condition.
func (se *StreamError) Reason() string {
	return se.reason
}

// Element returns StreamError equivalent XML element.
func (se *StreamError) Element() *Element {
	ret := NewElementName("stream:error")
	ret.AppendElement(NewElementNamespace(se.reason, StreamsNamespace))
	if len(se.text) > 0 {
		txt := NewElementNamespace("text", StreamsNamespace)
		txt.SetText(se.text)
		ret.AppendElement(txt)
	}
	return ret
}

// Error satisfies error interface.
func (se *StreamError) Error() string {
	if len(se.text) > 0 {
		return se.reason + ": " + se.text
	}
	return se.reason
}

// Is reports whether target carries the same defined condition.
func (se *StreamError) Is(target error) bool {
	t, ok := target.(*StreamError)
	return ok && t.reason == se.reason
}

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

import "time"

// DelayNamespace is the XEP-0203 delayed delivery namespace.
const DelayNamespace = "urn:xmpp:delay"

// Delay appends a delayed delivery child stamped with the current time.
func (e *Element) Delay(from string, text string) {
	d := NewElementNamespace("delay", DelayNamespace)
	if len(from) > 0 {
		d.SetAttribute("from", from)
	}
	d.SetAttribute("stamp", time.Now().UTC().Format("2006-01-02T15:04:05Z"))

	if len(text) > 0 {
		d.SetText(text)
	}
	e.AppendElement(d)
}

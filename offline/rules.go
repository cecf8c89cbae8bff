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

package offline

import "github.com/jackal-xmpp/cmux/xmpp"

// ShouldStore tells whether a message addressed to an unavailable user is worth storing.
func ShouldStore(msg *xmpp.Message) bool {
	if msg.ToJID() == nil || len(msg.ToJID().Node()) == 0 {
		return false
	}
	if msg.ChildNamespace("no-store", xmpp.HintsNamespace) != nil {
		return false
	}
	if msg.ChildNamespace("store", xmpp.HintsNamespace) != nil {
		return true
	}
	switch msg.Type() {
	case xmpp.GroupChatType, xmpp.HeadlineType:
		return false

	case xmpp.ErrorType:
		return msg.ChildNamespace("amp", xmpp.AMPNamespace) != nil

	case xmpp.ChatType:
		if msg.IsMessageWithBody() {
			return true
		}
		for _, el := range msg.Elements() {
			switch el.Namespace() {
			case xmpp.ChatStatesNamespace, xmpp.HintsNamespace:
				continue
			}
			if el.Name() == "thread" {
				continue
			}
			return true
		}
		return false
	}
	return true
}

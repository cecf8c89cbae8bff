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

package multiplexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccessChecker(t *testing.T) {
	// given
	ac, err := NewAccessChecker(AccessConfig{
		Allow: []string{"10.0.0.0/8", "192.168.1.10", "2001:db8::/32"},
		Deny:  []string{"10.0.1.0/24"},
	})
	require.Nil(t, err)

	// then
	require.True(t, ac.IsAllowed("10.2.3.4"))
	require.True(t, ac.IsAllowed("10.2.3.4:5222"))
	require.True(t, ac.IsAllowed("192.168.1.10"))
	require.True(t, ac.IsAllowed("2001:db8::1"))
	require.False(t, ac.IsAllowed("10.0.1.7"))
	require.False(t, ac.IsAllowed("192.168.1.11"))
	require.False(t, ac.IsAllowed("not-an-ip"))
}

func TestAccessChecker_EmptyAllowList(t *testing.T) {
	ac, err := NewAccessChecker(AccessConfig{Deny: []string{"127.0.0.1"}})
	require.Nil(t, err)

	require.True(t, ac.IsAllowed("8.8.8.8"))
	require.False(t, ac.IsAllowed("127.0.0.1"))
}

func TestAccessChecker_InvalidEntries(t *testing.T) {
	_, err := NewAccessChecker(AccessConfig{Allow: []string{"10.0.0.0/99"}})
	require.NotNil(t, err)

	_, err = NewAccessChecker(AccessConfig{Deny: []string{"localhost"}})
	require.NotNil(t, err)
}

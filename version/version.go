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

// Package version holds the server release version.
package version

import (
	"fmt"
)

// ApplicationVersion is the current server version.
var ApplicationVersion = NewVersion(0, 1, 0)

// SemanticVersion represents a major.minor.patch release number.
type SemanticVersion struct {
	major uint
	minor uint
	patch uint
}

// NewVersion returns a new semantic version.
func NewVersion(major, minor, patch uint) *SemanticVersion {
	return &SemanticVersion{
		major: major,
		minor: minor,
		patch: patch,
	}
}

// String returns the dotted version representation.
func (v *SemanticVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.major, v.minor, v.patch)
}

// Compare returns -1, 0 or 1 depending on whether v is lower, equal or greater than v2.
func (v *SemanticVersion) Compare(v2 *SemanticVersion) int {
	switch {
	case v.major != v2.major:
		return cmp(v.major, v2.major)
	case v.minor != v2.minor:
		return cmp(v.minor, v2.minor)
	default:
		return cmp(v.patch, v2.patch)
	}
}

// IsEqual tells whether v and v2 represent the same version.
func (v *SemanticVersion) IsEqual(v2 *SemanticVersion) bool { return v.Compare(v2) == 0 }

// IsLess tells whether v is lower than v2.
func (v *SemanticVersion) IsLess(v2 *SemanticVersion) bool { return v.Compare(v2) < 0 }

// IsGreater tells whether v is greater than v2.
func (v *SemanticVersion) IsGreater(v2 *SemanticVersion) bool { return v.Compare(v2) > 0 }

func cmp(a, b uint) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

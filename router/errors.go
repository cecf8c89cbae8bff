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

package router

import "github.com/pkg/errors"

var (
	// ErrResourceNotFound will be returned by Route method
	// if destination resource does not match any of user's bound resources.
	ErrResourceNotFound = errors.New("router: resource not found")

	// ErrUserNotAvailable will be returned by Route method
	// if destination user has no available resource.
	ErrUserNotAvailable = errors.New("router: user not available")

	// ErrRemoteServerNotFound will be returned by Route method
	// if destination domain is not served locally.
	ErrRemoteServerNotFound = errors.New("router: remote server not found")

	// ErrServiceUnavailable will be returned by Route method
	// if the stanza cannot be handled on behalf of its destination.
	ErrServiceUnavailable = errors.New("router: service unavailable")

	// ErrResourceConflict will be returned by Bind method
	// if another session already holds the requested resource.
	ErrResourceConflict = errors.New("router: resource conflict")

	// ErrNotBound will be returned by Bind method
	// if the session has no full JID assigned.
	ErrNotBound = errors.New("router: session not bound")

	// ErrNotAuthorized is returned by IQ handlers
	// when the requesting session is not allowed to perform an operation.
	ErrNotAuthorized = errors.New("router: not authorized")
)

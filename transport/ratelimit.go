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

package transport

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// ErrReadLimitExceeded is returned when a peer sends faster than its read rate allows.
var ErrReadLimitExceeded = errors.New("transport: read limit exceeded")

type limitedReader struct {
	r    io.Reader
	rLim atomic.Value
}

func newLimitedReader(r io.Reader) *limitedReader {
	return &limitedReader{r: r}
}

func (lr *limitedReader) Read(p []byte) (n int, err error) {
	n, err = lr.r.Read(p)
	if err != nil {
		return 0, err
	}
	if rLim := lr.limiter(); rLim != nil {
		if !rLim.AllowN(time.Now(), n) {
			return 0, ErrReadLimitExceeded
		}
	}
	return n, nil
}

func (lr *limitedReader) setLimiter(rLim *rate.Limiter) {
	lr.rLim.Store(rLim)
}

func (lr *limitedReader) limiter() *rate.Limiter {
	if v := lr.rLim.Load(); v != nil {
		return v.(*rate.Limiter)
	}
	return nil
}

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

package pool

import (
	"bytes"
	"sync"
)

// DefaultMaxRetainedSize is the largest buffer capacity kept in the pool.
const DefaultMaxRetainedSize = 64 * 1024

// BufferPool represents a buffer pool container.
type BufferPool struct {
	p           sync.Pool
	maxRetained int
}

// NewBufferPool returns a new buffer pool instance.
func NewBufferPool() *BufferPool {
	return NewBufferPoolSize(DefaultMaxRetainedSize)
}

// NewBufferPoolSize returns a new buffer pool that drops buffers whose capacity exceeds maxRetained.
func NewBufferPoolSize(maxRetained int) *BufferPool {
	return &BufferPool{
		p:           sync.Pool{New: func() interface{} { return new(bytes.Buffer) }},
		maxRetained: maxRetained,
	}
}

// Get returns a buffer instance from the pool.
func (bp *BufferPool) Get() *bytes.Buffer {
	return bp.p.Get().(*bytes.Buffer)
}

// Put returns a buffer instance to the pool.
func (bp *BufferPool) Put(buf *bytes.Buffer) {
	if bp.maxRetained > 0 && buf.Cap() > bp.maxRetained {
		return
	}
	buf.Reset()
	bp.p.Put(buf)
}

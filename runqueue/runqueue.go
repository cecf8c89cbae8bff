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

package runqueue

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/semaphore"
)

const (
	idle int32 = iota
	running
)

// Pool bounds the number of run queues being processed at the same time.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool returns a pool allowing up to workers concurrent processors.
// A non positive value defaults to four times the number of CPUs.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU() * 4
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers))}
}

// RunQueue executes posted functions one at a time, in FIFO order,
// on a goroutine borrowed from its pool.
type RunQueue struct {
	name   string
	pool   *Pool
	logger kitlog.Logger

	mu      sync.Mutex
	queue   []func()
	state   int32
	stopped int32
}

// New returns a new run queue bound to pool.
func New(name string, pool *Pool, logger kitlog.Logger) *RunQueue {
	return &RunQueue{
		name:   name,
		pool:   pool,
		logger: logger,
	}
}

// Run enqueues fn. Functions posted after Stop are discarded.
func (q *RunQueue) Run(fn func()) {
	if atomic.LoadInt32(&q.stopped) == 1 {
		return
	}
	q.mu.Lock()
	q.queue = append(q.queue, fn)
	q.mu.Unlock()

	q.schedule()
}

// Stop enqueues a final function after which the queue accepts no more work.
// stopCb, if not nil, is invoked once every previously posted function has run.
func (q *RunQueue) Stop(stopCb func()) {
	q.Run(func() {
		atomic.StoreInt32(&q.stopped, 1)
		if stopCb != nil {
			stopCb()
		}
	})
}

func (q *RunQueue) schedule() {
	if atomic.CompareAndSwapInt32(&q.state, idle, running) {
		go q.process()
	}
}

func (q *RunQueue) process() {
	_ = q.pool.sem.Acquire(context.Background(), 1)
	defer q.pool.sem.Release(1)

process:
	q.drain()

	atomic.StoreInt32(&q.state, idle)
	if q.pending() > 0 {
		// try setting the queue back to running
		if atomic.CompareAndSwapInt32(&q.state, idle, running) {
			goto process
		}
	}
}

func (q *RunQueue) drain() {
	for {
		fn := q.pop()
		if fn == nil {
			return
		}
		q.exec(fn)
	}
}

func (q *RunQueue) exec(fn func()) {
	defer func() {
		if err := recover(); err != nil {
			level.Error(q.logger).Log("msg", "run queue panicked", "queue", q.name, "err", err)
		}
	}()
	fn()
}

func (q *RunQueue) pop() func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if atomic.LoadInt32(&q.stopped) == 1 {
		q.queue = nil
	}
	if len(q.queue) == 0 {
		return nil
	}
	fn := q.queue[0]
	q.queue[0] = nil
	q.queue = q.queue[1:]
	return fn
}

func (q *RunQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

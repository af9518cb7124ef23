// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compositor

import (
	"context"
	"sync"
)

// Dispatcher runs fn on the execution context the compositor requires.
// Dispatch must not block on fn.
type Dispatcher interface {
	Dispatch(fn func())
}

// Inline runs fn immediately on the caller's goroutine.
type Inline struct{}

// Dispatch implements Dispatcher.
func (Inline) Dispatch(fn func()) { fn() }

// MainQueue is an unbounded FIFO drained by a single goroutine, standing in
// for a UI main thread. Dispatch never blocks.
type MainQueue struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	closed  bool
}

// NewMainQueue creates an empty queue. Call Run to start draining it.
func NewMainQueue() *MainQueue {
	return &MainQueue{wake: make(chan struct{}, 1)}
}

// Dispatch implements Dispatcher. Work posted after Close is dropped.
func (q *MainQueue) Dispatch(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued items.
func (q *MainQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain runs every queued item on the caller's goroutine and returns the
// number executed. Items queued while draining run in the same call.
func (q *MainQueue) Drain() int {
	n := 0
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			fn()
		}
		n += len(batch)
	}
}

// Run drains the queue until ctx is done, then runs what is left.
func (q *MainQueue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.Drain()
			return
		case <-q.wake:
			q.Drain()
		}
	}
}

// Close stops accepting work. Items already queued can still be drained.
func (q *MainQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

var (
	_ Dispatcher = Inline{}
	_ Dispatcher = (*MainQueue)(nil)
)

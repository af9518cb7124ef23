// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package compositor models the host display pipeline's texture registry.
//
// The host UI pulls pixels from registered RenderTargets by opaque handle.
// The surface host registers a target once it is attached to an engine,
// signals FrameAvailable whenever the engine reports a new frame, and
// unregisters the handle before the target is released.
package compositor

import (
	"image"
	"sync"
	"sync/atomic"

	"github.com/gogpu/surfacehost/target"
)

// Handle is the opaque id the display pipeline uses to pull pixels.
// Zero means "not registered".
type Handle int64

// Registry assigns handles to render targets for compositor consumption.
type Registry interface {
	// Register makes t visible to the compositor and returns its handle.
	Register(t *target.RenderTarget) Handle

	// Unregister removes a handle. Unknown handles are ignored.
	Unregister(h Handle)

	// FrameAvailable tells the compositor that h has fresh pixels.
	// Unknown handles are ignored.
	FrameAvailable(h Handle)
}

// FrameFunc observes frame notifications delivered to a Table.
type FrameFunc func(h Handle, t *target.RenderTarget)

type tableEntry struct {
	target *target.RenderTarget
	frames atomic.Uint64
}

// Table is an in-memory Registry.
//
// Table is safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	entries map[Handle]*tableEntry
	next    Handle
	onFrame FrameFunc

	registered   atomic.Uint64
	unregistered atomic.Uint64
}

// NewTable creates an empty table. onFrame may be nil.
func NewTable(onFrame FrameFunc) *Table {
	return &Table{
		entries: make(map[Handle]*tableEntry),
		onFrame: onFrame,
	}
}

// Register implements Registry.
func (t *Table) Register(rt *target.RenderTarget) Handle {
	t.mu.Lock()
	t.next++
	h := t.next
	t.entries[h] = &tableEntry{target: rt}
	t.mu.Unlock()

	t.registered.Add(1)
	return h
}

// Unregister implements Registry.
func (t *Table) Unregister(h Handle) {
	t.mu.Lock()
	_, ok := t.entries[h]
	delete(t.entries, h)
	t.mu.Unlock()

	if ok {
		t.unregistered.Add(1)
	}
}

// FrameAvailable implements Registry.
func (t *Table) FrameAvailable(h Handle) {
	t.mu.RLock()
	e, ok := t.entries[h]
	t.mu.RUnlock()
	if !ok {
		return
	}
	e.frames.Add(1)
	if t.onFrame != nil {
		t.onFrame(h, e.target)
	}
}

// Target returns the target registered under h.
func (t *Table) Target(h Handle) (*target.RenderTarget, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[h]
	if !ok {
		return nil, false
	}
	return e.target, true
}

// Frames returns how many frame notifications h has received.
func (t *Table) Frames(h Handle) uint64 {
	t.mu.RLock()
	e, ok := t.entries[h]
	t.mu.RUnlock()
	if !ok {
		return 0
	}
	return e.frames.Load()
}

// Pull copies the current pixels of h, as the display would.
func (t *Table) Pull(h Handle) (*image.RGBA, bool) {
	rt, ok := t.Target(h)
	if !ok {
		return nil, false
	}
	img, err := rt.Snapshot()
	if err != nil {
		return nil, false
	}
	return img, true
}

// Handles returns the currently registered handles.
func (t *Table) Handles() []Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Handle, 0, len(t.entries))
	for h := range t.entries {
		out = append(out, h)
	}
	return out
}

// Len returns the number of registered handles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Stats returns lifetime register and unregister counts.
func (t *Table) Stats() (registered, unregistered uint64) {
	return t.registered.Load(), t.unregistered.Load()
}

var _ Registry = (*Table)(nil)

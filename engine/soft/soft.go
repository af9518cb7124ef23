// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package soft is an in-process rendering engine.
//
// Each engine context is a stack of RGBA layers owned by its own render
// goroutine. Commands reach the goroutine over a channel; after every batch
// the visible layers are composited into the attached present target and
// the context's frame-ready flag is raised. PollFrameReady consumes that
// flag.
//
// Importing the package registers the "soft" backend with the engine
// registry.
package soft

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/surfacehost/engine"
	"github.com/gogpu/surfacehost/target"
)

// Name is the backend name used with engine.Open.
const Name = "soft"

func init() {
	engine.Register(Name, 0, func() (engine.Binding, error) {
		return New(), nil
	}, nil)
}

// Errors returned by Engine.
var (
	ErrInvalidSize     = errors.New("soft: invalid canvas size")
	ErrTooManyContexts = errors.New("soft: context limit reached")
	ErrUnknownHandle   = errors.New("soft: unknown handle")
	ErrResizeRejected  = errors.New("soft: resize rejected")
)

// DeviceOpener opens the device shared by all contexts of an engine.
type DeviceOpener func() (gpucontext.DeviceProvider, error)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMaxContexts limits the number of live contexts. Zero means no limit.
func WithMaxContexts(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxContexts = n
		}
	}
}

// WithDeviceOpener replaces the no-op HAL device.
func WithDeviceOpener(open DeviceOpener) Option {
	return func(e *Engine) {
		if open != nil {
			e.openDevice = open
		}
	}
}

// Engine implements engine.Binding in software.
//
// Engine is safe for concurrent use.
type Engine struct {
	log         *slog.Logger
	maxContexts int
	openDevice  DeviceOpener

	mu       sync.RWMutex
	canvases map[engine.Handle]*canvas
	next     atomic.Uint64

	devMu     sync.Mutex
	devOpened bool
	dev       gpucontext.DeviceProvider
	devErr    error
}

// New creates an engine with no contexts.
func New(opts ...Option) *Engine {
	e := &Engine{
		log:        slog.New(slog.DiscardHandler),
		openDevice: openHALDevice,
		canvases:   make(map[engine.Handle]*canvas),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func openHALDevice() (gpucontext.DeviceProvider, error) {
	d, err := OpenDevice()
	if err != nil {
		return nil, err
	}
	return d, nil
}

func validSize(width, height int) bool {
	return width >= 1 && height >= 1 &&
		width <= target.MaxDimension && height <= target.MaxDimension
}

// Create allocates a context with one layer filled white.
func (e *Engine) Create(width, height int) (engine.Handle, error) {
	if !validSize(width, height) {
		return engine.None, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}

	e.mu.Lock()
	if e.maxContexts > 0 && len(e.canvases) >= e.maxContexts {
		e.mu.Unlock()
		return engine.None, ErrTooManyContexts
	}
	h := engine.Handle(e.next.Add(1))
	c := newCanvas(width, height)
	e.canvases[h] = c
	e.mu.Unlock()

	go c.run()
	e.log.Debug("soft: context created", "handle", uint64(h), "width", width, "height", height)
	return h, nil
}

func (e *Engine) canvas(h engine.Handle) *canvas {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.canvases[h]
}

// Resize changes the canvas size and resets its layers. It blocks until the
// render goroutine has applied the change.
func (e *Engine) Resize(h engine.Handle, width, height, layers int, bg engine.Color) error {
	c := e.canvas(h)
	if c == nil {
		return ErrUnknownHandle
	}
	if !validSize(width, height) {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	reply := make(chan bool, 1)
	if !c.post(func(c *canvas) { reply <- c.resize(width, height, layers, bg) }) {
		return ErrUnknownHandle
	}
	select {
	case ok := <-reply:
		if !ok {
			return ErrResizeRejected
		}
		return nil
	case <-c.done:
		return ErrUnknownHandle
	}
}

// AttachPresentTarget sets the target the context composites into.
func (e *Engine) AttachPresentTarget(h engine.Handle, t *target.RenderTarget) {
	if c := e.canvas(h); c != nil {
		c.post(func(c *canvas) { c.present, c.dirty = t, true })
	}
}

// ResetCanvas replaces the layers: layer 0 filled with bg, the rest
// transparent.
func (e *Engine) ResetCanvas(h engine.Handle, layers int, bg engine.Color) {
	if c := e.canvas(h); c != nil {
		c.post(func(c *canvas) { c.reset(layers, bg) })
	}
}

// PollFrameReady reports and clears the frame-ready flag. Unknown or
// disposed handles report false.
func (e *Engine) PollFrameReady(h engine.Handle) bool {
	c := e.canvas(h)
	if c == nil {
		return false
	}
	return c.frameReady.Swap(false)
}

// Device returns the shared device, or nil if h is unknown or the device
// cannot be opened.
func (e *Engine) Device(h engine.Handle) gpucontext.DeviceProvider {
	if e.canvas(h) == nil {
		return nil
	}
	e.devMu.Lock()
	defer e.devMu.Unlock()
	if !e.devOpened {
		e.devOpened = true
		e.dev, e.devErr = e.openDevice()
		if e.devErr != nil {
			e.log.Warn("soft: device unavailable", "err", e.devErr)
		}
	}
	if e.devErr != nil {
		return nil
	}
	return e.dev
}

// Dispose stops the context and waits for its render goroutine to exit.
// Unknown handles are ignored.
func (e *Engine) Dispose(h engine.Handle) {
	e.mu.Lock()
	c, ok := e.canvases[h]
	delete(e.canvases, h)
	e.mu.Unlock()
	if !ok {
		return
	}
	c.stop()
	e.log.Debug("soft: context disposed", "handle", uint64(h))
}

// FillLayer fills one layer with a colour.
func (e *Engine) FillLayer(h engine.Handle, layer int, col engine.Color) error {
	return e.send(h, func(c *canvas) { c.fill(layer, col) })
}

// ClearLayer makes one layer transparent.
func (e *Engine) ClearLayer(h engine.Handle, layer int) error {
	return e.send(h, func(c *canvas) { c.fill(layer, engine.Transparent) })
}

// SetLayerVisible shows or hides a layer.
func (e *Engine) SetLayerVisible(h engine.Handle, layer int, visible bool) error {
	return e.send(h, func(c *canvas) {
		if l := c.layer(layer); l != nil {
			l.visible, c.dirty = visible, true
		}
	})
}

// SetLayerOpacity sets a layer's opacity, clamped to [0, 1].
func (e *Engine) SetLayerOpacity(h engine.Handle, layer int, opacity float64) error {
	opacity = min(max(opacity, 0), 1)
	return e.send(h, func(c *canvas) {
		if l := c.layer(layer); l != nil {
			l.opacity, c.dirty = opacity, true
		}
	})
}

// Sync blocks until every command posted to h before the call has been
// applied and composited.
func (e *Engine) Sync(h engine.Handle) error {
	c := e.canvas(h)
	if c == nil {
		return ErrUnknownHandle
	}
	done := make(chan struct{})
	if !c.post(func(c *canvas) { c.after(func(*canvas) { close(done) }) }) {
		return ErrUnknownHandle
	}
	select {
	case <-done:
		return nil
	case <-c.done:
		return ErrUnknownHandle
	}
}

// Stats describes a context.
type Stats struct {
	Width, Height int
	Layers        int
	Frames        uint64
	Attached      bool
}

// Stats returns a snapshot of h's state.
func (e *Engine) Stats(h engine.Handle) (Stats, error) {
	var s Stats
	c := e.canvas(h)
	if c == nil {
		return s, ErrUnknownHandle
	}
	reply := make(chan Stats, 1)
	if !c.post(func(c *canvas) {
		c.after(func(c *canvas) {
			reply <- Stats{
				Width:    c.width,
				Height:   c.height,
				Layers:   len(c.layers),
				Frames:   c.frames,
				Attached: c.present != nil,
			}
		})
	}) {
		return s, ErrUnknownHandle
	}
	select {
	case s = <-reply:
		return s, nil
	case <-c.done:
		return s, ErrUnknownHandle
	}
}

// Len returns the number of live contexts.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.canvases)
}

// Close disposes every context and releases the shared device.
func (e *Engine) Close() {
	e.mu.Lock()
	canvases := e.canvases
	e.canvases = make(map[engine.Handle]*canvas)
	e.mu.Unlock()

	for _, c := range canvases {
		c.stop()
	}

	e.devMu.Lock()
	defer e.devMu.Unlock()
	if closer, ok := e.dev.(interface{ Close() }); ok {
		closer.Close()
	}
	e.dev, e.devErr, e.devOpened = nil, nil, false
}

func (e *Engine) send(h engine.Handle, cmd func(*canvas)) error {
	c := e.canvas(h)
	if c == nil || !c.post(cmd) {
		return ErrUnknownHandle
	}
	return nil
}

var _ engine.Binding = (*Engine)(nil)

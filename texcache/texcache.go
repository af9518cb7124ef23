// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package texcache wraps RenderTargets in compositor-visible GPU textures.
//
// A Cache is bound to one HAL device, obtained from an engine's
// gpucontext.DeviceProvider. Wrap creates a sampled texture and view with
// the target's size and format; Texture.Sync uploads the target's current
// pixels into it.
//
// The provider must expose HAL access:
//
//	HalDevice() any // hal.Device
//	HalQueue() any  // hal.Queue
package texcache

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/surfacehost/target"
)

var (
	// ErrNilProvider is returned when New is called without a provider.
	ErrNilProvider = errors.New("texcache: nil device provider")

	// ErrNoHAL is returned when the provider does not expose HAL types.
	ErrNoHAL = errors.New("texcache: provider does not expose HAL device")

	// ErrClosed is returned by Wrap after Close.
	ErrClosed = errors.New("texcache: cache closed")
)

// Usage is the texture usage for wrapped targets.
const Usage = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst

type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// Cache creates textures on a single HAL device.
type Cache struct {
	provider gpucontext.DeviceProvider
	device   hal.Device
	queue    hal.Queue

	mu     sync.Mutex
	live   map[*Texture]struct{}
	closed bool
}

// New creates a cache for the device exposed by provider.
func New(provider gpucontext.DeviceProvider) (*Cache, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}
	return &Cache{
		provider: provider,
		device:   device,
		queue:    queue,
		live:     make(map[*Texture]struct{}),
	}, nil
}

// Provider returns the device provider the cache was created from.
func (c *Cache) Provider() gpucontext.DeviceProvider {
	return c.provider
}

// Wrap creates a texture matching t's size and format.
func (c *Cache) Wrap(t *target.RenderTarget) (*Texture, error) {
	if t == nil || t.Released() {
		return nil, target.ErrReleased
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	w, h := t.Size()
	size := hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1} //nolint:gosec // bounded by target.MaxDimension
	label := fmt.Sprintf("surface_target_%d", t.ID())

	tex, err := c.device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        t.Format(),
		Usage:         Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("texcache: create texture %dx%d: %w", w, h, err)
	}

	view, err := c.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         label + "_view",
		Format:        t.Format(),
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		c.device.DestroyTexture(tex)
		return nil, fmt.Errorf("texcache: create texture view: %w", err)
	}

	wrapped := &Texture{
		cache:  c,
		target: t,
		tex:    tex,
		view:   view,
		size:   size,
	}

	c.mu.Lock()
	c.live[wrapped] = struct{}{}
	c.mu.Unlock()
	return wrapped, nil
}

// Len returns the number of live textures.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// Close destroys every live texture. The device itself belongs to the
// engine and is left untouched. Close is idempotent.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	live := make([]*Texture, 0, len(c.live))
	for t := range c.live {
		live = append(live, t)
	}
	c.mu.Unlock()

	for _, t := range live {
		t.Destroy()
	}
}

func (c *Cache) forget(t *Texture) {
	c.mu.Lock()
	delete(c.live, t)
	c.mu.Unlock()
}

// Texture is a GPU texture bound to one RenderTarget.
type Texture struct {
	cache  *Cache
	target *target.RenderTarget
	size   hal.Extent3D

	mu        sync.Mutex
	tex       hal.Texture
	view      hal.TextureView
	syncs     uint64
	destroyed bool
}

// Target returns the wrapped render target.
func (t *Texture) Target() *target.RenderTarget {
	return t.target
}

// View returns the texture view for sampling, or nil after Destroy.
func (t *Texture) View() hal.TextureView {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view
}

// Syncs returns how many uploads have completed.
func (t *Texture) Syncs() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.syncs
}

// Sync uploads the target's current pixels into the texture.
// It is a no-op once the texture or its target has been released.
func (t *Texture) Sync() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return
	}
	var werr error
	err := t.target.Read(func(img *image.RGBA) {
		werr = t.cache.queue.WriteTexture(
			&hal.ImageCopyTexture{
				Texture:  t.tex,
				MipLevel: 0,
			},
			img.Pix,
			&hal.ImageDataLayout{
				Offset:       0,
				BytesPerRow:  uint32(img.Stride), //nolint:gosec // bounded by target.MaxDimension
				RowsPerImage: t.size.Height,
			},
			&t.size,
		)
	})
	if err == nil && werr == nil {
		t.syncs++
	}
}

// Destroy releases the texture and view. Destroy is idempotent.
func (t *Texture) Destroy() {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	t.destroyed = true
	view, tex := t.view, t.tex
	t.view, t.tex = nil, nil
	t.mu.Unlock()

	if view != nil {
		t.cache.device.DestroyTextureView(view)
	}
	if tex != nil {
		t.cache.device.DestroyTexture(tex)
	}
	t.cache.forget(t)
}

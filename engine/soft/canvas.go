// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package soft

import (
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"golang.org/x/image/draw"

	"github.com/gogpu/surfacehost/engine"
	"github.com/gogpu/surfacehost/target"
)

// maxLayers bounds the layer stack of one context.
const maxLayers = 1024

const commandQueueSize = 64

type layer struct {
	img     *image.RGBA
	visible bool
	opacity float64
}

// canvas is one engine context. Fields below frameReady are owned by the
// render goroutine; commands that change pixels set dirty.
type canvas struct {
	cmds       chan func(*canvas)
	quit       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
	frameReady atomic.Bool

	width, height int
	layers        []*layer
	present       *target.RenderTarget
	scratch       *image.RGBA
	frames        uint64
	dirty         bool
	afterBatch    []func(*canvas)
}

func newCanvas(width, height int) *canvas {
	c := &canvas{
		cmds:   make(chan func(*canvas), commandQueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		width:  width,
		height: height,
	}
	c.reset(1, engine.White)
	return c
}

// after runs fn once the current batch has been composited.
func (c *canvas) after(fn func(*canvas)) {
	c.afterBatch = append(c.afterBatch, fn)
}

// post queues cmd. It reports false once the canvas is stopped.
func (c *canvas) post(cmd func(*canvas)) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.cmds <- cmd:
		return true
	case <-c.quit:
		return false
	}
}

func (c *canvas) stop() {
	c.stopOnce.Do(func() { close(c.quit) })
	<-c.done
}

// run applies commands in batches and composites once per batch.
func (c *canvas) run() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			return
		case cmd := <-c.cmds:
			cmd(c)
			c.drain()
			if c.dirty {
				c.composite()
				c.dirty = false
			}
			for _, fn := range c.afterBatch {
				fn(c)
			}
			clear(c.afterBatch)
			c.afterBatch = c.afterBatch[:0]
		}
	}
}

func (c *canvas) drain() {
	for {
		select {
		case cmd := <-c.cmds:
			cmd(c)
		default:
			return
		}
	}
}

func (c *canvas) layer(i int) *layer {
	if i < 0 || i >= len(c.layers) {
		return nil
	}
	return c.layers[i]
}

// reset rebuilds the layer stack: layer 0 is filled with bg, the others
// are transparent.
func (c *canvas) reset(count int, bg engine.Color) {
	count = min(max(count, 1), maxLayers)
	c.layers = make([]*layer, count)
	for i := range c.layers {
		c.layers[i] = &layer{
			img:     image.NewRGBA(image.Rect(0, 0, c.width, c.height)),
			visible: true,
			opacity: 1,
		}
	}
	c.fill(0, bg)
	c.dirty = true
}

func (c *canvas) resize(width, height, layers int, bg engine.Color) bool {
	if !validSize(width, height) {
		return false
	}
	c.width, c.height = width, height
	c.scratch = nil
	c.reset(layers, bg)
	return true
}

func (c *canvas) fill(i int, col engine.Color) {
	l := c.layer(i)
	if l == nil {
		return
	}
	draw.Draw(l.img, l.img.Bounds(), image.NewUniform(toNRGBA(col)), image.Point{}, draw.Src)
	c.dirty = true
}

func toNRGBA(c engine.Color) color.NRGBA {
	return color.NRGBA{R: c.R(), G: c.G(), B: c.B(), A: c.A()}
}

// composite blends the visible layers bottom-up and writes the result into
// the present target, scaling when the target size lags the canvas.
func (c *canvas) composite() {
	if c.present == nil {
		return
	}
	bounds := image.Rect(0, 0, c.width, c.height)
	if c.scratch == nil || c.scratch.Bounds() != bounds {
		c.scratch = image.NewRGBA(bounds)
	}
	draw.Draw(c.scratch, bounds, image.Transparent, image.Point{}, draw.Src)
	for _, l := range c.layers {
		if !l.visible || l.opacity <= 0 {
			continue
		}
		if l.opacity >= 1 {
			draw.Draw(c.scratch, bounds, l.img, image.Point{}, draw.Over)
			continue
		}
		mask := image.NewUniform(color.Alpha{A: uint8(l.opacity*255 + 0.5)})
		draw.DrawMask(c.scratch, bounds, l.img, image.Point{}, mask, image.Point{}, draw.Over)
	}

	err := c.present.Write(func(dst *image.RGBA) {
		if dst.Bounds() == bounds {
			draw.Draw(dst, bounds, c.scratch, image.Point{}, draw.Src)
			return
		}
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), c.scratch, bounds, draw.Src, nil)
	})
	if err != nil {
		// Released target: wait for the next attach.
		c.present = nil
		return
	}
	c.frames++
	c.frameReady.Store(true)
}

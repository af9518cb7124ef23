// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package engine defines the narrow, handle-based interface between the
// surface host and an external rendering engine.
//
// The host never dereferences engine memory. Engines hand out opaque
// [Handle] tokens and the host passes them back verbatim. Handle 0 means
// "no engine".
//
// # Concurrency
//
// All Binding methods may block. The host never invokes two Binding
// methods concurrently for the same handle; calls on different handles
// may overlap. PollFrameReady may still follow Dispose and must return
// false for unknown handles.
package engine

import (
	"fmt"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/surfacehost/target"
)

// Handle is an opaque token identifying an engine context.
type Handle uint64

// None is the sentinel for "no engine context".
const None Handle = 0

// Valid reports whether h refers to an engine context.
func (h Handle) Valid() bool { return h != None }

// Color is a 32-bit ARGB colour, 0xAARRGGBB.
type Color uint32

// Common colours.
const (
	White       Color = 0xFFFFFFFF
	Black       Color = 0xFF000000
	Transparent Color = 0x00000000
)

// A returns the alpha component.
func (c Color) A() uint8 { return uint8(c >> 24) }

// R returns the red component.
func (c Color) R() uint8 { return uint8(c >> 16) }

// G returns the green component.
func (c Color) G() uint8 { return uint8(c >> 8) }

// B returns the blue component.
func (c Color) B() uint8 { return uint8(c) }

// String formats the colour as #AARRGGBB.
func (c Color) String() string {
	return fmt.Sprintf("#%08X", uint32(c))
}

// Binding is the synchronous interface to a rendering engine.
type Binding interface {
	// Create allocates an engine context for a canvas of the given size.
	Create(width, height int) (Handle, error)

	// Resize changes the canvas geometry of an existing context and
	// reinitializes its layers. The previously attached present target is
	// no longer valid after a successful Resize.
	Resize(h Handle, width, height, layers int, bg Color) error

	// AttachPresentTarget makes t the destination of composited frames.
	// Width, height and stride are taken from t.
	AttachPresentTarget(h Handle, t *target.RenderTarget)

	// ResetCanvas clears the canvas to layers layers; layer 0 is filled
	// with bg, the others are transparent.
	ResetCanvas(h Handle, layers int, bg Color)

	// PollFrameReady reports whether a new frame was composited into the
	// present target since the last poll. It must be cheap and must not
	// block on rendering.
	PollFrameReady(h Handle) bool

	// Device returns the graphics device backing h, or nil if none.
	Device(h Handle) gpucontext.DeviceProvider

	// Dispose releases the context. Unknown handles are ignored.
	Dispose(h Handle)
}

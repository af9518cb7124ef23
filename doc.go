// Package surfacehost manages the lifecycle of GPU-backed render surfaces
// between a host UI and an external rendering engine.
//
// # Overview
//
// A surface is a caller-named render destination. For each surface id the
// host keeps exactly one engine context and one RenderTarget, publishes the
// target to the display compositor under a stable handle, keeps that handle
// valid across resizes, and reclaims everything when the surface goes away.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/surfacehost"
//	    "github.com/gogpu/surfacehost/compositor"
//	    "github.com/gogpu/surfacehost/engine"
//	    _ "github.com/gogpu/surfacehost/engine/soft"
//	)
//
//	binding, _ := engine.Open("soft")
//	table := compositor.NewTable(nil)
//
//	reg := surfacehost.NewRegistry(binding, table)
//	defer reg.Close()
//
//	res, err := reg.GetOrInit(ctx, surfacehost.Request{
//	    SurfaceID: "canvas", Width: 800, Height: 600, LayerCount: 1,
//	})
//
//	loop := surfacehost.NewPresentLoop(reg)
//	go loop.RunTicker(ctx)
//
// # Rounds
//
// A request for a ready surface with the same size and layer count is
// answered inline. Anything else starts an initialization round on a
// worker: engine create or resize, device query, texture cache, target
// allocation, texture wrap, present target attach, canvas reset and the
// compositor handle swap. Requests arriving while a round is in flight join
// it and receive its outcome in arrival order.
//
// A failed round reports exactly one stage error (ErrEngineCreate,
// ErrDeviceUnavailable, ErrTextureCache or ErrTextureWrap) and leaves the
// surface without an engine context, so the next request starts clean.
// ErrorCode maps errors to the wire codes the UI layer understands.
//
// # Idle Pool
//
// Disposed surfaces that are ready are kept per (width, height), up to
// WithPoolBound entries, and rebound to the next request of the same size
// without creating a new engine context. A rebound surface is registered
// with the compositor under a new handle. WithPoolBound(0) disables pooling.
//
// # Presentation
//
// PresentLoop polls every ready surface once per refresh and, when the
// engine reports a new frame, syncs the compositor texture and signals
// FrameAvailable through the configured compositor.Dispatcher. A surface
// whose round or teardown is using its engine context is skipped for that
// tick, so no two engine calls for one handle ever overlap.
//
// # Logging
//
// The package logs through slog and is silent by default. See SetLogger.
package surfacehost

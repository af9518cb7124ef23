package surfacehost_test

import (
	"image/color"
	"testing"

	"github.com/gogpu/surfacehost"
	"github.com/gogpu/surfacehost/compositor"
	"github.com/gogpu/surfacehost/engine"
	"github.com/gogpu/surfacehost/engine/soft"
)

// TestSoftEngineEndToEnd runs the registry against the software engine and
// the HAL texture cache, then pulls presented pixels from the compositor.
func TestSoftEngineEndToEnd(t *testing.T) {
	eng := soft.New()
	defer eng.Close()
	table := compositor.NewTable(nil)

	reg := surfacehost.NewRegistry(eng, table, surfacehost.WithPoolBound(1))
	defer reg.Close()
	loop := surfacehost.NewPresentLoop(reg)

	res, err := reg.GetOrInit(t.Context(), surfacehost.Request{
		SurfaceID:  "canvas",
		Width:      32,
		Height:     16,
		LayerCount: 2,
		Background: 0xFF0000FF,
	})
	if err != nil {
		t.Fatalf("GetOrInit: %v", err)
	}
	if !res.IsNewEngine || res.Width != 32 || res.Height != 16 {
		t.Fatalf("result = %+v", res)
	}

	if err := eng.Sync(res.EngineHandle); err != nil {
		t.Fatal(err)
	}
	if n := loop.Tick(); n != 1 {
		t.Fatalf("Tick() = %d, want 1", n)
	}
	if n := loop.Tick(); n != 0 {
		t.Errorf("second Tick() = %d, want 0 without a new frame", n)
	}
	if table.Frames(res.CompositorHandle) != 1 {
		t.Errorf("frames = %d, want 1", table.Frames(res.CompositorHandle))
	}

	img, ok := table.Pull(res.CompositorHandle)
	if !ok {
		t.Fatal("compositor handle not registered")
	}
	if got := img.RGBAAt(5, 5); got != (color.RGBA{0, 0, 255, 255}) {
		t.Errorf("pixel = %v, want blue background", got)
	}

	// Resize replaces the compositor handle and keeps the engine context.
	resized, err := reg.GetOrInit(t.Context(), surfacehost.Request{
		SurfaceID: "canvas", Width: 64, Height: 64, LayerCount: 2, Background: 0xFF0000FF,
	})
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	if resized.EngineHandle != res.EngineHandle || resized.CompositorHandle == res.CompositorHandle {
		t.Errorf("resize result = %+v, previous %+v", resized, res)
	}
	if _, ok := table.Target(res.CompositorHandle); ok {
		t.Error("old compositor handle still registered")
	}

	if err := eng.FillLayer(resized.EngineHandle, 1, engine.Color(0xFF00FF00)); err != nil {
		t.Fatal(err)
	}
	eng.Sync(resized.EngineHandle)
	loop.Tick()
	img, _ = table.Pull(resized.CompositorHandle)
	if got := img.RGBAAt(63, 63); got != (color.RGBA{0, 255, 0, 255}) {
		t.Errorf("pixel after fill = %v, want green", got)
	}

	// Dispose pools the surface; a same-size request reuses it.
	reg.Dispose("canvas")
	again, err := reg.GetOrInit(t.Context(), surfacehost.Request{
		SurfaceID: "other", Width: 64, Height: 64, LayerCount: 1, Background: engine.White,
	})
	if err != nil {
		t.Fatal(err)
	}
	if again.EngineHandle != resized.EngineHandle || again.IsNewEngine {
		t.Errorf("pool reuse result = %+v", again)
	}
	if again.CompositorHandle == resized.CompositorHandle || table.Len() != 1 {
		t.Errorf("pool reuse kept handle %d, table entries = %d", again.CompositorHandle, table.Len())
	}

	reg.Close()
	if eng.Len() != 0 {
		t.Errorf("engine contexts after Close = %d", eng.Len())
	}
	if table.Len() != 0 {
		t.Errorf("compositor entries after Close = %d", table.Len())
	}
}

func TestSoftEnginePlugin(t *testing.T) {
	binding, err := engine.Open(soft.Name)
	if err != nil {
		t.Fatal(err)
	}
	defer binding.(*soft.Engine).Close()

	p, err := surfacehost.Register(surfacehost.Host{Engine: binding, Textures: compositor.NewTable(nil)})
	if err != nil {
		t.Skipf("plugin already registered in this process: %v", err)
	}
	defer p.Close()

	done := make(chan map[string]any, 1)
	p.HandleMethod(surfacehost.MethodGetOrInitSurface, map[string]any{"width": 16, "height": 16}, replyFunc(func(v any) {
		m, _ := v.(map[string]any)
		done <- m
	}))
	m := <-done
	if m == nil || m["width"] != 16 || m["isNewEngine"] != true {
		t.Errorf("reply = %v", m)
	}
}

type replyFunc func(v any)

func (f replyFunc) Success(v any)                 { f(v) }
func (f replyFunc) Error(code, msg string, _ any) { f(nil) }
func (f replyFunc) NotImplemented()               { f(nil) }

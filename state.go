package surfacehost

import (
	"sync"

	"github.com/gogpu/surfacehost/compositor"
	"github.com/gogpu/surfacehost/engine"
	"github.com/gogpu/surfacehost/internal/idle"
	"github.com/gogpu/surfacehost/target"
)

// Reply receives the outcome of a surface request exactly once.
type Reply func(Result, error)

// resources is everything a surface owns once initialized.
type resources struct {
	engine     engine.Handle
	compositor compositor.Handle
	target     *target.RenderTarget
	texture    WrappedTexture
	cache      TextureCache

	width      int
	height     int
	layers     int
	background engine.Color
}

func (r *resources) size() idle.Size {
	return idle.Size{Width: r.width, Height: r.height}
}

// surfaceState is one live or pooled surface. Fields other than engineMu
// are guarded by Registry.mu.
type surfaceState struct {
	// engineMu serializes engine calls on the surface's handle. Rounds and
	// teardown hold it; the present loop skips the surface while it is held.
	// Acquire it before Registry.mu, never after.
	engineMu sync.Mutex

	id  string
	res resources

	initInFlight bool
	disposed     bool
	pending      []Reply
}

func (s *surfaceState) ready() bool {
	return s.res.engine.Valid() && s.res.compositor != 0 && s.res.target != nil
}

// matches reports whether req can be answered from the current state.
// Background is not compared.
func (s *surfaceState) matches(req Request) bool {
	return s.ready() && !s.initInFlight &&
		s.res.width == req.Width &&
		s.res.height == req.Height &&
		s.res.layers == req.LayerCount
}

func (s *surfaceState) result(isNew bool) Result {
	return Result{
		CompositorHandle: s.res.compositor,
		EngineHandle:     s.res.engine,
		Width:            s.res.width,
		Height:           s.res.height,
		IsNewEngine:      isNew,
	}
}

func (s *surfaceState) info() Info {
	return Info{
		ID:               s.id,
		EngineHandle:     s.res.engine,
		CompositorHandle: s.res.compositor,
		Width:            s.res.width,
		Height:           s.res.height,
		LayerCount:       s.res.layers,
		Background:       s.res.background,
		Ready:            s.ready(),
		Initializing:     s.initInFlight,
	}
}

// Info is a read-only view of a live surface.
type Info struct {
	ID               string
	EngineHandle     engine.Handle
	CompositorHandle compositor.Handle
	Width            int
	Height           int
	LayerCount       int
	Background       engine.Color
	Ready            bool
	Initializing     bool
}

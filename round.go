package surfacehost

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gogpu/surfacehost/engine"
	"github.com/gogpu/surfacehost/metrics"
	"github.com/gogpu/surfacehost/target"
)

var errNoHandle = errors.New("engine returned no handle")

// round is one initialization pass over a surface. The worker that runs it
// owns the surface's transition until publish.
type round struct {
	st       *surfaceState
	req      Request
	old      resources
	kind     string
	fromPool bool
	start    time.Time
	log      *slog.Logger
}

func (rd *round) classify() string {
	switch {
	case rd.fromPool:
		return metrics.KindRebind
	case !rd.old.engine.Valid():
		return metrics.KindCreate
	case rd.old.width != rd.req.Width || rd.old.height != rd.req.Height:
		return metrics.KindResize
	default:
		return metrics.KindReset
	}
}

func (r *Registry) runRound(rd *round) {
	defer r.rounds.Done()
	rd.log = surfaceLogger(r.log, rd.req.SurfaceID)
	rd.log.Debug("surfacehost: round started", "kind", rd.kind,
		"width", rd.req.Width, "height", rd.req.Height, "layers", rd.req.LayerCount)

	rd.st.engineMu.Lock()
	next, isNew, err := r.execute(rd)
	waiters, res, err := r.publish(rd, next, isNew, err)
	rd.st.engineMu.Unlock()

	for _, reply := range waiters {
		reply(res, err)
	}
}

// execute runs the engine, device, texture and compositor stages. On error
// next holds whatever the round managed to create; rd.old is updated to
// forget resources the round already destroyed.
func (r *Registry) execute(rd *round) (next resources, isNew bool, err error) {
	req := rd.req
	id := req.SurfaceID
	old := &rd.old

	next = resources{
		width:      req.Width,
		height:     req.Height,
		layers:     req.LayerCount,
		background: req.Background,
	}
	resized := old.engine.Valid() && (old.width != req.Width || old.height != req.Height)
	created := false

	switch {
	case !old.engine.Valid():
		h, err := r.create(id, req)
		if err != nil {
			return next, false, err
		}
		next.engine, created = h, true
	case resized:
		if err := r.binding.Resize(old.engine, req.Width, req.Height, req.LayerCount, req.Background); err != nil {
			rd.log.Warn("surfacehost: resize failed, recreating engine", "err", err)
			r.binding.Dispose(old.engine)
			old.engine = engine.None
			h, err := r.create(id, req)
			if err != nil {
				return next, false, err
			}
			next.engine, created = h, true
		} else {
			next.engine = old.engine
		}
	default:
		next.engine = old.engine
	}
	isNew = created || resized

	dev := r.binding.Device(next.engine)
	if dev == nil {
		return next, isNew, stageError(ErrDeviceUnavailable, id, nil)
	}

	if old.cache != nil && next.engine == old.engine {
		next.cache = old.cache
	} else {
		c, err := r.opts.textureCache(dev)
		if err != nil {
			return next, isNew, stageError(ErrTextureCache, id, err)
		}
		next.cache = c
	}

	newTarget := old.target == nil || resized
	if newTarget {
		t, err := target.New(req.Width, req.Height)
		if err != nil {
			return next, isNew, stageError(ErrTextureWrap, id, err)
		}
		next.target = t
	} else {
		next.target = old.target
	}

	if newTarget || next.cache != old.cache {
		tex, err := next.cache.Wrap(next.target)
		if err != nil {
			return next, isNew, stageError(ErrTextureWrap, id, err)
		}
		next.texture = tex
	} else {
		next.texture = old.texture
	}

	if newTarget || next.engine != old.engine {
		r.binding.AttachPresentTarget(next.engine, next.target)
	}

	if created || resized || rd.fromPool ||
		old.layers != req.LayerCount || old.background != req.Background {
		r.binding.ResetCanvas(next.engine, req.LayerCount, req.Background)
	}

	// A pooled surface gets a new compositor handle so widgets still holding
	// the previous owner's handle never see the new owner's frames.
	if newTarget || rd.fromPool || old.compositor == 0 {
		if old.compositor != 0 {
			r.textures.Unregister(old.compositor)
			old.compositor = 0
		}
		next.compositor = r.textures.Register(next.target)
	} else {
		next.compositor = old.compositor
	}

	return next, isNew, nil
}

func (r *Registry) create(id string, req Request) (engine.Handle, error) {
	h, err := r.binding.Create(req.Width, req.Height)
	if err != nil {
		return engine.None, stageError(ErrEngineCreate, id, err)
	}
	if !h.Valid() {
		return engine.None, stageError(ErrEngineCreate, id, errNoHandle)
	}
	return h, nil
}

// publish installs the round's outcome and returns the callers queued on
// the round in arrival order together with their answer. A surface disposed
// during the round is never resurrected.
func (r *Registry) publish(rd *round, next resources, isNew bool, err error) ([]Reply, Result, error) {
	st := rd.st
	id := rd.req.SurfaceID

	r.mu.Lock()
	st.initInFlight = false
	disposed := st.disposed
	waiters := st.pending
	st.pending = nil
	if err == nil && !disposed {
		st.res = next
	} else {
		st.res = resources{}
	}
	r.mu.Unlock()

	var outcome string
	switch {
	case disposed:
		outcome = metrics.OutcomeDisposed
		r.release(resources{}, next, rd.old)
		err = stageError(ErrSurfaceDisposed, id, nil)
	case err != nil:
		outcome = ErrorCode(err)
		r.release(resources{}, next, rd.old)
		rd.log.Warn("surfacehost: round failed", "kind", rd.kind, "err", err)
	default:
		outcome = metrics.OutcomeSuccess
		r.release(next, rd.old)
		rd.log.Debug("surfacehost: round published", "kind", rd.kind,
			"engine", uint64(next.engine), "compositor", int64(next.compositor), "new", isNew)
	}
	r.metrics.RecordRound(rd.kind, outcome, time.Since(rd.start))

	res := Result{}
	if err == nil {
		res = Result{
			CompositorHandle: next.compositor,
			EngineHandle:     next.engine,
			Width:            next.width,
			Height:           next.height,
			IsNewEngine:      isNew,
		}
	}
	return waiters, res, err
}

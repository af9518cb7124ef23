package surfacehost

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/gogpu/surfacehost/compositor"
	"github.com/gogpu/surfacehost/engine"
	"github.com/gogpu/surfacehost/internal/idle"
	"github.com/gogpu/surfacehost/internal/parallel"
	"github.com/gogpu/surfacehost/metrics"
)

// Registry maps surface ids to their engine contexts and render targets.
//
// Requests for a ready surface with unchanged geometry are answered inline.
// Everything else runs as an initialization round on a worker; concurrent
// requests for a surface that is mid-round join that round and share its
// outcome. Engine and compositor calls are never made under the lock.
//
// Registry is safe for concurrent use.
type Registry struct {
	binding  engine.Binding
	textures compositor.Registry
	opts     options
	log      *slog.Logger
	metrics  *metrics.Collector
	workers  *parallel.Pool

	mu       sync.RWMutex
	surfaces map[string]*surfaceState
	pool     *idle.Pool[*surfaceState]
	closed   bool

	rounds sync.WaitGroup
}

// NewRegistry creates a registry that allocates engine contexts from
// binding and publishes render targets to textures.
//
// It panics if binding or textures is nil.
func NewRegistry(binding engine.Binding, textures compositor.Registry, opts ...Option) *Registry {
	if binding == nil {
		panic("surfacehost: nil engine binding")
	}
	if textures == nil {
		panic("surfacehost: nil compositor registry")
	}
	o := buildOptions(opts)
	r := &Registry{
		binding:  binding,
		textures: textures,
		opts:     o,
		log:      o.log(),
		metrics:  o.metrics,
		workers:  parallel.New(o.workers),
		surfaces: make(map[string]*surfaceState),
		pool:     idle.New[*surfaceState](o.poolBound),
	}
	r.log.Info("surfacehost: registry started",
		"workers", r.workers.Size(), "poolBound", r.pool.Bound())
	return r
}

// Acquire requests the surface described by req and calls reply exactly
// once with its outcome. A ready surface with the requested size and layer
// count is answered before Acquire returns; otherwise reply runs on a
// worker goroutine once the round that serves the request is published.
//
// reply must not call Close.
func (r *Registry) Acquire(req Request, reply Reply) {
	if reply == nil {
		reply = func(Result, error) {}
	}
	req = req.Normalize()

	if res, ok := r.hot(req); ok {
		r.metrics.RecordHotHit()
		reply(res, nil)
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		reply(Result{}, ErrRegistryClosed)
		return
	}

	st, ok := r.surfaces[req.SurfaceID]
	switch {
	case ok && st.initInFlight:
		st.pending = append(st.pending, reply)
		r.mu.Unlock()
		r.metrics.RecordCoalesced()
		surfaceLogger(r.log, req.SurfaceID).Debug("surfacehost: request joined round")
		return
	case ok && st.matches(req):
		res := st.result(false)
		r.mu.Unlock()
		r.metrics.RecordHotHit()
		reply(res, nil)
		return
	}

	rd := &round{req: req, start: time.Now()}
	if !ok {
		st, rd.fromPool = r.takePooled(req)
		st.id = req.SurfaceID
		r.surfaces[req.SurfaceID] = st
	}
	rd.st = st
	rd.old = st.res
	rd.kind = rd.classify()

	st.initInFlight = true
	st.pending = append(st.pending, reply)
	r.rounds.Add(1)
	live := len(r.surfaces)
	pooled := r.pool.Len()
	r.mu.Unlock()

	r.metrics.SetLiveSurfaces(live)
	r.metrics.SetPoolSize(pooled)
	r.submit(rd)
}

// GetOrInit is the blocking form of Acquire. ctx bounds only the wait; a
// round that has started always runs to completion.
func (r *Registry) GetOrInit(ctx context.Context, req Request) (Result, error) {
	type outcome struct {
		res Result
		err error
	}
	ch := make(chan outcome, 1)
	r.Acquire(req, func(res Result, err error) {
		ch <- outcome{res, err}
	})
	select {
	case o := <-ch:
		return o.res, o.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// hot answers req under the read lock if the surface is ready and unchanged.
func (r *Registry) hot(req Request) (Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.surfaces[req.SurfaceID]
	if !ok || !st.matches(req) {
		return Result{}, false
	}
	return st.result(false), true
}

// takePooled returns an idle state of the requested size, or a fresh one.
// Called with r.mu held.
func (r *Registry) takePooled(req Request) (*surfaceState, bool) {
	st, ok := r.pool.Take(idle.Size{Width: req.Width, Height: req.Height})
	r.metrics.RecordPoolTake(ok)
	if ok {
		return st, true
	}
	return &surfaceState{}, false
}

func (r *Registry) submit(rd *round) {
	fn := func() { r.runRound(rd) }
	if !r.workers.SubmitKeyed(rd.req.SurfaceID, fn) {
		go fn()
	}
}

// Dispose removes id. Callers waiting on an in-flight round for id receive
// ErrSurfaceDisposed. A ready surface goes to the idle pool when pooling is
// enabled and is destroyed otherwise. Unknown ids are ignored.
func (r *Registry) Dispose(id string) {
	if id == "" {
		id = DefaultSurfaceID
	}

	r.mu.Lock()
	st, ok := r.surfaces[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.surfaces, id)
	live := len(r.surfaces)

	if st.initInFlight {
		// The worker tears down at publish.
		st.disposed = true
		waiters := st.pending
		st.pending = nil
		r.mu.Unlock()

		r.metrics.RecordDispose()
		r.metrics.SetLiveSurfaces(live)
		surfaceLogger(r.log, id).Debug("surfacehost: disposed mid-round", "waiters", len(waiters))
		for _, reply := range waiters {
			reply(Result{}, stageError(ErrSurfaceDisposed, id, nil))
		}
		return
	}

	var destroy []*surfaceState
	pooled, evicted := false, 0
	if st.ready() && !r.closed && r.pool.Enabled() {
		st.id = ""
		destroy = r.pool.Put(st.res.size(), st)
		pooled, evicted = true, len(destroy)
	} else {
		destroy = []*surfaceState{st}
	}
	poolLen := r.pool.Len()
	r.mu.Unlock()

	r.metrics.RecordDispose()
	r.metrics.RecordPoolEvictions(evicted)
	r.metrics.SetLiveSurfaces(live)
	r.metrics.SetPoolSize(poolLen)
	surfaceLogger(r.log, id).Debug("surfacehost: disposed", "pooled", pooled, "evicted", evicted)

	for _, d := range destroy {
		r.destroy(d)
	}
}

// destroy releases everything st owns. st must already be unreachable from
// the live map and the pool.
func (r *Registry) destroy(st *surfaceState) {
	st.engineMu.Lock()
	defer st.engineMu.Unlock()
	r.release(resources{}, st.res)
}

// Close stops accepting requests, waits for in-flight rounds and destroys
// every live and pooled surface. It is safe to call more than once.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.rounds.Wait()

	r.mu.Lock()
	states := r.pool.Drain()
	for id, st := range r.surfaces {
		states = append(states, st)
		delete(r.surfaces, id)
	}
	r.mu.Unlock()

	work := make([]func(), len(states))
	for i, st := range states {
		work[i] = func() { r.destroy(st) }
	}
	r.workers.RunAll(work)
	r.workers.Close()

	r.metrics.SetLiveSurfaces(0)
	r.metrics.SetPoolSize(0)
	r.log.Info("surfacehost: registry closed", "destroyed", len(states))
}

// Lookup returns the current view of a live surface.
func (r *Registry) Lookup(id string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.surfaces[id]
	if !ok {
		return Info{}, false
	}
	return st.info(), true
}

// Len returns the number of live surfaces.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.surfaces)
}

// PoolLen returns the number of idle pooled surfaces.
func (r *Registry) PoolLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pool.Len()
}

// Snapshot returns every live surface sorted by id.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.surfaces))
	for _, st := range r.surfaces {
		out = append(out, st.info())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// presentable is what the present loop needs from a ready surface.
type presentable struct {
	st         *surfaceState
	engine     engine.Handle
	compositor compositor.Handle
	texture    WrappedTexture
}

// presentables appends every ready live surface with no round in flight
// to dst.
func (r *Registry) presentables(dst []presentable) []presentable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, st := range r.surfaces {
		if !st.ready() || st.initInFlight {
			continue
		}
		dst = append(dst, presentable{st: st})
	}
	return dst
}

// claim locks p's engine for a poll and refreshes p from the surface's
// current state. It reports false, holding nothing, when a round or
// teardown owns the engine or the surface is no longer live and ready.
func (r *Registry) claim(p *presentable) bool {
	st := p.st
	if !st.engineMu.TryLock() {
		return false
	}
	r.mu.RLock()
	live := r.surfaces[st.id] == st && st.ready() && !st.initInFlight
	p.engine, p.compositor, p.texture = st.res.engine, st.res.compositor, st.res.texture
	r.mu.RUnlock()
	if !live {
		st.engineMu.Unlock()
		return false
	}
	return true
}

// release destroys every resource in drop that keep does not hold.
// Compositor handles go first and targets last, so nothing displayed or
// rendered into outlives its backing.
func (r *Registry) release(keep resources, drop ...resources) {
	var seenComp []compositor.Handle
	for _, d := range drop {
		if d.compositor != 0 && d.compositor != keep.compositor && !slices.Contains(seenComp, d.compositor) {
			seenComp = append(seenComp, d.compositor)
			r.textures.Unregister(d.compositor)
		}
	}
	for _, d := range drop {
		if d.texture != nil && d.texture != keep.texture {
			d.texture.Destroy()
		}
	}
	var seenCache []TextureCache
	for _, d := range drop {
		if d.cache != nil && d.cache != keep.cache && !slices.Contains(seenCache, d.cache) {
			seenCache = append(seenCache, d.cache)
			d.cache.Close()
		}
	}
	var seenEngine []engine.Handle
	for _, d := range drop {
		if d.engine.Valid() && d.engine != keep.engine && !slices.Contains(seenEngine, d.engine) {
			seenEngine = append(seenEngine, d.engine)
			r.binding.Dispose(d.engine)
		}
	}
	for _, d := range drop {
		if d.target != nil && d.target != keep.target {
			d.target.Release()
		}
	}
}

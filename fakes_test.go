package surfacehost

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/surfacehost/compositor"
	"github.com/gogpu/surfacehost/engine"
	"github.com/gogpu/surfacehost/target"
)

// =============================================================================
// Fake engine
// =============================================================================

type fakeDevice struct{}

func (fakeDevice) Device() gpucontext.Device             { return nil }
func (fakeDevice) Queue() gpucontext.Queue               { return nil }
func (fakeDevice) Adapter() gpucontext.Adapter           { return nil }
func (fakeDevice) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatRGBA8Unorm }
func (fakeDevice) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{} }

type fakeContext struct {
	width, height int
	layers        int
	bg            engine.Color
	target        *target.RenderTarget
	ready         bool
}

// fakeEngine records every call. Create blocks on gate when it is set.
type fakeEngine struct {
	mu       sync.Mutex
	next     engine.Handle
	contexts map[engine.Handle]*fakeContext

	creates, resizes, attaches, resets, disposes, polls int

	createErr error
	resizeErr error
	noDevice  bool

	gate    chan struct{}
	entered chan struct{}

	resizeGate    chan struct{}
	resizeEntered chan struct{}
	inResize      map[engine.Handle]bool
	overlaps      int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		contexts: make(map[engine.Handle]*fakeContext),
		inResize: make(map[engine.Handle]bool),
	}
}

// holdResize makes the next Resize calls block until the returned func is
// called. PollFrameReady on a handle blocked in Resize counts as an overlap.
func (e *fakeEngine) holdResize() (entered <-chan struct{}, release func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resizeGate = make(chan struct{})
	e.resizeEntered = make(chan struct{}, 16)
	gate := e.resizeGate
	var once sync.Once
	return e.resizeEntered, func() { once.Do(func() { close(gate) }) }
}

func (e *fakeEngine) overlapCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.overlaps
}

// hold makes the next Create calls block until the returned func is called.
func (e *fakeEngine) hold() (entered <-chan struct{}, release func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate = make(chan struct{})
	e.entered = make(chan struct{}, 16)
	gate := e.gate
	var once sync.Once
	return e.entered, func() { once.Do(func() { close(gate) }) }
}

func (e *fakeEngine) Create(width, height int) (engine.Handle, error) {
	e.mu.Lock()
	gate, entered := e.gate, e.entered
	e.mu.Unlock()
	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-gate
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.creates++
	if e.createErr != nil {
		return engine.None, e.createErr
	}
	e.next++
	e.contexts[e.next] = &fakeContext{width: width, height: height, layers: 1, bg: engine.White}
	return e.next, nil
}

func (e *fakeEngine) Resize(h engine.Handle, width, height, layers int, bg engine.Color) error {
	e.mu.Lock()
	gate, entered := e.resizeGate, e.resizeEntered
	if gate != nil {
		e.inResize[h] = true
		e.mu.Unlock()
		select {
		case entered <- struct{}{}:
		default:
		}
		<-gate
		e.mu.Lock()
		delete(e.inResize, h)
	}
	defer e.mu.Unlock()
	e.resizes++
	if e.resizeErr != nil {
		return e.resizeErr
	}
	c, ok := e.contexts[h]
	if !ok {
		return errors.New("unknown handle")
	}
	c.width, c.height, c.layers, c.bg = width, height, layers, bg
	return nil
}

func (e *fakeEngine) AttachPresentTarget(h engine.Handle, t *target.RenderTarget) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attaches++
	if c, ok := e.contexts[h]; ok {
		c.target = t
	}
}

func (e *fakeEngine) ResetCanvas(h engine.Handle, layers int, bg engine.Color) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resets++
	if c, ok := e.contexts[h]; ok {
		c.layers, c.bg = layers, bg
	}
}

func (e *fakeEngine) PollFrameReady(h engine.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.polls++
	if e.inResize[h] {
		e.overlaps++
	}
	c, ok := e.contexts[h]
	return ok && c.ready
}

func (e *fakeEngine) Device(h engine.Handle) gpucontext.DeviceProvider {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.contexts[h]; !ok || e.noDevice {
		return nil
	}
	return fakeDevice{}
}

func (e *fakeEngine) Dispose(h engine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.contexts[h]; ok {
		e.disposes++
		delete(e.contexts, h)
	}
}

func (e *fakeEngine) setReady(h engine.Handle, ready bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.contexts[h]; ok {
		c.ready = ready
	}
}

func (e *fakeEngine) live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.contexts)
}

func (e *fakeEngine) alive(h engine.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.contexts[h]
	return ok
}

type engineCounts struct {
	creates, resizes, attaches, resets, disposes int
}

func (e *fakeEngine) counts() engineCounts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return engineCounts{e.creates, e.resizes, e.attaches, e.resets, e.disposes}
}

func (e *fakeEngine) set(fn func(e *fakeEngine)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e)
}

// =============================================================================
// Fake compositor
// =============================================================================

// fakeCompositor tracks live handles and the largest number of handles ever
// registered for one target size at once.
type fakeCompositor struct {
	mu      sync.Mutex
	next    compositor.Handle
	live    map[compositor.Handle]*target.RenderTarget
	frames  map[compositor.Handle]int
	events  []string
	maxLive int
}

func newFakeCompositor() *fakeCompositor {
	return &fakeCompositor{
		live:   make(map[compositor.Handle]*target.RenderTarget),
		frames: make(map[compositor.Handle]int),
	}
}

func (c *fakeCompositor) Register(t *target.RenderTarget) compositor.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.live[c.next] = t
	c.events = append(c.events, "register")
	c.maxLive = max(c.maxLive, len(c.live))
	return c.next
}

func (c *fakeCompositor) Unregister(h compositor.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.live[h]; ok {
		delete(c.live, h)
		c.events = append(c.events, "unregister")
	}
}

func (c *fakeCompositor) FrameAvailable(h compositor.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.live[h]; ok {
		c.frames[h]++
	}
}

func (c *fakeCompositor) isLive(h compositor.Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live[h]
	return ok
}

func (c *fakeCompositor) liveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

func (c *fakeCompositor) frameCount(h compositor.Handle) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames[h]
}

// =============================================================================
// Fake texture cache
// =============================================================================

type fakeTexture struct {
	syncs     atomic.Int64
	destroyed atomic.Bool
}

func (t *fakeTexture) Sync()    { t.syncs.Add(1) }
func (t *fakeTexture) Destroy() { t.destroyed.Store(true) }

type fakeCache struct {
	wrapErr error
	closed  atomic.Bool
	wraps   atomic.Int64
}

func (c *fakeCache) Wrap(*target.RenderTarget) (WrappedTexture, error) {
	if c.wrapErr != nil {
		return nil, c.wrapErr
	}
	c.wraps.Add(1)
	return &fakeTexture{}, nil
}

func (c *fakeCache) Close() { c.closed.Store(true) }

// fakeCaches is a TextureCacheFactory that remembers what it made.
type fakeCaches struct {
	mu        sync.Mutex
	createErr error
	wrapErr   error
	made      []*fakeCache
}

func (f *fakeCaches) factory(gpucontext.DeviceProvider) (TextureCache, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	c := &fakeCache{wrapErr: f.wrapErr}
	f.made = append(f.made, c)
	return c, nil
}

func (f *fakeCaches) open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.made {
		if !c.closed.Load() {
			n++
		}
	}
	return n
}

// =============================================================================
// Harness
// =============================================================================

type harness struct {
	engine     *fakeEngine
	compositor *fakeCompositor
	caches     *fakeCaches
	reg        *Registry
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		engine:     newFakeEngine(),
		compositor: newFakeCompositor(),
		caches:     &fakeCaches{},
	}
	all := append([]Option{WithTextureCache(h.caches.factory)}, opts...)
	h.reg = NewRegistry(h.engine, h.compositor, all...)
	t.Cleanup(h.reg.Close)
	return h
}

// wait blocks until every submitted round has published.
func (h *harness) wait() {
	h.reg.rounds.Wait()
}

func (h *harness) get(t *testing.T, req Request) Result {
	t.Helper()
	res, err := h.reg.GetOrInit(t.Context(), req)
	if err != nil {
		t.Fatalf("GetOrInit(%+v): %v", req, err)
	}
	return res
}

// collector gathers async replies.
type collector struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	results []Result
	errs    []error
}

func (c *collector) reply() Reply {
	c.wg.Add(1)
	return func(res Result, err error) {
		c.mu.Lock()
		c.results = append(c.results, res)
		c.errs = append(c.errs, err)
		c.mu.Unlock()
		c.wg.Done()
	}
}

func request(id string, w, h int) Request {
	return Request{SurfaceID: id, Width: w, Height: h, LayerCount: 1, Background: engine.White}
}

package surfacehost

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/surfacehost/compositor"
	"github.com/gogpu/surfacehost/metrics"
)

// VSync delivers one value per display refresh.
type VSync <-chan time.Time

// TickerVSync is a VSync backed by a time.Ticker, standing in for a
// display link.
type TickerVSync struct {
	ticker *time.Ticker
}

// NewTickerVSync returns a refresh source ticking hz times per second.
// Non-positive rates use DefaultRefreshRate.
func NewTickerVSync(hz float64) *TickerVSync {
	if hz <= 0 {
		hz = DefaultRefreshRate
	}
	return &TickerVSync{ticker: time.NewTicker(time.Duration(float64(time.Second) / hz))}
}

// C returns the tick channel.
func (v *TickerVSync) C() VSync { return v.ticker.C }

// Stop stops the ticker.
func (v *TickerVSync) Stop() { v.ticker.Stop() }

// PresentLoop polls every ready surface once per refresh and tells the
// compositor about new frames.
//
// Polling never changes registry state. The engine owns frame-ready
// tracking, so a skipped or repeated tick is harmless.
type PresentLoop struct {
	reg        *Registry
	dispatcher compositor.Dispatcher
	metrics    *metrics.Collector
	log        *slog.Logger
	rate       float64

	mu      sync.Mutex
	scratch []presentable
}

// NewPresentLoop creates a loop over reg. It inherits reg's options; opts
// override them for the loop only.
func NewPresentLoop(reg *Registry, opts ...Option) *PresentLoop {
	o := reg.opts
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &PresentLoop{
		reg:        reg,
		dispatcher: o.dispatcher,
		metrics:    o.metrics,
		log:        o.log(),
		rate:       o.refreshRate,
	}
}

// Tick runs one presentation pass and returns how many surfaces had a
// fresh frame.
func (l *PresentLoop) Tick() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.scratch = l.reg.presentables(l.scratch[:0])
	ready := 0
	for i := range l.scratch {
		p := &l.scratch[i]
		if !l.reg.claim(p) {
			continue
		}
		fresh := l.reg.binding.PollFrameReady(p.engine)
		p.st.engineMu.Unlock()
		if !fresh {
			continue
		}
		ready++
		tex, h, textures := p.texture, p.compositor, l.reg.textures
		l.dispatcher.Dispatch(func() {
			if tex != nil {
				tex.Sync()
			}
			textures.FrameAvailable(h)
		})
	}
	l.metrics.RecordTick(len(l.scratch), ready)

	clear(l.scratch)
	return ready
}

// Run ticks on every value from vsync until ctx is done or vsync closes.
func (l *PresentLoop) Run(ctx context.Context, vsync VSync) {
	l.log.Info("surfacehost: present loop started")
	defer l.log.Info("surfacehost: present loop stopped")
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-vsync:
			if !ok {
				return
			}
			l.Tick()
		}
	}
}

// RunTicker drives the loop at the configured refresh rate until ctx is
// done.
func (l *PresentLoop) RunTicker(ctx context.Context) {
	v := NewTickerVSync(l.rate)
	defer v.Stop()
	l.Run(ctx, v.C())
}

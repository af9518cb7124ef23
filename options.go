package surfacehost

import (
	"log/slog"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/surfacehost/compositor"
	"github.com/gogpu/surfacehost/metrics"
	"github.com/gogpu/surfacehost/target"
	"github.com/gogpu/surfacehost/texcache"
)

// Defaults used when no option overrides them.
const (
	DefaultPoolBound   = 2
	DefaultWorkers     = 2
	DefaultRefreshRate = 60.0
)

// TextureCacheFactory creates the texture cache for an engine device.
// Failures surface as texture-cache-failed.
type TextureCacheFactory func(dev gpucontext.DeviceProvider) (TextureCache, error)

// Option configures a Registry or Plugin during creation.
//
// Example:
//
//	reg := surfacehost.NewRegistry(binding, table,
//	    surfacehost.WithPoolBound(4),
//	    surfacehost.WithWorkers(3),
//	)
type Option func(*options)

// options holds optional configuration.
type options struct {
	poolBound    int
	workers      int
	refreshRate  float64
	logger       *slog.Logger
	metrics      *metrics.Collector
	textureCache TextureCacheFactory
	dispatcher   compositor.Dispatcher
}

// defaultOptions returns the default options.
func defaultOptions() options {
	return options{
		poolBound:    DefaultPoolBound,
		workers:      DefaultWorkers,
		refreshRate:  DefaultRefreshRate,
		textureCache: newHALTextureCache,
		dispatcher:   compositor.Inline{},
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// log returns the configured logger or the package-wide one.
func (o *options) log() *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	return Logger()
}

// WithPoolBound sets how many idle surfaces are kept per (width, height).
// Zero disables pooling: disposed surfaces are always destroyed.
func WithPoolBound(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.poolBound = n
	}
}

// WithWorkers sets the number of initialization workers.
// Values below one are ignored.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithRefreshRate sets the present loop rate in Hz when it drives itself
// with NewTickerVSync. Values of zero or less are ignored.
func WithRefreshRate(hz float64) Option {
	return func(o *options) {
		if hz > 0 {
			o.refreshRate = hz
		}
	}
}

// WithLogger sets a logger for this instance instead of the package-wide one.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics records registry, pool and present loop activity in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// WithTextureCache replaces the HAL-backed texture cache.
func WithTextureCache(f TextureCacheFactory) Option {
	return func(o *options) {
		if f != nil {
			o.textureCache = f
		}
	}
}

// WithDispatcher sets where the present loop delivers frame notifications.
// The default delivers them inline on the loop goroutine.
func WithDispatcher(d compositor.Dispatcher) Option {
	return func(o *options) {
		if d != nil {
			o.dispatcher = d
		}
	}
}

// TextureCache wraps render targets for compositor sampling.
type TextureCache interface {
	Wrap(t *target.RenderTarget) (WrappedTexture, error)
	Close()
}

// WrappedTexture is a compositor-visible texture bound to one target.
type WrappedTexture interface {
	// Sync uploads the target's current pixels.
	Sync()
	// Destroy releases the texture. It must be idempotent.
	Destroy()
}

// halTextureCache adapts texcache.Cache to TextureCache.
type halTextureCache struct {
	*texcache.Cache
}

func (c halTextureCache) Wrap(t *target.RenderTarget) (WrappedTexture, error) {
	tex, err := c.Cache.Wrap(t)
	if err != nil {
		return nil, err
	}
	return tex, nil
}

func newHALTextureCache(dev gpucontext.DeviceProvider) (TextureCache, error) {
	c, err := texcache.New(dev)
	if err != nil {
		return nil, err
	}
	return halTextureCache{c}, nil
}

package surfacehost

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gogpu/surfacehost/compositor"
	"github.com/gogpu/surfacehost/engine"
)

// Method names understood by Plugin.HandleMethod.
const (
	MethodGetOrInitSurface = "getOrInitSurface"
	MethodDisposeSurface   = "disposeSurface"

	// Older UI code uses these names for the same calls.
	MethodGetTextureInfo = "getTextureInfo"
	MethodDisposeTexture = "disposeTexture"
)

// registered guards process-wide plugin registration.
var registered atomic.Bool

// Host is what the embedding application provides to the plugin.
type Host struct {
	// Engine allocates rendering contexts.
	Engine engine.Binding
	// Textures is the display pipeline's texture registry.
	Textures compositor.Registry
}

// MethodReply answers one method call from the UI layer.
type MethodReply interface {
	Success(v any)
	Error(code, message string, details any)
	NotImplemented()
}

// Plugin binds the UI method channel to a Registry and its PresentLoop.
type Plugin struct {
	registry *Registry
	present  *PresentLoop

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// Register creates the process-wide plugin. Only the first call succeeds;
// later calls return ErrAlreadyRegistered without constructing anything,
// even after Close.
func Register(host Host, opts ...Option) (*Plugin, error) {
	if host.Engine == nil || host.Textures == nil {
		return nil, ErrIncompleteHost
	}
	if !registered.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRegistered
	}
	reg := NewRegistry(host.Engine, host.Textures, opts...)
	return &Plugin{
		registry: reg,
		present:  NewPresentLoop(reg),
	}, nil
}

// Registry returns the plugin's surface registry.
func (p *Plugin) Registry() *Registry { return p.registry }

// PresentLoop returns the plugin's present loop.
func (p *Plugin) PresentLoop() *PresentLoop { return p.present }

// Start runs the present loop at the configured refresh rate on its own
// goroutine until Close. Calling Start more than once has no effect.
func (p *Plugin) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil || p.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		p.present.RunTicker(ctx)
	}()
}

// HandleMethod dispatches one UI call. getOrInitSurface may answer after
// HandleMethod returns.
func (p *Plugin) HandleMethod(method string, args map[string]any, reply MethodReply) {
	switch method {
	case MethodGetOrInitSurface, MethodGetTextureInfo:
		p.registry.Acquire(ParseRequest(args), func(res Result, err error) {
			if err != nil {
				reply.Error(ErrorCode(err), err.Error(), nil)
				return
			}
			reply.Success(res.Map())
		})
	case MethodDisposeSurface, MethodDisposeTexture:
		p.registry.Dispose(ParseSurfaceID(args))
		reply.Success(nil)
	default:
		reply.NotImplemented()
	}
}

// Close stops the present loop and destroys every surface. The
// registration guard stays set.
func (p *Plugin) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	p.registry.Close()
}

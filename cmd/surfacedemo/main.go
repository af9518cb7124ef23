// Command surfacedemo drives the surface host end to end with the software
// engine: it creates surfaces, animates them, resizes and disposes one, and
// saves the last presented frame as PNG.
package main

import (
	"context"
	"errors"
	"flag"
	"image/png"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gogpu/surfacehost"
	"github.com/gogpu/surfacehost/compositor"
	"github.com/gogpu/surfacehost/config"
	"github.com/gogpu/surfacehost/engine"
	"github.com/gogpu/surfacehost/engine/soft"
	"github.com/gogpu/surfacehost/metrics"
	"github.com/gogpu/surfacehost/target"
)

func main() {
	var (
		configPath  = flag.String("config", "", "YAML config file")
		width       = flag.Int("width", 640, "surface width when the config lists none")
		height      = flag.Int("height", 480, "surface height when the config lists none")
		frames      = flag.Int("frames", 120, "frames to animate")
		output      = flag.String("output", "surface.png", "output file for the last frame")
		metricsAddr = flag.String("metrics", "", "serve Prometheus metrics on this address")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	surfacehost.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	binding, err := engine.Open(cfg.Engine)
	if err != nil {
		log.Fatalf("Failed to open engine: %v", err)
	}
	eng, ok := binding.(*soft.Engine)
	if !ok {
		log.Fatalf("surfacedemo needs the %q engine, got %T", soft.Name, binding)
	}
	defer eng.Close()

	var delivered atomic.Int64
	table := compositor.NewTable(func(compositor.Handle, *target.RenderTarget) {
		delivered.Add(1)
	})
	mainQueue := compositor.NewMainQueue()
	go mainQueue.Run(ctx)
	defer mainQueue.Close()

	collector := metrics.NewCollector("")
	opts := append(cfg.Options(),
		surfacehost.WithMetrics(collector),
		surfacehost.WithDispatcher(mainQueue),
	)
	reg := surfacehost.NewRegistry(eng, table, opts...)
	defer reg.Close()

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "err", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
	}

	requests := cfg.Requests()
	if len(requests) == 0 {
		requests = []surfacehost.Request{{
			SurfaceID:  surfacehost.DefaultSurfaceID,
			Width:      *width,
			Height:     *height,
			LayerCount: 2,
			Background: 0xFF1E2430,
		}}
	}

	results := make([]surfacehost.Result, len(requests))
	for i, r := range requests {
		res, err := reg.GetOrInit(ctx, r)
		if err != nil {
			log.Fatalf("Failed to create surface %q: %v", r.SurfaceID, err)
		}
		results[i] = res
		log.Printf("Surface %q ready: engine=%d compositor=%d %dx%d",
			r.SurfaceID, res.EngineHandle, res.CompositorHandle, res.Width, res.Height)
	}

	loop := surfacehost.NewPresentLoop(reg)
	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.RunTicker(loopCtx)
	}()

	animate(ctx, eng, results, *frames, cfg.RefreshRate)

	// Resize the first surface and show that the handle is replaced.
	first := requests[0]
	first.Width, first.Height = first.Width*3/2, first.Height*3/2
	resized, err := reg.GetOrInit(ctx, first)
	if err != nil {
		log.Fatalf("Failed to resize surface %q: %v", first.SurfaceID, err)
	}
	log.Printf("Surface %q resized: compositor %d -> %d, new engine=%v",
		first.SurfaceID, results[0].CompositorHandle, resized.CompositorHandle, resized.IsNewEngine)
	results[0] = resized
	animate(ctx, eng, results[:1], *frames/4, cfg.RefreshRate)

	stopLoop()
	<-loopDone
	mainQueue.Drain()

	if err := save(table, resized.CompositorHandle, *output); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}

	for _, r := range requests {
		reg.Dispose(r.SurfaceID)
	}
	log.Printf("Delivered %d frames; %d surfaces pooled. Last frame saved to %s",
		delivered.Load(), reg.PoolLen(), *output)
}

// animate cycles the top layer of every surface through a colour ramp.
func animate(ctx context.Context, eng *soft.Engine, surfaces []surfacehost.Result, frames int, hz float64) {
	tick := time.NewTicker(time.Duration(float64(time.Second) / hz))
	defer tick.Stop()

	for f := range frames {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		shade := uint32(f*255/max(frames-1, 1)) & 0xFF
		col := engine.Color(0x80000000 | shade<<16 | (255-shade)<<8 | 0x40)
		for _, s := range surfaces {
			_ = eng.FillLayer(s.EngineHandle, 1, col)
		}
	}
	for _, s := range surfaces {
		_ = eng.Sync(s.EngineHandle)
	}
}

func save(table *compositor.Table, h compositor.Handle, path string) error {
	img, ok := table.Pull(h)
	if !ok {
		return errors.New("surface is not registered")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

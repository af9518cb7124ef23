// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package metrics provides Prometheus instrumentation for the surface host.
//
// A Collector owns its own registry so several hosts can live in one
// process. All record methods are safe on a nil *Collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Round outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeDisposed = "disposed"
)

// Round kinds.
const (
	KindCreate = "create"
	KindResize = "resize"
	KindReset  = "reset"
	KindRebind = "rebind"
)

// Collector records surface host metrics.
type Collector struct {
	registry *prometheus.Registry

	rounds       *prometheus.CounterVec
	roundLatency *prometheus.HistogramVec
	coalesced    prometheus.Counter
	hotHits      prometheus.Counter

	poolHits      prometheus.Counter
	poolMisses    prometheus.Counter
	poolEvictions prometheus.Counter
	poolSize      prometheus.Gauge

	liveSurfaces prometheus.Gauge
	disposals    prometheus.Counter

	ticks  prometheus.Counter
	polls  prometheus.Counter
	frames prometheus.Counter
}

// NewCollector creates a collector. An empty namespace defaults to
// "surfacehost".
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "surfacehost"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.rounds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "init",
			Name:      "rounds_total",
			Help:      "Initialization rounds by kind and outcome (success, disposed or an error code)",
		},
		[]string{"kind", "outcome"},
	)
	c.roundLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "init",
			Name:      "round_duration_seconds",
			Help:      "Wall time of initialization rounds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"kind"},
	)
	c.coalesced = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "init",
		Name:      "coalesced_total",
		Help:      "Requests that joined an in-flight round",
	})
	c.hotHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "hot_hits_total",
		Help:      "Requests answered from ready state without a round",
	})

	c.poolHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "hits_total",
		Help:      "Idle pool takes that returned an entry",
	})
	c.poolMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "misses_total",
		Help:      "Idle pool takes that found nothing",
	})
	c.poolEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "evictions_total",
		Help:      "Idle entries destroyed because their bucket was full",
	})
	c.poolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "entries",
		Help:      "Idle entries currently pooled",
	})

	c.liveSurfaces = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "surfaces",
		Help:      "Surfaces currently addressable by id",
	})
	c.disposals = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "disposals_total",
		Help:      "Surfaces removed by dispose",
	})

	c.ticks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "present",
		Name:      "ticks_total",
		Help:      "Present loop ticks",
	})
	c.polls = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "present",
		Name:      "polls_total",
		Help:      "Engine frame-ready polls",
	})
	c.frames = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "present",
		Name:      "frames_total",
		Help:      "Frame-available notifications dispatched to the compositor",
	})

	c.registry.MustRegister(
		c.rounds, c.roundLatency, c.coalesced, c.hotHits,
		c.poolHits, c.poolMisses, c.poolEvictions, c.poolSize,
		c.liveSurfaces, c.disposals,
		c.ticks, c.polls, c.frames,
	)
	return c
}

// Registry returns the Prometheus registry backing c.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordRound records a finished initialization round.
func (c *Collector) RecordRound(kind, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.rounds.WithLabelValues(kind, outcome).Inc()
	c.roundLatency.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordCoalesced records a request that joined an in-flight round.
func (c *Collector) RecordCoalesced() {
	if c == nil {
		return
	}
	c.coalesced.Inc()
}

// RecordHotHit records a request answered without a round.
func (c *Collector) RecordHotHit() {
	if c == nil {
		return
	}
	c.hotHits.Inc()
}

// RecordPoolTake records an idle pool lookup.
func (c *Collector) RecordPoolTake(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.poolHits.Inc()
	} else {
		c.poolMisses.Inc()
	}
}

// RecordPoolEvictions records n evicted idle entries.
func (c *Collector) RecordPoolEvictions(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.poolEvictions.Add(float64(n))
}

// SetPoolSize sets the pooled entry gauge.
func (c *Collector) SetPoolSize(n int) {
	if c == nil {
		return
	}
	c.poolSize.Set(float64(n))
}

// SetLiveSurfaces sets the live surface gauge.
func (c *Collector) SetLiveSurfaces(n int) {
	if c == nil {
		return
	}
	c.liveSurfaces.Set(float64(n))
}

// RecordDispose records a dispose that removed a surface.
func (c *Collector) RecordDispose() {
	if c == nil {
		return
	}
	c.disposals.Inc()
}

// RecordTick records one present tick that polled n surfaces and found
// ready frames on ready of them.
func (c *Collector) RecordTick(n, ready int) {
	if c == nil {
		return
	}
	c.ticks.Inc()
	c.polls.Add(float64(n))
	c.frames.Add(float64(ready))
}

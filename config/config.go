// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package config loads surface host settings from YAML.
//
// A missing key keeps its default, an unknown key is an error:
//
//	engine: soft
//	pool_bound: 2
//	workers: 2
//	refresh_rate: 60
//	log_level: info
//	metrics_addr: ":9090"
//	surfaces:
//	  - id: canvas
//	    width: 800
//	    height: 600
//	    layers: 2
//	    background: "0xFFFFFFFF"
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/surfacehost"
	"github.com/gogpu/surfacehost/engine"
)

// Config holds host settings.
type Config struct {
	// Engine is the backend name passed to engine.Open. Empty selects the
	// best available backend.
	Engine      string          `yaml:"engine"`
	PoolBound   int             `yaml:"pool_bound"`
	Workers     int             `yaml:"workers"`
	RefreshRate float64         `yaml:"refresh_rate"`
	LogLevel    string          `yaml:"log_level"`
	MetricsAddr string          `yaml:"metrics_addr"`
	Surfaces    []SurfaceConfig `yaml:"surfaces"`
}

// SurfaceConfig describes a surface to create at startup.
type SurfaceConfig struct {
	ID         string `yaml:"id"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Layers     int    `yaml:"layers"`
	Background *Color `yaml:"background"`
}

// Color is an ARGB colour written as an integer or a "0xAARRGGBB" string.
type Color engine.Color

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Color) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: colour must be a scalar", node.Line)
	}
	s := strings.ToLower(strings.TrimSpace(node.Value))
	var (
		v   uint64
		err error
	)
	switch {
	case strings.HasPrefix(s, "0x"):
		v, err = strconv.ParseUint(s[2:], 16, 32)
	case strings.HasPrefix(s, "#"):
		v, err = strconv.ParseUint(s[1:], 16, 32)
	case node.ShortTag() == "!!int":
		v, err = strconv.ParseUint(s, 10, 32)
	default:
		v, err = strconv.ParseUint(s, 16, 32)
	}
	if err != nil {
		return fmt.Errorf("line %d: invalid colour %q", node.Line, node.Value)
	}
	*c = Color(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (c Color) MarshalYAML() (any, error) {
	return fmt.Sprintf("0x%08X", uint32(c)), nil
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Engine:      "",
		PoolBound:   surfacehost.DefaultPoolBound,
		Workers:     surfacehost.DefaultWorkers,
		RefreshRate: surfacehost.DefaultRefreshRate,
		LogLevel:    "info",
	}
}

// Load reads path on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.PoolBound < 0 {
		return fmt.Errorf("pool_bound must be >= 0, got %d", c.PoolBound)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.RefreshRate <= 0 {
		return fmt.Errorf("refresh_rate must be > 0, got %v", c.RefreshRate)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Surfaces))
	for i, s := range c.Surfaces {
		if s.ID == "" {
			return fmt.Errorf("surfaces[%d]: id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("surfaces[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Options converts the settings to registry options.
func (c *Config) Options() []surfacehost.Option {
	return []surfacehost.Option{
		surfacehost.WithPoolBound(c.PoolBound),
		surfacehost.WithWorkers(c.Workers),
		surfacehost.WithRefreshRate(c.RefreshRate),
	}
}

// Requests returns the startup surfaces as normalized requests. Zero sizes
// and layer counts and a missing background take the request defaults.
func (c *Config) Requests() []surfacehost.Request {
	out := make([]surfacehost.Request, 0, len(c.Surfaces))
	for _, s := range c.Surfaces {
		r := surfacehost.Request{
			SurfaceID:  s.ID,
			Width:      orDefault(s.Width, surfacehost.DefaultWidth),
			Height:     orDefault(s.Height, surfacehost.DefaultHeight),
			LayerCount: orDefault(s.Layers, surfacehost.DefaultLayerCount),
			Background: surfacehost.DefaultBackground,
		}
		if s.Background != nil {
			r.Background = engine.Color(*s.Background)
		}
		out = append(out, r.Normalize())
	}
	return out
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

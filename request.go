package surfacehost

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/gogpu/surfacehost/compositor"
	"github.com/gogpu/surfacehost/engine"
	"github.com/gogpu/surfacehost/target"
)

// Request defaults and clamp bounds.
const (
	DefaultSurfaceID  = "default"
	DefaultWidth      = 512
	DefaultHeight     = 512
	DefaultLayerCount = 1
	DefaultBackground = engine.White

	MaxDimension  = target.MaxDimension
	MaxLayerCount = 1024
)

// Request asks for a surface of the given geometry.
type Request struct {
	SurfaceID  string
	Width      int
	Height     int
	LayerCount int
	Background engine.Color
}

// Normalize returns r with an id defaulted and every number clamped into
// range. Malformed requests are never rejected.
func (r Request) Normalize() Request {
	if r.SurfaceID == "" {
		r.SurfaceID = DefaultSurfaceID
	}
	r.Width = clamp(r.Width, 1, MaxDimension)
	r.Height = clamp(r.Height, 1, MaxDimension)
	r.LayerCount = clamp(r.LayerCount, 1, MaxLayerCount)
	return r
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Result describes a ready surface.
type Result struct {
	CompositorHandle compositor.Handle
	EngineHandle     engine.Handle
	Width            int
	Height           int
	IsNewEngine      bool
}

// Map returns the wire form of r.
func (r Result) Map() map[string]any {
	return map[string]any{
		"compositorHandle": int64(r.CompositorHandle),
		"engineHandle":     uint64(r.EngineHandle),
		"width":            r.Width,
		"height":           r.Height,
		"isNewEngine":      r.IsNewEngine,
	}
}

// ParseRequest builds a normalized Request from a method argument map.
// Missing or unusable values fall back to their defaults.
func ParseRequest(args map[string]any) Request {
	r := Request{
		SurfaceID:  ParseSurfaceID(args),
		Width:      int(argInt(args, "width", DefaultWidth)),
		Height:     int(argInt(args, "height", DefaultHeight)),
		LayerCount: int(argInt(args, "layerCount", DefaultLayerCount)),
		Background: DefaultBackground,
	}
	for _, key := range []string{"backgroundColorARGB", "backgroundColorArgb"} {
		if bg, ok := argUint32(args, key); ok {
			r.Background = engine.Color(bg)
			break
		}
	}
	return r.Normalize()
}

// ParseSurfaceID extracts the surface id from a method argument map.
// Integer ids map to their decimal form, so 7 and "7" name the same
// surface. Missing, empty or non-numeric values give DefaultSurfaceID.
func ParseSurfaceID(args map[string]any) string {
	switch v := args["surfaceId"].(type) {
	case string:
		if v != "" {
			return v
		}
	case int, int8, int16, int32, int64:
		return strconv.FormatInt(reflect.ValueOf(v).Int(), 10)
	case uint, uint8, uint16, uint32, uint64:
		return strconv.FormatUint(reflect.ValueOf(v).Uint(), 10)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, ok := number(v); ok && f >= math.MinInt64 && f < math.MaxInt64 {
			return strconv.FormatInt(int64(f), 10)
		}
	case float32, float64:
		if f, ok := number(v); ok && f >= math.MinInt64 && f < math.MaxInt64 {
			return strconv.FormatInt(int64(f), 10)
		}
	}
	return DefaultSurfaceID
}

// argInt reads an integer argument, saturating to the int32 range so the
// later clamp sees the sign of out-of-range values.
func argInt(args map[string]any, key string, def int64) int64 {
	v, ok := number(args[key])
	if !ok {
		return def
	}
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int64(v)
}

// argUint32 reads a colour. Values above 32 bits keep their low 32 bits,
// matching how ARGB integers cross most transports.
func argUint32(args map[string]any, key string) (uint32, bool) {
	switch v := args[key].(type) {
	case uint32:
		return v, true
	case uint64:
		return uint32(v), true
	case int64:
		return uint32(v), true
	case int:
		return uint32(v), true
	}
	f, ok := number(args[key])
	if !ok || f < math.MinInt64 || f > math.MaxUint64 {
		return 0, false
	}
	if f < 0 {
		return uint32(int64(f)), true
	}
	return uint32(uint64(f)), true
}

// number converts the numeric kinds a transport may produce.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return finite(float64(n))
	case float64:
		return finite(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return finite(f)
	case string:
		s := strings.ToLower(strings.TrimSpace(n))
		if strings.HasPrefix(s, "0x") {
			u, err := strconv.ParseUint(s[2:], 16, 64)
			if err != nil {
				return 0, false
			}
			return float64(u), true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return finite(f)
	}
	return 0, false
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return math.Trunc(f), true
}

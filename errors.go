package surfacehost

import (
	"errors"
	"fmt"
)

// Stage errors. Every failed initialization round resolves its callers
// with exactly one of these, wrapped with the surface id and the cause.
var (
	// ErrEngineCreate is returned when the engine refuses to allocate or
	// resize a context.
	ErrEngineCreate = errors.New("surfacehost: engine create failed")

	// ErrDeviceUnavailable is returned when the engine exposes no usable
	// graphics device.
	ErrDeviceUnavailable = errors.New("surfacehost: device unavailable")

	// ErrTextureCache is returned when no texture cache can be created for
	// the engine's device.
	ErrTextureCache = errors.New("surfacehost: texture cache failed")

	// ErrTextureWrap is returned when the compositor-visible texture cannot
	// be derived from the pixel buffer.
	ErrTextureWrap = errors.New("surfacehost: texture wrap failed")

	// ErrSurfaceDisposed is returned to callers whose request was in flight
	// when the surface was disposed.
	ErrSurfaceDisposed = errors.New("surfacehost: surface disposed")

	// ErrRegistryClosed is returned after Registry.Close.
	ErrRegistryClosed = errors.New("surfacehost: registry closed")

	// ErrAlreadyRegistered is returned by Register after the first call.
	ErrAlreadyRegistered = errors.New("surfacehost: plugin already registered")

	// ErrIncompleteHost is returned by Register when Host lacks an engine
	// or a compositor texture table.
	ErrIncompleteHost = errors.New("surfacehost: host needs engine and textures")
)

// Wire codes reported to the UI layer.
const (
	CodeEngineCreate      = "engine-create-failed"
	CodeDeviceUnavailable = "device-unavailable"
	CodeTextureCache      = "texture-cache-failed"
	CodeTextureWrap       = "texture-wrap-failed"
	CodeSurfaceDisposed   = "surface-disposed"
	CodeRegistryClosed    = "registry-closed"
	CodeUnknown           = "unknown"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrEngineCreate, CodeEngineCreate},
	{ErrDeviceUnavailable, CodeDeviceUnavailable},
	{ErrTextureCache, CodeTextureCache},
	{ErrTextureWrap, CodeTextureWrap},
	{ErrSurfaceDisposed, CodeSurfaceDisposed},
	{ErrRegistryClosed, CodeRegistryClosed},
}

// ErrorCode returns the wire code for err, or "" for nil.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeUnknown
}

// stageError wraps a stage sentinel with the surface id and optional cause.
func stageError(stage error, id string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: surface %q", stage, id)
	}
	return fmt.Errorf("%w: surface %q: %w", stage, id, cause)
}

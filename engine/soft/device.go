// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package soft

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

var errNoAdapters = errors.New("soft: no adapters")

// Device is the device reference the soft engine hands out. It is backed by
// the no-op HAL so compositor textures can be created without a GPU.
//
// Besides gpucontext.DeviceProvider it exposes HalDevice and HalQueue,
// which texture caches use to reach the HAL objects.
type Device struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
}

// OpenDevice opens a no-op HAL device.
func OpenDevice() (*Device, error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("soft: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, errNoAdapters
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("soft: open adapter: %w", err)
	}
	return &Device{instance: instance, device: open.Device, queue: open.Queue}, nil
}

// Device returns nil; the soft device has no gpucontext-level device.
func (d *Device) Device() gpucontext.Device { return nil }

// Queue returns nil.
func (d *Device) Queue() gpucontext.Queue { return nil }

// Adapter returns nil.
func (d *Device) Adapter() gpucontext.Adapter { return nil }

// AdapterInfo reports the shared device as a software adapter.
func (d *Device) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "surfacehost soft", Type: gpucontext.AdapterTypeSoftware}
}

// SurfaceFormat returns the format soft render targets use.
func (d *Device) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatRGBA8Unorm
}

// HalDevice returns the underlying hal.Device.
func (d *Device) HalDevice() any { return d.device }

// HalQueue returns the underlying hal.Queue.
func (d *Device) HalQueue() any { return d.queue }

// Close destroys the device and its instance.
func (d *Device) Close() {
	if d.device != nil {
		d.device.Destroy()
		d.device = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
}

var _ gpucontext.DeviceProvider = (*Device)(nil)

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package engine

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/surfacehost/target"
)

type nopBinding struct{ name string }

func (nopBinding) Create(int, int) (Handle, error)                   { return 1, nil }
func (nopBinding) Resize(Handle, int, int, int, Color) error         { return nil }
func (nopBinding) AttachPresentTarget(Handle, *target.RenderTarget)  {}
func (nopBinding) ResetCanvas(Handle, int, Color)                    {}
func (nopBinding) PollFrameReady(Handle) bool                        { return false }
func (nopBinding) Device(Handle) gpucontext.DeviceProvider           { return nil }
func (nopBinding) Dispose(Handle)                                    {}

func TestColorComponents(t *testing.T) {
	c := Color(0x80112233)
	if c.A() != 0x80 || c.R() != 0x11 || c.G() != 0x22 || c.B() != 0x33 {
		t.Errorf("components = %x %x %x %x", c.A(), c.R(), c.G(), c.B())
	}
	if got := White.String(); got != "#FFFFFFFF" {
		t.Errorf("White.String() = %q", got)
	}
}

func TestHandleValid(t *testing.T) {
	if None.Valid() {
		t.Error("None.Valid() = true")
	}
	if !Handle(7).Valid() {
		t.Error("Handle(7).Valid() = false")
	}
}

func TestRegistryPriority(t *testing.T) {
	r := NewRegistry()
	r.Register("low", 10, func() (Binding, error) { return nopBinding{"low"}, nil }, nil)
	r.Register("high", 100, func() (Binding, error) { return nopBinding{"high"}, nil }, nil)
	r.Register("off", 1000, func() (Binding, error) { return nopBinding{"off"}, nil }, func() bool { return false })

	names := r.Available()
	if len(names) != 2 || names[0] != "high" || names[1] != "low" {
		t.Fatalf("Available() = %v, want [high low]", names)
	}

	b, err := r.OpenBest()
	if err != nil {
		t.Fatalf("OpenBest: %v", err)
	}
	if b.(nopBinding).name != "high" {
		t.Errorf("OpenBest picked %q", b.(nopBinding).name)
	}
}

func TestRegistryOpenErrors(t *testing.T) {
	r := NewRegistry()
	r.Register("off", 1, func() (Binding, error) { return nopBinding{}, nil }, func() bool { return false })

	var nf *BackendNotFoundError
	if _, err := r.Open("missing"); !errors.As(err, &nf) {
		t.Errorf("Open(missing) err = %v, want BackendNotFoundError", err)
	}
	var un *BackendUnavailableError
	if _, err := r.Open("off"); !errors.As(err, &un) {
		t.Errorf("Open(off) err = %v, want BackendUnavailableError", err)
	}
	if _, err := NewRegistry().OpenBest(); !errors.Is(err, ErrNoBackendAvailable) {
		t.Errorf("OpenBest on empty registry err = %v", err)
	}
}

func TestRegistryFallback(t *testing.T) {
	r := NewRegistry()
	r.Register("broken", 100, func() (Binding, error) { return nil, errors.New("no gpu") }, nil)
	r.Register("ok", 1, func() (Binding, error) { return nopBinding{"ok"}, nil }, nil)

	b, err := r.OpenBest()
	if err != nil {
		t.Fatalf("OpenBest: %v", err)
	}
	if b.(nopBinding).name != "ok" {
		t.Errorf("fallback picked %q", b.(nopBinding).name)
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register("tmp", 1, func() (Binding, error) { return nopBinding{}, nil }, nil)
	if _, ok := r.Get("tmp"); !ok {
		t.Fatal("tmp not registered")
	}
	r.Unregister("tmp")
	if _, ok := r.Get("tmp"); ok {
		t.Error("tmp still registered after Unregister")
	}
}

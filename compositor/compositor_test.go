// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compositor

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/surfacehost/target"
)

func TestTableLifecycle(t *testing.T) {
	var notified []Handle
	table := NewTable(func(h Handle, _ *target.RenderTarget) { notified = append(notified, h) })

	rt, _ := target.New(4, 4)
	h1 := table.Register(rt)
	h2 := table.Register(rt)
	if h1 == 0 || h2 == 0 || h1 == h2 {
		t.Fatalf("handles = %d, %d; want distinct non-zero", h1, h2)
	}
	if table.Len() != 2 {
		t.Errorf("Len() = %d, want 2", table.Len())
	}

	table.FrameAvailable(h1)
	table.FrameAvailable(h1)
	if table.Frames(h1) != 2 {
		t.Errorf("Frames(h1) = %d, want 2", table.Frames(h1))
	}
	if len(notified) != 2 {
		t.Errorf("onFrame called %d times, want 2", len(notified))
	}

	table.Unregister(h1)
	table.Unregister(h1)
	table.FrameAvailable(h1)
	if table.Frames(h1) != 0 {
		t.Error("unregistered handle still reports frames")
	}
	if len(notified) != 2 {
		t.Error("onFrame called for unregistered handle")
	}

	reg, unreg := table.Stats()
	if reg != 2 || unreg != 1 {
		t.Errorf("Stats() = %d, %d; want 2, 1", reg, unreg)
	}
	if hs := table.Handles(); len(hs) != 1 || hs[0] != h2 {
		t.Errorf("Handles() = %v, want [%d]", hs, h2)
	}
}

func TestTablePull(t *testing.T) {
	table := NewTable(nil)
	rt, _ := target.New(2, 2)
	blue := color.RGBA{B: 255, A: 255}
	_ = rt.Write(func(img *image.RGBA) { img.SetRGBA(1, 1, blue) })

	h := table.Register(rt)
	img, ok := table.Pull(h)
	if !ok {
		t.Fatal("Pull failed")
	}
	if img.RGBAAt(1, 1) != blue {
		t.Errorf("pulled pixel = %v", img.RGBAAt(1, 1))
	}

	rt.Release()
	if _, ok := table.Pull(h); ok {
		t.Error("Pull succeeded on released target")
	}
	if _, ok := table.Pull(999); ok {
		t.Error("Pull succeeded on unknown handle")
	}
}

func TestMainQueueOrder(t *testing.T) {
	q := NewMainQueue()
	var got []int
	for i := range 5 {
		q.Dispatch(func() { got = append(got, i) })
	}
	if q.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", q.Len())
	}
	if n := q.Drain(); n != 5 {
		t.Errorf("Drain() = %d, want 5", n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v", got)
		}
	}
}

func TestMainQueueRun(t *testing.T) {
	q := NewMainQueue()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()

	var count atomic.Int32
	var wg sync.WaitGroup
	wg.Add(100)
	for range 100 {
		q.Dispatch(func() {
			count.Add(1)
			wg.Done()
		})
	}

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
	case <-time.After(5 * time.Second):
		t.Fatal("queue did not drain")
	}

	cancel()
	<-done
	if count.Load() != 100 {
		t.Errorf("ran %d items, want 100", count.Load())
	}
}

func TestMainQueueClose(t *testing.T) {
	q := NewMainQueue()
	ran := false
	q.Dispatch(func() { ran = true })
	q.Close()
	q.Dispatch(func() { t.Error("work accepted after Close") })
	q.Drain()
	if !ran {
		t.Error("work queued before Close was dropped")
	}
}

func TestInline(t *testing.T) {
	ran := false
	Inline{}.Dispatch(func() { ran = true })
	if !ran {
		t.Error("Inline did not run fn")
	}
}

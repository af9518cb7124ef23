// Package parallel runs surface initialization rounds on a fixed set of
// worker goroutines.
package parallel

import (
	"hash/maphash"
	"runtime"
	"sync"
)

// Pool is a fixed-size set of workers with one FIFO queue each.
//
// SubmitKeyed places work on the queue its key hashes to. An idle worker
// takes from its own queue first and then from any other, so one blocked
// engine call never strands the work queued behind it.
//
// Pool is safe for concurrent use.
type Pool struct {
	seed maphash.Seed

	mu     sync.Mutex
	cond   *sync.Cond
	queues [][]func()
	queued int
	active int
	closed bool

	wg sync.WaitGroup
}

// New starts a pool with n workers. If n is zero or negative, GOMAXPROCS
// is used.
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		seed:   maphash.MakeSeed(),
		queues: make([][]func(), n),
	}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(n)
	for i := range n {
		go p.work(i)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.queues)
}

func (p *Pool) home(key string) int {
	return int(maphash.String(p.seed, key) % uint64(len(p.queues))) //nolint:gosec // len > 0
}

func (p *Pool) work(i int) {
	defer p.wg.Done()
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		fn := p.take(i)
		if fn == nil {
			if p.closed {
				return
			}
			p.cond.Wait()
			continue
		}
		p.active++
		p.mu.Unlock()
		fn()
		p.mu.Lock()
		p.active--
	}
}

// take pops the oldest item from queue i, or steals the oldest item from
// the first non-empty queue after it. p.mu must be held.
func (p *Pool) take(i int) func() {
	n := len(p.queues)
	for k := range n {
		j := (i + k) % n
		if q := p.queues[j]; len(q) > 0 {
			fn := q[0]
			q[0] = nil
			p.queues[j] = q[1:]
			p.queued--
			return fn
		}
	}
	return nil
}

// SubmitKeyed queues fn on the worker that owns key. It reports false,
// leaving fn unrun, once the pool is closed.
func (p *Pool) SubmitKeyed(key string, fn func()) bool {
	if fn == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	i := p.home(key)
	p.queues[i] = append(p.queues[i], fn)
	p.queued++
	p.cond.Signal()
	return true
}

// RunAll runs every fn and returns when all have finished. Work is spread
// across the workers; after Close it runs on the calling goroutine.
func (p *Pool) RunAll(fns []func()) {
	var wg sync.WaitGroup
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
		return
	}
	for i, fn := range fns {
		wg.Add(1)
		q := i % len(p.queues)
		p.queues[q] = append(p.queues[q], func() {
			defer wg.Done()
			fn()
		})
		p.queued++
	}
	p.cond.Broadcast()
	p.mu.Unlock()
	wg.Wait()
}

// Pending returns the number of queued items not yet started.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queued
}

// Active returns the number of items currently running.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Close stops accepting work, lets the workers finish everything already
// queued and waits for them to exit. Close is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

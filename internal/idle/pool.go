// Package idle implements a bounded, size-keyed pool of idle resources.
//
// Entries are grouped by Size. Take pops the most recently added entry of
// a bucket (LIFO) so warm resources are reused first. Put appends and, once
// a bucket exceeds the bound, hands back the oldest entries (FIFO within the
// bucket) for the caller to destroy.
//
// Pool is not safe for concurrent use; callers guard it with their own lock
// and destroy evicted entries after releasing it.
package idle

// Size keys a bucket.
type Size struct {
	Width, Height int
}

// Pool is a bounded per-Size cache.
type Pool[T any] struct {
	bound   int
	buckets map[Size][]T
	count   int
}

// New creates a pool holding at most bound entries per Size.
// A bound of zero or less disables pooling.
func New[T any](bound int) *Pool[T] {
	if bound < 0 {
		bound = 0
	}
	return &Pool[T]{
		bound:   bound,
		buckets: make(map[Size][]T),
	}
}

// Bound returns the per-Size bound.
func (p *Pool[T]) Bound() int {
	return p.bound
}

// Enabled reports whether Put can retain entries.
func (p *Pool[T]) Enabled() bool {
	return p.bound > 0
}

// Take removes and returns the most recently added entry for size.
func (p *Pool[T]) Take(size Size) (T, bool) {
	bucket := p.buckets[size]
	if len(bucket) == 0 {
		var zero T
		return zero, false
	}
	last := len(bucket) - 1
	v := bucket[last]
	var zero T
	bucket[last] = zero
	bucket = bucket[:last]
	if len(bucket) == 0 {
		delete(p.buckets, size)
	} else {
		p.buckets[size] = bucket
	}
	p.count--
	return v, true
}

// Put adds v under size and returns entries that no longer fit, oldest
// first. With pooling disabled the result is v itself.
func (p *Pool[T]) Put(size Size, v T) []T {
	if p.bound == 0 {
		return []T{v}
	}
	bucket := append(p.buckets[size], v)
	p.count++

	var evicted []T
	if over := len(bucket) - p.bound; over > 0 {
		evicted = make([]T, over)
		copy(evicted, bucket[:over])
		bucket = append(bucket[:0:0], bucket[over:]...)
		p.count -= over
	}
	p.buckets[size] = bucket
	return evicted
}

// Len returns the total number of pooled entries.
func (p *Pool[T]) Len() int {
	return p.count
}

// LenSize returns the number of entries pooled under size.
func (p *Pool[T]) LenSize(size Size) int {
	return len(p.buckets[size])
}

// Drain removes and returns every entry.
func (p *Pool[T]) Drain() []T {
	out := make([]T, 0, p.count)
	for size, bucket := range p.buckets {
		out = append(out, bucket...)
		delete(p.buckets, size)
	}
	p.count = 0
	return out
}

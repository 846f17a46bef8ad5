// Package pool provides a typed object pool with an explicit free list.
//
// Unlike sync.Pool, a Pool never discards idle objects behind the caller's
// back, and it keeps counters that can be exported as metrics. Objects that
// are checked out carry no synchronization of their own; only the free list
// is guarded.
package pool

import (
	"sync"
	"sync/atomic"
)

// DefaultMaxIdle is the idle cap used when WithMaxIdle is not given.
const DefaultMaxIdle = 512

// Pool is a mutex-guarded free list of T.
type Pool[T any] struct {
	mu      sync.Mutex
	free    []T
	newFn   func() T
	reset   func(T)
	maxIdle int

	gets  atomic.Uint64
	puts  atomic.Uint64
	news  atomic.Uint64
	drops atomic.Uint64
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithMaxIdle caps the number of idle objects kept on the free list.
// Objects returned beyond the cap are dropped for the garbage collector.
// A value <= 0 means unbounded.
func WithMaxIdle[T any](n int) Option[T] {
	return func(p *Pool[T]) {
		p.maxIdle = n
	}
}

// WithReset sets a hook run on every object passed to Put, before it is
// made available again.
func WithReset[T any](fn func(T)) Option[T] {
	return func(p *Pool[T]) {
		p.reset = fn
	}
}

// New creates a pool that allocates with newFn when the free list is empty.
func New[T any](newFn func() T, opts ...Option[T]) *Pool[T] {
	p := &Pool[T]{
		newFn:   newFn,
		maxIdle: DefaultMaxIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns an idle object, or a new one if none is available.
func (p *Pool[T]) Get() T {
	p.gets.Add(1)

	p.mu.Lock()
	if n := len(p.free); n > 0 {
		v := p.free[n-1]
		var zero T
		p.free[n-1] = zero
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return v
	}
	p.mu.Unlock()

	p.news.Add(1)
	return p.newFn()
}

// Put returns v to the pool. The caller must not use v afterwards.
func (p *Pool[T]) Put(v T) {
	p.puts.Add(1)
	if p.reset != nil {
		p.reset(v)
	}

	p.mu.Lock()
	if p.maxIdle > 0 && len(p.free) >= p.maxIdle {
		p.mu.Unlock()
		p.drops.Add(1)
		return
	}
	p.free = append(p.free, v)
	p.mu.Unlock()
}

// SetMaxIdle changes the idle cap. Objects already on the free list are
// kept until they are handed out.
func (p *Pool[T]) SetMaxIdle(n int) {
	p.mu.Lock()
	p.maxIdle = n
	p.mu.Unlock()
}

// Idle returns the number of objects on the free list.
func (p *Pool[T]) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Gets  uint64 // calls to Get
	Puts  uint64 // calls to Put
	News  uint64 // objects allocated by Get
	Drops uint64 // objects discarded by Put because the free list was full
	Idle  int    // objects on the free list
}

// InUse reports how many objects are checked out, assuming every object
// handed out by Get is eventually returned with Put exactly once.
func (s Stats) InUse() int64 {
	return int64(s.Gets) - int64(s.Puts)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Gets:  p.gets.Load(),
		Puts:  p.puts.Load(),
		News:  p.news.Load(),
		Drops: p.drops.Load(),
		Idle:  p.Idle(),
	}
}

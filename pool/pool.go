// Package pool bounds the number of concurrently running subprocesses.
//
// A Slot is a unit of concurrency capacity, not an OS process: slots
// are created once at pool construction and recycled for the life of
// the bridge, while processes are freshly spawned per request. Requests
// beyond capacity queue in strict arrival order, so no waiter is
// starved as long as slots keep being released. A waiter whose own
// deadline passes before a slot frees up is rejected rather than run
// late.
//
// The pool's mutex protects only the slot list and waiter queue; it is
// never held across a subprocess wait.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSaturated is returned when a slot could not be acquired within the
// caller's wait budget.
var ErrSaturated = errors.New("pool: saturated")

// Slot represents one unit of subprocess concurrency. A slot is owned
// exclusively by its holder between Acquire and Release.
type Slot struct {
	id         int
	executions uint64
}

// ID returns the slot's stable identifier (0..capacity-1).
func (s *Slot) ID() int {
	return s.id
}

// Executions returns how many times this slot has been acquired.
func (s *Slot) Executions() uint64 {
	return s.executions
}

// waiter is one queued acquisition. The channel is buffered so a
// releaser can hand over a slot without blocking, even if the waiter
// has already timed out.
type waiter struct {
	ch chan *Slot
}

// Pool is a fixed-capacity slot pool with FIFO queuing.
type Pool struct {
	mu      sync.Mutex
	free    []*Slot
	waiters []*waiter
	cap     int
}

// New creates a pool with the given capacity. All slots are created up
// front and live for the pool's lifetime.
func New(capacity int) (*Pool, error) {
	if capacity <= 0 {
		return nil, errors.New("pool: capacity must be positive")
	}
	p := &Pool{cap: capacity}
	for i := 0; i < capacity; i++ {
		p.free = append(p.free, &Slot{id: i})
	}
	return p, nil
}

// Acquire obtains a slot, blocking until one frees up, the wait budget
// elapses, or ctx is canceled. Waiters are served in arrival order.
// On timeout it returns ErrSaturated; on cancellation, the context's
// error.
func (p *Pool) Acquire(ctx context.Context, wait time.Duration) (*Slot, error) {
	p.mu.Lock()
	if s := p.takeFree(); s != nil {
		p.mu.Unlock()
		return s, nil
	}
	w := &waiter{ch: make(chan *Slot, 1)}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case s := <-w.ch:
		return s, nil
	case <-timer.C:
		if s, delivered := p.abandon(w); delivered {
			// A slot was handed over in the same instant; late is late,
			// so put it back for the next waiter.
			p.Release(s)
		}
		return nil, ErrSaturated
	case <-ctx.Done():
		if s, delivered := p.abandon(w); delivered {
			p.Release(s)
		}
		return nil, ctx.Err()
	}
}

// TryAcquire obtains a slot without waiting. It returns false when the
// pool is at capacity.
func (p *Pool) TryAcquire() (*Slot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s := p.takeFree(); s != nil {
		return s, true
	}
	return nil, false
}

// Release returns a slot to the pool, handing it directly to the
// longest-waiting acquirer if any. Each acquired slot must be released
// exactly once.
func (p *Pool) Release(s *Slot) {
	p.mu.Lock()
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		s.executions++
		w.ch <- s // buffered; never blocks
		p.mu.Unlock()
		return
	}
	p.free = append(p.free, s)
	p.mu.Unlock()
}

// takeFree pops a free slot. Caller must hold p.mu.
func (p *Pool) takeFree() *Slot {
	if len(p.free) == 0 {
		return nil
	}
	s := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	s.executions++
	return s
}

// abandon removes a waiter from the queue after its wait expired.
// If the waiter is no longer queued, a releaser has already handed it
// a slot; that slot is returned with delivered=true. The hand-over
// send happens under p.mu, so once abandon fails to find the waiter,
// the slot is guaranteed to be in the channel.
func (p *Pool) abandon(w *waiter) (*Slot, bool) {
	p.mu.Lock()
	for i, queued := range p.waiters {
		if queued == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return nil, false
		}
	}
	p.mu.Unlock()
	return <-w.ch, true
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Capacity int `json:"capacity"`
	InFlight int `json:"in_flight"`
	Waiting  int `json:"waiting"`
}

// Stats returns current pool occupancy for health reporting.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Capacity: p.cap,
		InFlight: p.cap - len(p.free),
		Waiting:  len(p.waiters),
	}
}

package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/c360/semflow/errors"
)

// OverflowPolicy defines how the ring behaves when it reaches capacity
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for the new one
	DropOldest OverflowPolicy = iota
	// DropNewest discards the item being written
	DropNewest
)

// String returns a human-readable representation of the overflow policy
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	default:
		return "unknown"
	}
}

// DropCallback receives every item discarded by the overflow policy
type DropCallback[T any] func(item T)

// Option configures a Ring
type Option[T any] func(*Ring[T])

// WithOverflowPolicy sets the overflow policy (default DropOldest)
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(r *Ring[T]) { r.policy = policy }
}

// WithDropCallback sets a callback invoked, outside the lock, for each
// dropped item
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(r *Ring[T]) { r.onDrop = callback }
}

// Stats is a snapshot of ring counters
type Stats struct {
	Writes uint64
	Reads  uint64
	Drops  uint64
	Size   int
}

// Ring is a bounded FIFO safe for one or more writers and readers. Writers
// never block; Ready signals readers that items are available.
type Ring[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int // next write position
	tail   int // next read position
	size   int
	closed bool
	ready  chan struct{}

	policy OverflowPolicy
	onDrop DropCallback[T]

	writes atomic.Uint64
	reads  atomic.Uint64
	drops  atomic.Uint64
}

// New creates a ring holding at most capacity items
func New[T any](capacity int, opts ...Option[T]) (*Ring[T], error) {
	if capacity <= 0 {
		return nil, errors.WrapInvalid(errors.Detail(errors.ErrInvalidConfig, "capacity %d", capacity),
			"Ring", "New", "capacity check")
	}
	r := &Ring[T]{
		items: make([]T, capacity),
		ready: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Write appends item, applying the overflow policy when full. Writing to a
// closed ring fails with ErrShuttingDown.
func (r *Ring[T]) Write(item T) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.WrapInvalid(errors.ErrShuttingDown, "Ring", "Write", "ring closed")
	}

	var dropped T
	hasDropped := false
	if r.size == len(r.items) {
		r.drops.Add(1)
		if r.policy == DropNewest {
			r.mu.Unlock()
			if r.onDrop != nil {
				r.onDrop(item)
			}
			return nil
		}
		dropped, hasDropped = r.pop()
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	r.size++
	r.writes.Add(1)
	r.signal()
	r.mu.Unlock()

	if hasDropped && r.onDrop != nil {
		r.onDrop(dropped)
	}
	return nil
}

// pop removes the oldest item; the caller holds mu
func (r *Ring[T]) pop() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	item := r.items[r.tail]
	r.items[r.tail] = zero
	r.tail = (r.tail + 1) % len(r.items)
	r.size--
	return item, true
}

// signal wakes a reader; the caller holds mu
func (r *Ring[T]) signal() {
	if r.closed {
		return
	}
	select {
	case r.ready <- struct{}{}:
	default:
	}
}

// Read removes and returns the oldest item
func (r *Ring[T]) Read() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.pop()
	if ok {
		r.reads.Add(1)
	}
	return item, ok
}

// ReadBatch removes and returns up to max items, oldest first
func (r *Ring[T]) ReadBatch(max int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(max, r.size)
	if n <= 0 {
		return nil
	}
	out := make([]T, 0, n)
	for range n {
		item, _ := r.pop()
		out = append(out, item)
	}
	r.reads.Add(uint64(n))
	if r.size > 0 {
		r.signal()
	}
	return out
}

// Ready returns a channel that receives after writes. A reader should drain
// with ReadBatch after every receive.
func (r *Ring[T]) Ready() <-chan struct{} { return r.ready }

// Len returns the number of buffered items
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the capacity
func (r *Ring[T]) Cap() int { return len(r.items) }

// Stats returns the current counters
func (r *Ring[T]) Stats() Stats {
	return Stats{
		Writes: r.writes.Load(),
		Reads:  r.reads.Load(),
		Drops:  r.drops.Load(),
		Size:   r.Len(),
	}
}

// Close rejects further writes. Buffered items stay readable.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.ready)
	}
}

// Closed reports whether Close was called
func (r *Ring[T]) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

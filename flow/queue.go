package flow

import (
	"context"
	"sync"
)

// packetQueue is the unbounded FIFO behind a streamed connection. Writers
// never block; readers block until a packet arrives, their context ends or
// the queue is closed. Waiters are woken by closing and replacing notify.
type packetQueue struct {
	mu     sync.Mutex
	items  []any
	head   int
	closed bool
	notify chan struct{}
}

func newPacketQueue() *packetQueue {
	return &packetQueue{notify: make(chan struct{})}
}

// signal wakes every waiter; callers hold mu
func (q *packetQueue) signal() {
	close(q.notify)
	q.notify = make(chan struct{})
}

// push appends a packet; it reports false once the queue is closed
func (q *packetQueue) push(packet any) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, packet)
	q.signal()
	return true
}

// pushFront returns a packet that was read but never delivered
func (q *packetQueue) pushFront(packet any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if q.head > 0 {
		q.head--
		q.items[q.head] = packet
	} else {
		q.items = append([]any{packet}, q.items...)
	}
	q.signal()
}

// popLocked removes the oldest packet; callers hold mu and know len > 0
func (q *packetQueue) popLocked() any {
	packet := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.items) {
		q.items = append([]any(nil), q.items[q.head:]...)
		q.head = 0
	}
	return packet
}

// tryPop returns the oldest packet without blocking
func (q *packetQueue) tryPop() (any, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.items) {
		return nil, false
	}
	return q.popLocked(), true
}

// pop blocks for the next packet. ok is false when ctx ended or the queue
// was closed first; no packet is consumed in that case.
func (q *packetQueue) pop(ctx context.Context) (packet any, ok bool) {
	for {
		q.mu.Lock()
		if q.head < len(q.items) {
			packet = q.popLocked()
			q.mu.Unlock()
			return packet, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		wait := q.notify
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// size returns the number of queued packets
func (q *packetQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// clear drops every queued packet
func (q *packetQueue) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items) - q.head
	q.items = nil
	q.head = 0
	return n
}

// close drops queued packets and releases every blocked reader
func (q *packetQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	q.head = 0
	q.signal()
}

// Package buffer provides a bounded, generic FIFO ring used as the outbox
// between a producer that must never block and a slower consumer.
//
// Writers never wait: when the ring is full the overflow policy either
// drops the oldest buffered item (DropOldest, the default) or the new one
// (DropNewest). Dropped items are reported through an optional callback so
// the owner can count them.
//
//	ring, err := buffer.New[[]byte](64,
//		buffer.WithDropCallback[[]byte](func([]byte) { dropped.Inc() }),
//	)
//
//	// producer
//	_ = ring.Write(frame)
//
//	// consumer
//	for range ring.Ready() {
//		for _, frame := range ring.ReadBatch(16) {
//			send(frame)
//		}
//	}
//
// Ready is closed by Close, which ends the consumer loop above; items still
// buffered at that point remain readable.
package buffer

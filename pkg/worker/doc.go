// Package worker provides a generic, context-aware worker pool.
//
// Work is submitted either without blocking (Submit, which reports
// ErrQueueFull) or with backpressure (SubmitWait, which blocks until there is
// room, the context ends, or the pool stops). Statistics are always tracked;
// Prometheus metrics are registered when WithMetricsRegistry is given.
//
// A pool with one worker is a serial executor: items run one at a time in
// submission order. flow.Sheet uses exactly that to guarantee that no two
// handler callbacks of a sheet ever run concurrently.
//
//	pool := worker.NewPool[func()](1, 256, func(_ context.Context, fn func()) error {
//	    fn()
//	    return nil
//	})
package worker

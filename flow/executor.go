package flow

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync/atomic"
	"time"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/pkg/worker"
)

const (
	taskPending int32 = iota
	taskRunning
	taskCancelled
)

// task is one unit of executor work. Exactly one of the worker and the
// waiter wins the transition out of pending.
type task struct {
	fn    func() error
	err   error
	state atomic.Int32
	done  chan struct{}
}

func newTask(fn func() error) *task {
	return &task{fn: fn, done: make(chan struct{})}
}

func (t *task) cancel() bool {
	return t.state.CompareAndSwap(taskPending, taskCancelled)
}

// Running reports whether the executor is started
func (s *Sheet) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

// Start launches the executor and every streamed input port. Packets are
// delivered until Stop is called or ctx ends.
func (s *Sheet) Start(ctx context.Context) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Sheet", "Start", "state check")
	}

	var opts []worker.Option[*task]
	if s.metricsRegistry != nil {
		opts = append(opts, worker.WithMetricsRegistry[*task](s.metricsRegistry, "semflow_executor"))
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.exec = worker.NewPool(1, s.queueSize, s.runTask, opts...)
	if err := s.exec.Start(s.runCtx); err != nil {
		_ = s.exec.Stop(0)
		s.runCancel()
		s.runMu.Unlock()
		return errors.WrapFatal(err, "Sheet", "Start", "executor start")
	}
	s.running = true
	s.runMu.Unlock()

	s.logger.Info("Sheet started", "processes", len(s.processes))
	return s.Do(ctx, func() error {
		for _, p := range s.order {
			for _, in := range p.inputs {
				if in.discipline != Streamed {
					continue
				}
				if err := in.Start(); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Stop halts packet delivery and waits up to timeout for the callback in
// progress. Packets not yet handed to a handler stay queued, so a later
// Start resumes where this one ended.
func (s *Sheet) Stop(timeout time.Duration) error {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return nil
	}
	s.running = false
	s.runCancel()
	exec := s.exec
	s.runMu.Unlock()

	err := exec.Stop(timeout)

	done := make(chan struct{})
	go func() {
		s.consumers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		if err == nil {
			err = worker.ErrStopTimeout
		}
	}

	for _, p := range s.order {
		for _, in := range p.inputs {
			in.Stop()
		}
	}
	s.Flush()

	if err != nil {
		return errors.WrapTransient(err, "Sheet", "Stop", "executor shutdown")
	}
	s.logger.Info("Sheet stopped", "stats", exec.Stats())
	return nil
}

// Do runs fn on the executor and waits for it. On a stopped sheet fn runs on
// the calling goroutine. Do must not be called from a handler callback.
func (s *Sheet) Do(ctx context.Context, fn func() error) error {
	s.runMu.Lock()
	running, exec, runCtx := s.running, s.exec, s.runCtx
	s.runMu.Unlock()

	if !running {
		s.executorMu.Lock()
		defer s.executorMu.Unlock()
		return s.safeRun(fn)
	}

	t := newTask(fn)
	if err := exec.SubmitWait(ctx, t); err != nil {
		return s.submitError(err, "Do")
	}
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		if t.cancel() {
			return ctx.Err()
		}
	case <-runCtx.Done():
		if t.cancel() {
			return errors.WrapTransient(errors.ErrShuttingDown, "Sheet", "Do", "wait for executor")
		}
	}
	<-t.done
	return t.err
}

// Post queues fn on the executor without waiting. Failures of fn are logged.
func (s *Sheet) Post(fn func() error) error {
	s.runMu.Lock()
	running, exec := s.running, s.exec
	s.runMu.Unlock()
	if !running {
		return errors.WrapInvalid(errors.ErrNotStarted, "Sheet", "Post", "state check")
	}
	t := newTask(func() error {
		if err := fn(); err != nil {
			s.logger.Error("Posted task failed", "error", err)
		}
		return nil
	})
	if err := exec.Submit(t); err != nil {
		return s.submitError(err, "Post")
	}
	return nil
}

func (s *Sheet) submitError(err error, op string) error {
	switch {
	case errors.Is(err, worker.ErrPoolStopped), errors.Is(err, worker.ErrPoolNotStarted):
		return errors.WrapTransient(errors.ErrShuttingDown, "Sheet", op, "submit")
	default:
		return errors.WrapTransient(err, "Sheet", op, "submit")
	}
}

// runTask is the pool processor. After every task the pending event batch
// is flushed.
func (s *Sheet) runTask(_ context.Context, t *task) error {
	if !t.state.CompareAndSwap(taskPending, taskRunning) {
		return nil
	}
	defer close(t.done)
	t.err = s.safeRun(t.fn)
	s.Flush()
	return t.err
}

func (s *Sheet) safeRun(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Executor task panicked", "panic", r, "stack", string(debug.Stack()))
			err = errors.WrapFatal(errors.Detail(errors.ErrInvariantViolation, "panic: %v", r), "Sheet", "Do", "run task")
		}
	}()
	return fn()
}

// startConsumer launches the goroutine moving packets from c to the executor
func (s *Sheet) startConsumer(ctx context.Context, c *Connection) {
	s.consumers.Add(1)
	go s.consume(ctx, s.exec, c)
}

// consume reads one packet at a time and waits for its delivery, so packets
// of one connection are handled in FIFO order. A packet whose delivery is
// cancelled before it starts goes back to the head of the queue.
func (s *Sheet) consume(ctx context.Context, exec *worker.Pool[*task], c *Connection) {
	defer s.consumers.Done()
	for {
		packet, ok := c.queue.pop(ctx)
		if !ok {
			return
		}
		requeue := false
		t := newTask(func() error {
			// the port may have been stopped by an earlier task
			if !c.end.started {
				requeue = true
				return nil
			}
			s.deliver(c, packet)
			return nil
		})
		if err := exec.SubmitWait(ctx, t); err != nil {
			c.queue.pushFront(packet)
			return
		}
		select {
		case <-t.done:
		case <-ctx.Done():
			if t.cancel() {
				c.queue.pushFront(packet)
				return
			}
			<-t.done
		}
		if requeue {
			c.queue.pushFront(packet)
			return
		}
	}
}

// deliver hands one packet to the end process of c
func (s *Sheet) deliver(c *Connection, packet any) {
	end := c.end
	if c.deleted || end.deleted || end.process.deleted {
		return
	}
	v, err := s.types.Cast(packet, c.start.typ, end.typ.Name())
	if err != nil {
		s.reportDispatchError(&DispatchError{
			ProcessID: end.process.id,
			Process:   end.process.name,
			Handler:   end.process.handlerName,
			Port:      end.name,
			Err:       fmt.Errorf("cast from %s: %w", c.start.typ.Name(), err),
		})
		return
	}
	if err := end.process.HandlePacket(end.name, v); err != nil {
		s.reportDispatchError(err)
	}
}

// RunUntilIdle delivers queued packets on the calling goroutine while the
// executor is stopped. Each pass takes at most one packet from every streamed
// connection, in process, port and connection order, and events are flushed
// after each delivery. It stops when the queues are empty or after limit
// deliveries (limit <= 0 means no limit) and returns the number delivered.
func (s *Sheet) RunUntilIdle(limit int) (int, error) {
	if s.Running() {
		return 0, errors.WrapInvalid(errors.ErrAlreadyStarted, "Sheet", "RunUntilIdle", "state check")
	}
	s.executorMu.Lock()
	defer s.executorMu.Unlock()

	delivered := 0
	for {
		progressed := false
		for _, c := range s.streamedInputs() {
			if c.deleted {
				continue
			}
			packet, ok := c.queue.tryPop()
			if !ok {
				continue
			}
			s.deliver(c, packet)
			s.Flush()
			delivered++
			progressed = true
			if limit > 0 && delivered >= limit {
				return delivered, nil
			}
		}
		if !progressed {
			return delivered, nil
		}
	}
}

func (s *Sheet) streamedInputs() []*Connection {
	var out []*Connection
	for _, p := range s.order {
		for _, in := range p.inputs {
			if in.discipline == Streamed {
				out = append(out, in.connections...)
			}
		}
	}
	return slices.Clip(out)
}

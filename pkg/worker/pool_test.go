package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/metric"
)

func TestNewPool_Defaults(t *testing.T) {
	noop := func(context.Context, int) error { return nil }

	pool := NewPool(3, 10, noop)
	assert.Equal(t, 3, pool.workers)
	assert.Equal(t, 10, pool.queueSize)

	pool = NewPool(0, 0, noop)
	assert.Equal(t, 1, pool.workers)
	assert.Equal(t, 1024, pool.queueSize)
}

func TestNewPool_NilProcessor(t *testing.T) {
	assert.PanicsWithValue(t, ErrNilProcessor, func() {
		NewPool[int](1, 1, nil)
	})
}

func TestPool_Lifecycle(t *testing.T) {
	pool := NewPool(1, 4, func(context.Context, int) error { return nil })

	assert.ErrorIs(t, pool.Submit(1), ErrPoolNotStarted)

	require.NoError(t, pool.Start(context.Background()))
	assert.ErrorIs(t, pool.Start(context.Background()), ErrPoolAlreadyStarted)

	require.NoError(t, pool.Stop(time.Second))
	require.NoError(t, pool.Stop(time.Second))
	assert.ErrorIs(t, pool.Submit(1), ErrPoolStopped)
	assert.ErrorIs(t, pool.SubmitWait(context.Background(), 1), ErrPoolStopped)
}

func TestPool_SingleWorkerPreservesOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	var running int32

	pool := NewPool(1, 100, func(_ context.Context, n int) error {
		if atomic.AddInt32(&running, 1) != 1 {
			t.Errorf("concurrent execution detected at item %d", n)
		}
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
		atomic.AddInt32(&running, -1)
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(time.Second)

	for i := 0; i < 50; i++ {
		require.NoError(t, pool.SubmitWait(context.Background(), i))
	}

	require.Eventually(t, func() bool {
		return pool.Stats().Processed == 50
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, n := range seen {
		assert.Equal(t, i, n)
	}
}

func TestPool_SubmitQueueFull(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(context.Context, int) error {
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	defer func() {
		close(release)
		pool.Stop(time.Second)
	}()

	require.NoError(t, pool.Submit(1))
	require.Eventually(t, func() bool { return pool.Stats().QueueDepth == 0 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Submit(2))

	assert.ErrorIs(t, pool.Submit(3), ErrQueueFull)
	assert.Equal(t, int64(1), pool.Stats().Dropped)
}

func TestPool_SubmitWaitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(context.Context, int) error {
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	defer func() {
		close(release)
		pool.Stop(time.Second)
	}()

	require.NoError(t, pool.Submit(1))
	require.Eventually(t, func() bool { return pool.Stats().QueueDepth == 0 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Submit(2))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.SubmitWait(ctx, 3), context.DeadlineExceeded)
}

func TestPool_FailuresCounted(t *testing.T) {
	pool := NewPool(1, 10, func(_ context.Context, n int) error {
		if n%2 == 0 {
			return errors.New("even")
		}
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(time.Second)

	for i := 0; i < 4; i++ {
		require.NoError(t, pool.SubmitWait(context.Background(), i))
	}
	require.Eventually(t, func() bool { return pool.Stats().Processed == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(2), pool.Stats().Failed)
}

func TestPool_StopTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	pool := NewPool(1, 1, func(context.Context, int) error {
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(1))
	require.Eventually(t, func() bool { return pool.Stats().QueueDepth == 0 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, pool.Stop(20*time.Millisecond), ErrStopTimeout)
}

func TestPool_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	pool := NewPool(1, 10, func(context.Context, int) error { return nil },
		WithMetricsRegistry[int](registry, "executor"))
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(time.Second)

	require.NoError(t, pool.Submit(1))
	require.Eventually(t, func() bool { return pool.Stats().Processed == 1 }, time.Second, time.Millisecond)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["executor_processed_total"])
	assert.True(t, names["executor_queue_depth"])
}

func TestPool_StopReleasesMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	noop := func(context.Context, int) error { return nil }

	first := NewPool(1, 10, noop, WithMetricsRegistry[int](registry, "executor"))
	require.NoError(t, first.Start(context.Background()))
	require.NoError(t, first.Submit(1))
	require.Eventually(t, func() bool { return first.Stats().Processed == 1 }, time.Second, time.Millisecond)
	require.NoError(t, first.Stop(time.Second))
	assert.False(t, registry.Unregister("worker_pool", "executor_processed_total"))

	second := NewPool(1, 10, noop, WithMetricsRegistry[int](registry, "executor"))
	require.NoError(t, second.Start(context.Background()))
	defer second.Stop(time.Second)
	for i := range 2 {
		require.NoError(t, second.Submit(i))
	}
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(second.metrics.processed) == 2
	}, time.Second, time.Millisecond)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() == "executor_processed_total" {
			found = true
			assert.Equal(t, 2.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestPool_StopBeforeStart(t *testing.T) {
	pool := NewPool(1, 1, func(context.Context, int) error { return nil })
	require.NoError(t, pool.Stop(time.Second))
	assert.ErrorIs(t, pool.Start(context.Background()), ErrPoolStopped)
}

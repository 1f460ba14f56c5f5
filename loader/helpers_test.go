package loader

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noRetry() errors.RetryConfig {
	return errors.RetryConfig{MaxRetries: 0}
}

// countingResolver counts fetches and can hold them on a gate
type countingResolver struct {
	inner Resolver

	manifestCalls atomic.Int32
	moduleCalls   atomic.Int32

	mu       sync.Mutex
	gates    map[string]chan struct{}
	failures map[string]error
}

func newCountingResolver(inner Resolver) *countingResolver {
	return &countingResolver{
		inner:    inner,
		gates:    make(map[string]chan struct{}),
		failures: make(map[string]error),
	}
}

// hold blocks module fetches of src until release is called
func (r *countingResolver) hold(src string) (release func()) {
	gate := make(chan struct{})
	r.mu.Lock()
	r.gates[src] = gate
	r.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (r *countingResolver) fail(src string, err error) {
	r.mu.Lock()
	r.failures[src] = err
	r.mu.Unlock()
}

func (r *countingResolver) ResolveManifest(ctx context.Context, dir string) (*Manifest, error) {
	r.manifestCalls.Add(1)
	return r.inner.ResolveManifest(ctx, dir)
}

func (r *countingResolver) LoadModule(ctx context.Context, kind Kind, src string) (Module, error) {
	r.moduleCalls.Add(1)
	r.mu.Lock()
	gate := r.gates[src]
	err := r.failures[src]
	r.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Module{}, ctx.Err()
		}
	}
	if err != nil {
		return Module{}, err
	}
	return r.inner.LoadModule(ctx, kind, src)
}

func geoTypes() *types.Module {
	return &types.Module{
		Name:  "geo",
		Types: []string{"point"},
		Register: func(r *types.Registry, override bool) error {
			_, err := r.Register("point", types.Definition{Parents: []string{types.Object}}, override)
			return err
		},
	}
}

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := NewCatalog()
	require.NoError(t, c.RegisterHandler(&flow.Handler{Name: "math.op2"}))
	require.NoError(t, c.RegisterHandler(&flow.Handler{Name: "math.trig.sin"}))
	require.NoError(t, c.RegisterHandler(&flow.Handler{Name: "debug"}))
	require.NoError(t, c.RegisterHandler(&flow.Handler{Name: "geo.track", Requires: []string{"geo"}}))
	require.NoError(t, c.RegisterTypes(geoTypes()))
	return c
}

package event

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/types"
)

func newSheet() *flow.Sheet {
	return flow.NewSheet(types.NewBuiltinRegistry(), flow.NewHandlerSet(Handlers()...),
		flow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func create(t *testing.T, s *flow.Sheet, name, handler string, params map[string]any) *flow.Process {
	t.Helper()
	p, err := s.CreateProcess(flow.ProcessSpec{Name: name, Handler: handler, Parameters: params})
	require.NoError(t, err)
	return p
}

func connect(t *testing.T, s *flow.Sheet, from *flow.Process, out string, to *flow.Process, in string) {
	t.Helper()
	src, ok := from.OutputPort(out)
	require.True(t, ok, out)
	dst, ok := to.InputPort(in)
	require.True(t, ok, in)
	_, err := s.Connect(src, dst)
	require.NoError(t, err)
}

type payload struct{ N int }

func TestFanout_TwoOutputs(t *testing.T) {
	s := newSheet()
	src := create(t, s, "src", EmitName, nil)
	fan := create(t, s, "fan", FanoutName, map[string]any{"nb_out": 2})
	c1 := create(t, s, "c1", CollectName, nil)
	c2 := create(t, s, "c2", CollectName, nil)

	require.Len(t, fan.Outputs(), 2)
	connect(t, s, src, "out", fan, "in")
	connect(t, s, fan, "out0", c1, "in")
	connect(t, s, fan, "out1", c2, "in")

	require.NoError(t, Emit(context.Background(), src, payload{N: 7}))
	n, err := s.RunUntilIdle(0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, []any{payload{N: 7}}, Collected(c1))
	assert.Equal(t, []any{payload{N: 7}}, Collected(c2))
}

func TestFanout_SendsInOutputOrder(t *testing.T) {
	s := newSheet()
	src := create(t, s, "src", EmitName, nil)
	fan := create(t, s, "fan", FanoutName, map[string]any{"nb_out": 2})
	c1 := create(t, s, "c1", CollectName, nil)
	c0 := create(t, s, "c0", CollectName, nil)

	connect(t, s, src, "out", fan, "in")
	connect(t, s, fan, "out1", c1, "in")
	connect(t, s, fan, "out0", c0, "in")

	names := make([]string, 0, 2)
	for _, out := range fan.Outputs() {
		names = append(names, out.Name())
	}
	assert.Equal(t, []string{"out0", "out1"}, names)

	require.NoError(t, Emit(context.Background(), src, "x"))
	_, err := s.RunUntilIdle(0)
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, Collected(c0))
	assert.Equal(t, []any{"x"}, Collected(c1))
}

func TestFanout_Resize(t *testing.T) {
	s := newSheet()
	fan := create(t, s, "fan", FanoutName, map[string]any{"nb_out": 3})
	require.Len(t, fan.Outputs(), 3)

	require.NoError(t, fan.UpdateParameters(map[string]any{"nb_out": 1}))
	outs := fan.Outputs()
	require.Len(t, outs, 1)
	assert.Equal(t, "out0", outs[0].Name())

	require.NoError(t, fan.UpdateParameters(map[string]any{"nb_out": 2}))
	assert.Len(t, fan.Outputs(), 2)

	err := fan.UpdateParameters(map[string]any{"nb_out": 0})
	assert.ErrorIs(t, err, errors.ErrInvalidParameters)
	assert.Len(t, fan.Outputs(), 2)
}

func TestCounter(t *testing.T) {
	s := newSheet()
	src := create(t, s, "src", EmitName, nil)
	cnt := create(t, s, "cnt", CounterName, nil)
	sink := create(t, s, "sink", CollectName, nil)
	connect(t, s, src, "out", cnt, "in")
	connect(t, s, cnt, "out", sink, "in")

	for _, packet := range []any{"a", 1, nil} {
		require.NoError(t, Emit(context.Background(), src, packet))
	}
	_, err := s.RunUntilIdle(0)
	require.NoError(t, err)

	assert.Equal(t, int64(3), Count(cnt))
	count, _ := cnt.OutputPort("count")
	assert.Equal(t, int64(3), count.Value())
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, Collected(sink))
	assert.Equal(t, map[string]any{"count": int64(3)}, cnt.ExportState())
}

func TestCounter_ImportState(t *testing.T) {
	s := newSheet()
	p, err := s.CreateProcess(flow.ProcessSpec{Handler: CounterName, State: map[string]any{"count": 41.0}})
	require.NoError(t, err)
	assert.Equal(t, int64(41), Count(p))
	count, _ := p.OutputPort("count")
	assert.Equal(t, int64(41), count.Value())
}

func TestCollect_Limit(t *testing.T) {
	s := newSheet()
	src := create(t, s, "src", EmitName, nil)
	sink := create(t, s, "sink", CollectName, map[string]any{"limit": 2})
	connect(t, s, src, "out", sink, "in")

	for i := 1; i <= 4; i++ {
		require.NoError(t, Emit(context.Background(), src, i))
	}
	_, err := s.RunUntilIdle(0)
	require.NoError(t, err)
	assert.Equal(t, []any{3, 4}, Collected(sink))
	assert.Equal(t, map[string]any{"packets": []any{3, 4}}, sink.ExportState())
}

func TestCollect_ImportState(t *testing.T) {
	s := newSheet()
	p, err := s.CreateProcess(flow.ProcessSpec{Handler: CollectName, State: map[string]any{"packets": []any{"x", "y"}}})
	require.NoError(t, err)
	assert.Equal(t, []any{"x", "y"}, Collected(p))
}

func TestEmit_WrongHandler(t *testing.T) {
	s := newSheet()
	sink := create(t, s, "sink", CollectName, nil)
	err := Emit(context.Background(), sink, 1)
	assert.ErrorIs(t, err, errors.ErrModuleKind)
}

func TestEmit_Running(t *testing.T) {
	s := newSheet()
	src := create(t, s, "src", EmitName, nil)
	cnt := create(t, s, "cnt", CounterName, nil)
	connect(t, s, src, "out", cnt, "in")

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer func() { _ = s.Stop(time.Second) }()

	for i := 0; i < 5; i++ {
		require.NoError(t, Emit(ctx, src, i))
	}
	require.Eventually(t, func() bool {
		var n int64
		_ = s.Do(ctx, func() error { n = Count(cnt); return nil })
		return n == 5
	}, time.Second, 5*time.Millisecond)
}

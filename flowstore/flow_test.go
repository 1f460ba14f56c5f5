package flowstore

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/flow"
)

func sampleGraph() flow.Document {
	return flow.Document{
		Processes: []flow.ProcessDoc{
			{ID: "1", Name: "a", Handler: "data.value", Parameters: map[string]any{"value": 2.0}},
			{ID: "2", Name: "sum", Handler: "math.op2"},
		},
		Connections: []flow.ConnectionDoc{{From: "a[1]#out", To: "sum[2]#in1"}},
	}
}

func TestNew(t *testing.T) {
	f := New("pipeline", sampleGraph())
	_, err := uuid.Parse(f.ID)
	require.NoError(t, err)
	assert.Equal(t, StateStored, f.RuntimeState)
	assert.Zero(t, f.Version)
	assert.NoError(t, f.Validate())
}

func TestFlowValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *Flow)
		valid   bool
		wantErr error
	}{
		{"valid", func(*Flow) {}, true, nil},
		{"empty graph", func(f *Flow) { f.Graph = flow.Document{} }, true, nil},
		{"empty id", func(f *Flow) { f.ID = "" }, false, nil},
		{"empty name", func(f *Flow) { f.Name = "" }, false, nil},
		{"bad state", func(f *Flow) { f.RuntimeState = "paused" }, false, nil},
		{"malformed reference", func(f *Flow) {
			f.Graph.Connections = []flow.ConnectionDoc{{From: "a#out", To: "sum[2]#in1"}}
		}, false, errors.ErrMalformedReference},
		{"unknown process reference", func(f *Flow) {
			f.Graph.Connections = []flow.ConnectionDoc{{From: "a[9]#out", To: "sum[2]#in1"}}
		}, false, errors.ErrUnknownProcess},
		{"bad process id", func(f *Flow) { f.Graph.Processes[0].ID = "xyz" }, false, errors.ErrInvalidDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New("pipeline", sampleGraph())
			tt.mutate(f)
			err := f.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestMarkState(t *testing.T) {
	f := New("pipeline", flow.Document{})
	start := time.Now()
	f.MarkState(StateRunning, start)
	assert.Equal(t, StateRunning, f.RuntimeState)
	require.NotNil(t, f.StartedAt)
	assert.Equal(t, start, *f.StartedAt)
	assert.Nil(t, f.StoppedAt)

	stop := start.Add(time.Minute)
	f.MarkState(StateStopped, stop)
	require.NotNil(t, f.StoppedAt)
	assert.Equal(t, stop, *f.StoppedAt)
	assert.Equal(t, start, *f.StartedAt)
}

func TestRuntimeStateValid(t *testing.T) {
	for _, s := range []RuntimeState{StateStored, StateRunning, StateStopped, StateError} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, RuntimeState("").Valid())
}

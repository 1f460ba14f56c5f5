package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct{ running atomic.Bool }

func (f *fakeRunner) Running() bool { return f.running.Load() }

type fakeConn struct{ up atomic.Bool }

func (f *fakeConn) IsHealthy() bool { return f.up.Load() }

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want State
	}{
		{"empty", nil, StateHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StateHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StateDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", ""), NewHealthy("c", "")}, StateUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("system", tt.subs)
			assert.Equal(t, tt.want, got.State)
			assert.Equal(t, tt.want == StateHealthy, got.Healthy)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestAggregate_DoesNotShareInput(t *testing.T) {
	subs := []Status{NewHealthy("a", "ok")}
	got := Aggregate("system", subs)
	got.SubStatuses[0].Message = "changed"
	assert.Equal(t, "ok", subs[0].Message)
}

func TestWithSubStatus_SliceIsolation(t *testing.T) {
	base := NewHealthy("root", "").WithSubStatus(NewHealthy("a", ""))
	base.SubStatuses = append(make([]Status, 0, 4), base.SubStatuses...)

	left := base.WithSubStatus(NewHealthy("left", ""))
	right := base.WithSubStatus(NewHealthy("right", ""))

	assert.Equal(t, "left", left.SubStatuses[1].Component)
	assert.Equal(t, "right", right.SubStatuses[1].Component)
	assert.Len(t, base.SubStatuses, 1)
}

func TestFromError(t *testing.T) {
	ok := FromError("nats", nil, "connected")
	assert.True(t, ok.IsHealthy())
	assert.Equal(t, "connected", ok.Message)

	bad := FromError("nats", errors.New("dial nats://10.0.0.4:4222 failed"), "connected")
	assert.True(t, bad.IsUnhealthy())
	assert.Equal(t, "dial [URL] failed", bad.Message)
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"failed to open /etc/semflow/config.yaml", "failed to open [PATH]"},
		{"cannot read C:\\flows\\graph.json", "cannot read [PATH]"},
		{"cannot connect to nats://localhost:4222", "cannot connect to [URL]"},
		{"websocket ws://host/events closed", "websocket [URL] closed"},
		{"timeout connecting to 192.168.1.100", "timeout connecting to [IP]"},
		{"failed to bind to :8080", "failed to bind to [PORT]"},
		{"auth failed with password:hunter2", "auth failed with [REDACTED]"},
		{"connect https://192.168.1.1:8080/api with token=abc123", "connect [URL] with [REDACTED]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeErrorMessage(tt.input), tt.input)
	}
}

func TestMonitor_UpdateAndGet(t *testing.T) {
	m := NewMonitor()
	m.Update("library", Status{Component: "wrong", State: StateHealthy, Healthy: true})

	got, ok := m.Get("library")
	require.True(t, ok)
	assert.Equal(t, "library", got.Component)
	assert.False(t, got.Timestamp.IsZero())

	_, ok = m.Get("missing")
	assert.False(t, ok)

	m.Remove("library")
	assert.Empty(t, m.Names())
}

func TestMonitor_ProbeReplacesStatus(t *testing.T) {
	m := NewMonitor()
	m.UpdateUnhealthy("sheet", "never started")

	r := &fakeRunner{}
	m.Register("sheet", RunnerProbe(r))

	got, ok := m.Get("sheet")
	require.True(t, ok)
	assert.True(t, got.IsDegraded())
	assert.Equal(t, "sheet", got.Component)

	r.running.Store(true)
	got, _ = m.Get("sheet")
	assert.True(t, got.IsHealthy())
	require.NotNil(t, got.Metrics)

	m.UpdateDegraded("sheet", "pushed")
	got, _ = m.Get("sheet")
	assert.Equal(t, "pushed", got.Message)
	assert.Equal(t, []string{"sheet"}, m.Names())
}

func TestMonitor_SnapshotSorted(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("zeta", "")
	m.Register("alpha", ConnectionProbe(&fakeConn{}))
	m.UpdateHealthy("mid", "")

	snap := m.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "alpha", snap[0].Component)
	assert.Equal(t, "mid", snap[1].Component)
	assert.Equal(t, "zeta", snap[2].Component)
	assert.True(t, m.AggregateHealth("semflow").IsUnhealthy())
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := NewMonitor()
	r := &fakeRunner{}
	r.running.Store(true)
	m.Register("sheet", RunnerProbe(r))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.UpdateHealthy("nats", "connected")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.AggregateHealth("semflow")
			}
		}()
	}
	wg.Wait()
	assert.True(t, m.AggregateHealth("semflow").IsHealthy())
}

func TestHandler(t *testing.T) {
	m := NewMonitor()
	conn := &fakeConn{}
	conn.up.Store(true)
	m.Register("nats", ConnectionProbe(conn))

	srv := httptest.NewServer(Handler(m, "semflow"))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	var body Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, StateHealthy, body.State)
	require.Len(t, body.SubStatuses, 1)
	assert.Equal(t, "nats", body.SubStatuses[0].Component)

	conn.up.Store(false)
	resp, err = http.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Post(srv.URL, "text/plain", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

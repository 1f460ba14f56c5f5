package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/config"
	"github.com/c360/semflow/processor/op2"
)

const sumGraph = `{
  "processes": [
    {"id": "1", "name": "a", "handler": "data.value", "parameters": {"value": 2.0}},
    {"id": "2", "name": "b", "handler": "data.value", "parameters": {"value": 3.0}},
    {"id": "3", "name": "sum", "handler": "math.op2", "parameters": {"op": "plus"}},
    {"id": "4", "name": "fan", "handler": "event.fanout"}
  ],
  "connections": [
    {"from": "a[1]#out", "to": "sum[3]#in1"},
    {"from": "b[2]#out", "to": "sum[3]#in2"}
  ]
}`

func writeGraph(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sum.json")
	require.NoError(t, os.WriteFile(path, []byte(sumGraph), 0o600))
	return path
}

func testApp(t *testing.T, cli *CLIConfig) *app {
	t.Helper()
	cfg := config.Default()
	cfg.Runtime.ShutdownTimeout = 2 * time.Second
	a := newApp(cli, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, a.setup(context.Background()))
	return a
}

func TestParseFlags(t *testing.T) {
	cli, err := parseFlags([]string{"-graph", "g.json", "-flow", "sum", "-save", "-debug", "-log-format", "text"})
	require.NoError(t, err)

	assert.Equal(t, "g.json", cli.GraphPath)
	assert.Equal(t, "sum", cli.FlowName)
	assert.True(t, cli.SaveOnExit)
	assert.Equal(t, "debug", cli.LogLevel)
	assert.Equal(t, "text", cli.LogFormat)

	_, err = parseFlags([]string{"-no-such-flag"})
	assert.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	graph := writeGraph(t)
	tests := []struct {
		name    string
		cli     CLIConfig
		wantErr bool
	}{
		{"defaults", CLIConfig{LogLevel: "info", LogFormat: "json"}, false},
		{"graph", CLIConfig{LogLevel: "info", LogFormat: "json", GraphPath: graph}, false},
		{"missing graph", CLIConfig{LogLevel: "info", LogFormat: "json", GraphPath: "nope.json"}, true},
		{"missing config", CLIConfig{LogLevel: "info", LogFormat: "json", ConfigPath: "nope.yaml"}, true},
		{"bad level", CLIConfig{LogLevel: "loud", LogFormat: "json"}, true},
		{"bad format", CLIConfig{LogLevel: "info", LogFormat: "xml"}, true},
		{"save without flow", CLIConfig{LogLevel: "info", LogFormat: "json", SaveOnExit: true}, true},
		{"graph and flow", CLIConfig{LogLevel: "info", LogFormat: "json", GraphPath: graph, FlowName: "f"}, true},
		{"graph flow save", CLIConfig{LogLevel: "info", LogFormat: "json", GraphPath: graph, FlowName: "f", SaveOnExit: true}, false},
		{"two modes", CLIConfig{LogLevel: "info", LogFormat: "json", List: true, Validate: true}, true},
		{"version skips checks", CLIConfig{ShowVersion: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFlags(&tt.cli)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "text")

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "service=semflow")
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.LibrarySourceCatalog, cfg.Libraries.Source)
}

func TestApp_SetupRejectsFlowWithoutBucket(t *testing.T) {
	a := newApp(&CLIConfig{FlowName: "sum"}, config.Default(), nil)
	assert.Error(t, a.setup(context.Background()))
}

func TestApp_ImportAndValidate(t *testing.T) {
	a := testApp(t, &CLIConfig{GraphPath: writeGraph(t)})
	require.NoError(t, a.loadGraph(context.Background()))

	sum, ok := a.sheet.ProcessByName("sum")
	require.True(t, ok)
	assert.Equal(t, op2.HandlerName, sum.HandlerName())
	out, ok := sum.OutputPort("out")
	require.True(t, ok)
	assert.Equal(t, 5.0, out.Value())

	var buf bytes.Buffer
	require.NoError(t, a.validate(&buf))
	assert.Contains(t, buf.String(), "status: warnings")
	assert.Contains(t, buf.String(), "disconnected: fan[4]")
}

func TestApp_LoadGraphRejectsBadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"processes": [{"id": "zz", "handler": "data.value"}]}`), 0o600))

	a := testApp(t, &CLIConfig{GraphPath: path})
	assert.Error(t, a.loadGraph(context.Background()))
	assert.Empty(t, a.sheet.Processes())
}

func TestApp_List(t *testing.T) {
	a := testApp(t, &CLIConfig{})

	var buf bytes.Buffer
	require.NoError(t, a.list(context.Background(), &buf))
	assert.Contains(t, buf.String(), "processes:")
	assert.Contains(t, buf.String(), "math.op2")
	assert.Contains(t, buf.String(), "data.value")
	assert.Contains(t, buf.String(), "types:")
}

func TestApp_ServeStopsOnCancel(t *testing.T) {
	a := testApp(t, &CLIConfig{GraphPath: writeGraph(t)})
	require.NoError(t, a.loadGraph(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- a.serve(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	assert.False(t, a.sheet.Running())
}

func TestApp_EventsShareMetricsListener(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.Events.Addr = "127.0.0.1:0"
	a := newApp(&CLIConfig{}, cfg, nil)
	require.NoError(t, a.setup(context.Background()))

	assert.Len(t, a.servers, 1)
	require.NotNil(t, a.events)
}

func TestApp_HealthDetail(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Addr = "127.0.0.1:0"
	a := newApp(&CLIConfig{}, cfg, nil)
	require.NoError(t, a.setup(context.Background()))
	require.Len(t, a.servers, 1)

	rec := httptest.NewRecorder()
	a.servers[0].Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, healthDetailPath, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"component":"sheet"`)
	assert.Contains(t, rec.Body.String(), `"component":"library"`)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.getenv = func(key string) string { return env[key] }
	return l
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, LibrarySourceCatalog, cfg.Libraries.Source)
	assert.Equal(t, DefaultQueueSize, cfg.Runtime.QueueSize)
	assert.False(t, cfg.NeedsNATS())
}

func TestLoader_LoadJSON(t *testing.T) {
	path := writeFile(t, "semflow.json", `{
		"version": "1.2.0",
		"runtime": {"seed": 42, "queue_size": 16, "id_space": 255},
		"libraries": {"source": "nats"},
		"nats": {"urls": ["nats://a:4222", "nats://b:4222"], "timeout": "2s"},
		"events": {"addr": ":8090"},
		"flows": {"bucket": "flows"}
	}`)

	cfg, err := newTestLoader(nil).LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "1.2.0", cfg.Version)
	assert.Equal(t, uint64(42), cfg.Runtime.Seed)
	assert.Equal(t, 16, cfg.Runtime.QueueSize)
	assert.Equal(t, uint64(255), cfg.Runtime.IDSpace)
	assert.Equal(t, DefaultShutdownPeriod, cfg.Runtime.ShutdownTimeout, "untouched keys keep defaults")
	assert.Equal(t, DefaultLibraryBucket, cfg.Libraries.Bucket, "nats source defaults its bucket")
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 2*time.Second, cfg.NATS.Timeout)
	assert.Equal(t, ":8090", cfg.Events.Addr)
	assert.Equal(t, DefaultEventsPath, cfg.Events.Path)
	assert.True(t, cfg.NeedsNATS())
}

func TestLoader_LoadYAML(t *testing.T) {
	path := writeFile(t, "semflow.yaml", `
libraries:
  source: fs
  dir: ./libs
runtime:
  shutdown_timeout: 1d
metrics:
  addr: ":9090"
`)

	cfg, err := newTestLoader(nil).LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, LibrarySourceFS, cfg.Libraries.Source)
	assert.Equal(t, "./libs", cfg.Libraries.Dir)
	assert.Equal(t, 24*time.Hour, cfg.Runtime.ShutdownTimeout)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, DefaultMetricsPath, cfg.Metrics.Path)
}

func TestLoader_Layers(t *testing.T) {
	base := writeFile(t, "base.json", `{"runtime": {"queue_size": 8}, "metrics": {"addr": ":9000"}}`)
	override := writeFile(t, "override.yml", "runtime:\n  seed: 7\nmetrics:\n  addr: \":9100\"\n")

	l := newTestLoader(nil)
	l.AddLayer(base)
	l.AddLayer(override)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Runtime.QueueSize)
	assert.Equal(t, uint64(7), cfg.Runtime.Seed)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}

func TestLoader_EnvOverrides(t *testing.T) {
	l := newTestLoader(map[string]string{
		"SEMFLOW_NATS_URLS":        "nats://x:4222,nats://y:4222",
		"SEMFLOW_FLOWS_BUCKET":     "stored_flows",
		"SEMFLOW_SEED":             "99",
		"SEMFLOW_LIBRARIES_SOURCE": "nats",
	})

	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"nats://x:4222", "nats://y:4222"}, cfg.NATS.URLs)
	assert.Equal(t, "stored_flows", cfg.Flows.Bucket)
	assert.Equal(t, uint64(99), cfg.Runtime.Seed)
	assert.Equal(t, LibrarySourceNATS, cfg.Libraries.Source)
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		env     map[string]string
	}{
		{"bad json", "c.json", `{"runtime": `, nil},
		{"bad yaml", "c.yaml", "runtime: [", nil},
		{"bad duration", "c.json", `{"nats": {"timeout": "soon"}}`, nil},
		{"wrong extension", "c.toml", `x = 1`, nil},
		{"bad seed env", "c.json", `{}`, map[string]string{"SEMFLOW_SEED": "-1"}},
		{"unknown source", "c.json", `{"libraries": {"source": "ftp"}}`, nil},
		{"fs without dir", "c.json", `{"libraries": {"source": "fs"}}`, nil},
		{"bad bucket", "c.json", `{"flows": {"bucket": "has.dot"}}`, nil},
		{"bad version", "c.json", `{"version": "1.0"}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			_, err := newTestLoader(tt.env).LoadFile(path)
			require.Error(t, err)
		})
	}
}

func TestLoader_ValidationDisabled(t *testing.T) {
	path := writeFile(t, "c.json", `{"runtime": {"queue_size": 0}}`)
	l := newTestLoader(nil)
	l.EnableValidation(false)
	l.AddLayer(path)

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.Runtime.QueueSize)
}

func TestConfig_ValidateClassification(t *testing.T) {
	cfg := Default()
	cfg.Libraries.Source = "ftp"
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
	assert.True(t, errors.IsFatal(err))

	cfg = Default()
	cfg.Flows.Bucket = "flows"
	cfg.NATS.URLs = nil
	assert.True(t, errors.Is(cfg.Validate(), errors.ErrMissingConfig))
}

func TestConfig_ValidateNamesField(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"queue size", func(c *Config) { c.Runtime.QueueSize = 0 }, "runtime.queue_size"},
		{"source", func(c *Config) { c.Libraries.Source = "ftp" }, "libraries.source"},
		{"flow bucket", func(c *Config) { c.Flows.Bucket = "a.b" }, "flows.bucket"},
		{"empty url", func(c *Config) { c.NATS.URLs = []string{""} }, "nats.urls[0]"},
		{"reconnects", func(c *Config) { c.NATS.MaxReconnects = -2 }, "nats.max_reconnects"},
		{"version", func(c *Config) { c.Version = "1.0" }, "version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field+":")
			assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
		})
	}
}

func TestConfig_ValidateFillsLibraryBucket(t *testing.T) {
	cfg := Default()
	cfg.Libraries.Source = LibrarySourceNATS
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultLibraryBucket, cfg.Libraries.Bucket)
}

func TestConfig_SaveAndReload(t *testing.T) {
	for _, name := range []string{"out.json", "out.yaml"} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Runtime.Seed = 5
			cfg.NATS.Timeout = 3 * time.Second
			cfg.Events.Addr = ":8081"

			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, cfg.SaveToFile(path))

			loaded, err := newTestLoader(nil).LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestConfig_StringMasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.NATS.Password = "hunter2"
	cfg.NATS.Token = "tok"

	out := cfg.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "tok\"")
	assert.Contains(t, out, "***")
	assert.Equal(t, "hunter2", cfg.NATS.Password)
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		v1, v2 string
		want   int
	}{
		{"1.0.0", "1.0.0", 0},
		{"v1.2.0", "1.1.9", 1},
		{"1.2.3", "2.0.0", -1},
		{"0.0.1", "0.0.2", -1},
	}
	for _, tt := range tests {
		got, err := CompareVersions(tt.v1, tt.v2)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s vs %s", tt.v1, tt.v2)
	}

	_, err := CompareVersions("1.x.0", "1.0.0")
	assert.Error(t, err)
}

func TestCheckJSONDepth(t *testing.T) {
	deep := ""
	for i := 0; i <= maxJSONDepth; i++ {
		deep += "["
	}
	assert.Error(t, checkJSONDepth([]byte(deep)))
	assert.Error(t, checkJSONDepth([]byte(`{"a": [}`)))
	assert.NoError(t, checkJSONDepth([]byte(`{"a": "[[[[", "b": [1, {"c": 2}]}`)))
}

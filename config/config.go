package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/c360/semflow/errors"
)

// Library sources
const (
	LibrarySourceCatalog = "catalog" // built-in handlers compiled into the binary
	LibrarySourceFS      = "fs"      // manifest files under libraries.dir
	LibrarySourceNATS    = "nats"    // manifests in a JetStream KV bucket
)

// Defaults
const (
	DefaultQueueSize      = 1024
	DefaultLibraryBucket  = "semflow_libraries"
	DefaultFlowBucket     = "semflow_flows"
	DefaultNATSURL        = "nats://localhost:4222"
	DefaultNATSTimeout    = 5 * time.Second
	DefaultEventsPath     = "/events"
	DefaultMetricsPath    = "/metrics"
	DefaultShutdownPeriod = 10 * time.Second
)

// Config represents the complete runtime configuration
type Config struct {
	Version   string          `json:"version" validate:"omitempty,version"` // semver of the config document
	Runtime   RuntimeConfig   `json:"runtime"`
	Libraries LibrariesConfig `json:"libraries"`
	NATS      NATSConfig      `json:"nats"`
	Metrics   MetricsConfig   `json:"metrics"`
	Events    EventsConfig    `json:"events"`
	Flows     FlowsConfig     `json:"flows"`
}

// RuntimeConfig tunes the sheet
type RuntimeConfig struct {
	Seed            uint64        `json:"seed"`     // process id source seed
	QueueSize       int           `json:"queue_size" validate:"gt=0"`
	IDSpace         uint64        `json:"id_space"` // 0 = full 64-bit range
	ShutdownTimeout time.Duration `json:"shutdown_timeout" validate:"gte=0"`
}

// LibrariesConfig selects where handler and types modules are resolved
type LibrariesConfig struct {
	Source string `json:"source" validate:"oneof=catalog fs nats"`
	Dir    string `json:"dir,omitempty"`    // fs source root
	Bucket string `json:"bucket,omitempty" validate:"omitempty,bucket"` // nats source bucket
}

// NATSConfig defines NATS connection settings. NATS is only dialled when
// a nats library source or a flow bucket is in use.
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty" validate:"dive,required"`
	Timeout       time.Duration `json:"timeout,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty" validate:"gte=-1"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set
type MetricsConfig struct {
	Addr string `json:"addr,omitempty"`
	Path string `json:"path,omitempty"`
}

// EventsConfig exposes the websocket event stream when Addr is set
type EventsConfig struct {
	Addr       string `json:"addr,omitempty"`
	Path       string `json:"path,omitempty"`
	BufferSize int    `json:"buffer_size,omitempty" validate:"gte=0"`
}

// FlowsConfig enables the flow store when Bucket is set
type FlowsConfig struct {
	Bucket string `json:"bucket,omitempty" validate:"omitempty,bucket"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Runtime: RuntimeConfig{
			Seed:            1,
			QueueSize:       DefaultQueueSize,
			ShutdownTimeout: DefaultShutdownPeriod,
		},
		Libraries: LibrariesConfig{Source: LibrarySourceCatalog},
		NATS: NATSConfig{
			URLs:          []string{DefaultNATSURL},
			Timeout:       DefaultNATSTimeout,
			MaxReconnects: -1,
		},
		Metrics: MetricsConfig{Path: DefaultMetricsPath},
		Events:  EventsConfig{Path: DefaultEventsPath},
	}
}

// NeedsNATS reports whether any configured component talks to NATS
func (c *Config) NeedsNATS() bool {
	return c.Libraries.Source == LibrarySourceNATS || c.Flows.Bucket != ""
}

func invalid(format string, args ...any) error {
	return errors.WrapFatal(errors.Detail(errors.ErrInvalidConfig, format, args...), "Config", "Validate", "validation")
}

// Validate checks the config and fills sources' dependent defaults. Field
// rules live in the struct tags; rules spanning fields are checked here.
func (c *Config) Validate() error {
	if c.Libraries.Source == LibrarySourceNATS && c.Libraries.Bucket == "" {
		c.Libraries.Bucket = DefaultLibraryBucket
	}
	if err := structValidator.Struct(c); err != nil {
		return structError(err)
	}

	if c.Libraries.Source == LibrarySourceFS && c.Libraries.Dir == "" {
		return errors.WrapFatal(errors.Detail(errors.ErrMissingConfig, "libraries.dir is required for the fs source"),
			"Config", "Validate", "validation")
	}
	if c.NeedsNATS() && len(c.NATS.URLs) == 0 {
		return errors.WrapFatal(errors.Detail(errors.ErrMissingConfig, "nats.urls is required"),
			"Config", "Validate", "validation")
	}
	if c.Events.Addr != "" && !strings.HasPrefix(c.Events.Path, "/") {
		return invalid("events.path %q must start with /", c.Events.Path)
	}
	if c.Metrics.Addr != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics.path %q must start with /", c.Metrics.Path)
	}
	return nil
}

// isValidBucketName checks the JetStream bucket name alphabet
func isValidBucketName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "nil check")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}
	clone := *c
	clone.NATS.URLs = append([]string(nil), c.NATS.URLs...)
	return &clone
}

// String returns a JSON representation with secrets masked
func (c *Config) String() string {
	masked := c.Clone()
	if masked.NATS.Password != "" {
		masked.NATS.Password = "***"
	}
	if masked.NATS.Token != "" {
		masked.NATS.Token = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// CompareVersions compares two semver version strings: -1 if v1 < v2,
// 0 if equal, 1 if v1 > v2.
func CompareVersions(v1, v2 string) (int, error) {
	a1, b1, c1, err := parseSemVer(v1)
	if err != nil {
		return 0, fmt.Errorf("invalid version '%s': %w", v1, err)
	}
	a2, b2, c2, err := parseSemVer(v2)
	if err != nil {
		return 0, fmt.Errorf("invalid version '%s': %w", v2, err)
	}
	for _, pair := range [][2]int{{a1, a2}, {b1, b2}, {c1, c2}} {
		switch {
		case pair[0] > pair[1]:
			return 1, nil
		case pair[0] < pair[1]:
			return -1, nil
		}
	}
	return 0, nil
}

// parseSemVer parses "major.minor.patch", with an optional v prefix
func parseSemVer(version string) (int, int, int, error) {
	if version == "" {
		return 0, 0, 0, errors.New("version cannot be empty")
	}
	version = strings.TrimPrefix(version, "v")
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("version must be in format 'major.minor.patch', got '%s'", version)
	}
	var nums [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, 0, 0, fmt.Errorf("invalid version component '%s'", part)
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}

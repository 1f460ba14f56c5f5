package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/semflow/errors"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "SEMFLOW"

// durationKeys lists the section.key pairs holding durations. Files may give
// them as strings ("5s", "2d") or nanoseconds.
var durationKeys = [][2]string{
	{"nats", "timeout"},
	{"runtime", "shutdown_timeout"},
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	getenv     func(string) string
}

// NewLoader creates a new configuration loader. Validation is enabled.
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  EnvPrefix,
		getenv:     os.Getenv,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, every layer and the environment, in that order
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
		if cfg, err = mergeFromMap(cfg, raw); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("merge %s", path))
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadRaw reads a JSON or YAML file, chosen by extension, as a map
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errors.Detail(errors.ErrInvalidConfig, "%v", err)
		}
	default:
		if err := checkJSONDepth(data); err != nil {
			return nil, errors.Detail(errors.ErrInvalidConfig, "invalid JSON structure: %v", err)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, errors.Detail(errors.ErrInvalidConfig, "%v", err)
		}
	}

	if err := parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// parseDurations converts duration strings to nanoseconds for json unmarshaling
func parseDurations(data map[string]any) error {
	for _, key := range durationKeys {
		section, ok := data[key[0]].(map[string]any)
		if !ok {
			continue
		}
		s, ok := section[key[1]].(string)
		if !ok {
			continue
		}
		d, err := parseDurationWithDays(s)
		if err != nil {
			return errors.Detail(errors.ErrInvalidConfig, "%s.%s: %v", key[0], key[1], err)
		}
		section[key[1]] = d.Nanoseconds()
	}
	return nil
}

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// mergeFromMap overrides only the fields present in override
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}
	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, errors.Detail(errors.ErrInvalidConfig, "%v", err)
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies SEMFLOW_* environment overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	env := func(key string) (string, error) {
		name := l.envPrefix + "_" + key
		val := l.getenv(name)
		if err := checkEnvValue(name, val); err != nil {
			return "", errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "env check")
		}
		return val, nil
	}
	strs := map[string]*string{
		"LIBRARIES_SOURCE": &cfg.Libraries.Source,
		"LIBRARIES_DIR":    &cfg.Libraries.Dir,
		"LIBRARIES_BUCKET": &cfg.Libraries.Bucket,
		"NATS_USERNAME":    &cfg.NATS.Username,
		"NATS_PASSWORD":    &cfg.NATS.Password,
		"NATS_TOKEN":       &cfg.NATS.Token,
		"METRICS_ADDR":     &cfg.Metrics.Addr,
		"EVENTS_ADDR":      &cfg.Events.Addr,
		"FLOWS_BUCKET":     &cfg.Flows.Bucket,
	}
	for key, dst := range strs {
		val, err := env(key)
		if err != nil {
			return err
		}
		if val != "" {
			*dst = val
		}
	}

	val, err := env("NATS_URLS")
	if err != nil {
		return err
	}
	if val != "" {
		cfg.NATS.URLs = strings.Split(val, ",")
	}

	val, err = env("SEED")
	if err != nil {
		return err
	}
	if val != "" {
		seed, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return errors.WrapInvalid(errors.Detail(errors.ErrInvalidConfig, "%s_SEED: %v", l.envPrefix, err),
				"Loader", "applyEnvOverrides", "parse seed")
		}
		cfg.Runtime.Seed = seed
	}
	return nil
}

// SaveToFile writes the configuration as JSON or YAML, chosen by extension
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw map[string]any
		if raw, err = c.toMap(); err == nil {
			data, err = yaml.Marshal(raw)
		}
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "encode")
	}
	return writeConfigFile(path, data)
}

// toMap round-trips through JSON so YAML output uses the json tag names
func (c *Config) toMap() (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	err = json.Unmarshal(data, &raw)
	return raw, err
}

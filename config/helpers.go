package config

import (
	"github.com/c360/semflow/types"
)

// Safe getters over dynamic maps. They back flow.Parameters and the
// library sections of the runtime configuration.

// GetString extracts a string value
func GetString(cfg map[string]any, key string, defaultVal string) string {
	if val, ok := cfg[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultVal
}

// GetInt extracts an integer value; floats are truncated
func GetInt(cfg map[string]any, key string, defaultVal int) int {
	if val, ok := cfg[key]; ok {
		if n, ok := types.ToInt(val); ok {
			return int(n)
		}
	}
	return defaultVal
}

// GetFloat64 extracts a float value from any numeric type
func GetFloat64(cfg map[string]any, key string, defaultVal float64) float64 {
	if val, ok := cfg[key]; ok {
		if f, ok := types.ToFloat(val); ok {
			return f
		}
	}
	return defaultVal
}

// GetBool extracts a boolean value
func GetBool(cfg map[string]any, key string, defaultVal bool) bool {
	if val, ok := cfg[key]; ok {
		if boolVal, ok := val.(bool); ok {
			return boolVal
		}
	}
	return defaultVal
}

// GetStringSlice extracts a string slice, accepting []any of strings
func GetStringSlice(cfg map[string]any, key string, defaultVal []string) []string {
	val, ok := cfg[key]
	if !ok {
		return defaultVal
	}
	if slice, ok := val.([]string); ok {
		return slice
	}
	items, ok := val.([]any)
	if !ok {
		return defaultVal
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return defaultVal
		}
		result = append(result, str)
	}
	return result
}

// HasKey checks if a key exists in the map
func HasKey(cfg map[string]any, key string) bool {
	_, ok := cfg[key]
	return ok
}

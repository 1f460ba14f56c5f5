package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	GraphPath       string
	FlowName        string
	SaveOnExit      bool
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
	List            bool
	Publish         bool

	flags *flag.FlagSet
}

func parseFlags(args []string) (*CLIConfig, error) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cfg := &CLIConfig{flags: fs}

	fs.StringVar(&cfg.ConfigPath, "config", getEnv("SEMFLOW_CONFIG", ""),
		"Path to a JSON or YAML configuration file, defaults when empty (env: SEMFLOW_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c", getEnv("SEMFLOW_CONFIG", ""),
		"Path to configuration file (env: SEMFLOW_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("SEMFLOW_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: SEMFLOW_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("SEMFLOW_LOG_FORMAT", "json"),
		"Log format: json, text (env: SEMFLOW_LOG_FORMAT)")
	fs.BoolVar(&cfg.Debug, "debug", getEnvBool("SEMFLOW_DEBUG", false),
		"Enable debug logging (env: SEMFLOW_DEBUG)")

	fs.StringVar(&cfg.GraphPath, "graph", getEnv("SEMFLOW_GRAPH", ""),
		"Graph document to import at startup (env: SEMFLOW_GRAPH)")
	fs.StringVar(&cfg.FlowName, "flow", getEnv("SEMFLOW_FLOW", ""),
		"Stored flow to run, requires flows.bucket (env: SEMFLOW_FLOW)")
	fs.BoolVar(&cfg.SaveOnExit, "save", getEnvBool("SEMFLOW_SAVE", false),
		"Save the graph to the stored flow on shutdown (env: SEMFLOW_SAVE)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", getEnvDuration("SEMFLOW_SHUTDOWN_TIMEOUT", 0),
		"Graceful shutdown timeout, overrides runtime.shutdown_timeout (env: SEMFLOW_SHUTDOWN_TIMEOUT)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Load the config and graph, report connectivity and exit")
	fs.BoolVar(&cfg.List, "list", false, "List the handler and types modules of the library and exit")
	fs.BoolVar(&cfg.Publish, "publish", false, "Copy the built-in library manifests into libraries.bucket and exit")

	fs.Usage = func() { printDetailedHelp(fs.Output(), fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}
	if cfg.GraphPath != "" {
		if _, err := os.Stat(cfg.GraphPath); err != nil {
			return fmt.Errorf("graph file not found: %s", cfg.GraphPath)
		}
	}
	if cfg.GraphPath != "" && cfg.FlowName != "" && !cfg.SaveOnExit {
		return fmt.Errorf("-graph and -flow together only make sense with -save")
	}
	if cfg.SaveOnExit && cfg.FlowName == "" {
		return fmt.Errorf("-save requires -flow")
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	modes := 0
	for _, on := range []bool{cfg.Validate, cfg.List, cfg.Publish} {
		if on {
			modes++
		}
	}
	if modes > 1 {
		return fmt.Errorf("-validate, -list and -publish are exclusive")
	}
	return nil
}

func printDetailedHelp(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(w, `%s - flow-based programming runtime

Usage: %s [options]

Options:
`, appName, appName)
	fs.SetOutput(w)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Run a graph with the built-in handlers
  %[1]s --graph=flows/sum.json --log-format=text

  # Run a stored flow and save its graph on shutdown
  %[1]s --config=semflow.yaml --flow=sum --save

  # Check a graph for disconnected processes and unused ports
  %[1]s --graph=flows/sum.json --validate

  # Show the modules the configured library offers
  %[1]s --config=semflow.yaml --list

Version: %[2]s
Build: %[3]s
`, appName, Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

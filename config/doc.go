// Package config provides configuration loading for the semflow runtime.
//
// Configuration comes from three layers, later layers overriding earlier
// ones: built-in defaults, one or more JSON or YAML files (chosen by
// extension) and SEMFLOW_* environment variables.
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/production.json")
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Durations may be written as Go duration strings, with a "d" suffix for
// days, or as nanoseconds:
//
//	runtime:
//	  shutdown_timeout: 15s
//	nats:
//	  urls: ["nats://localhost:4222"]
//	  timeout: 5s
//	libraries:
//	  source: nats          # catalog | fs | nats
//	  bucket: semflow_libraries
//	flows:
//	  bucket: semflow_flows
//	events:
//	  addr: ":8090"
//	  path: /events
//	metrics:
//	  addr: ":9090"
//
// Environment overrides: SEMFLOW_LIBRARIES_SOURCE, SEMFLOW_LIBRARIES_DIR,
// SEMFLOW_LIBRARIES_BUCKET, SEMFLOW_NATS_URLS (comma separated),
// SEMFLOW_NATS_USERNAME, SEMFLOW_NATS_PASSWORD, SEMFLOW_NATS_TOKEN,
// SEMFLOW_METRICS_ADDR, SEMFLOW_EVENTS_ADDR, SEMFLOW_FLOWS_BUCKET and
// SEMFLOW_SEED.
//
// Files are read through readConfigFile, which rejects relative paths that
// escape the working directory, files over 10MB and JSON nested deeper than
// 100 levels.
//
// SafeConfig guards a Config for concurrent readers; Get returns a copy.
//
// The Get* helpers read typed values out of map[string]any documents with a
// default. flow.Parameters is built on them.
package config

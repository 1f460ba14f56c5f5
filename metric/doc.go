// Package metric provides the Prometheus metrics of the semflow runtime.
//
// A MetricsRegistry owns a private Prometheus registry with the runtime
// metric set (Metrics) plus the Go and process collectors. Sheets, loaders
// and worker pools take the registry as an option and record through
// CoreMetrics(); every Record method is a no-op on a nil *Metrics.
//
//	registry := metric.NewMetricsRegistry()
//	sheet := flow.NewSheet(reg, ld, flow.WithMetrics(registry))
//	http.Handle("/metrics", registry.Handler())
//
// Components with their own series register them through MetricsRegistrar,
// which rejects a second registration of the same "owner.metric" key.
package metric

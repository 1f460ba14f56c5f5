package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "semflow"

// Metrics contains the runtime metrics of a sheet and its loader. All record
// methods accept a nil receiver so instrumented code can run without a registry.
type Metrics struct {
	Processes        prometheus.Gauge
	Connections      *prometheus.GaugeVec
	PacketsSent      *prometheus.CounterVec
	PacketsDelivered *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	DispatchErrors   *prometheus.CounterVec
	ModuleLoads      *prometheus.CounterVec
	LoaderInflight   prometheus.Gauge
	EventBatches     prometheus.Counter
	Events           *prometheus.CounterVec

	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates the runtime metric set
func NewMetrics() *Metrics {
	return &Metrics{
		Processes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sheet",
			Name:      "processes",
			Help:      "Number of live processes",
		}),
		Connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sheet",
			Name:      "connections",
			Help:      "Number of live connections by discipline",
		}, []string{"discipline"}),
		PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "packets",
			Name:      "sent_total",
			Help:      "Packets enqueued on streamed connections",
		}, []string{"handler"}),
		PacketsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "packets",
			Name:      "delivered_total",
			Help:      "Packets handed to a process handler",
		}, []string{"handler"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "packets",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent in a handler's packet callback",
			Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		}, []string{"handler"}),
		DispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "packets",
			Name:      "dispatch_errors_total",
			Help:      "Handler callbacks that returned an error or panicked",
		}, []string{"handler", "kind"}),
		ModuleLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "module_loads_total",
			Help:      "Module fetches by kind and outcome",
		}, []string{"kind", "status"}),
		LoaderInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "inflight",
			Help:      "Fetches currently in progress",
		}),
		EventBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "batches_total",
			Help:      "Non-empty event batches flushed to observers",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "total",
			Help:      "Events flushed to observers by kind",
		}, []string{"kind"}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "nats",
			Name:      "connected",
			Help:      "NATS connection status (0=disconnected, 1=connected)",
		}),
		NATSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "Total number of NATS reconnections",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Processes, m.Connections, m.PacketsSent, m.PacketsDelivered,
		m.DispatchDuration, m.DispatchErrors, m.ModuleLoads, m.LoaderInflight,
		m.EventBatches, m.Events, m.NATSConnected, m.NATSReconnects,
	}
}

// RecordProcess adjusts the live process gauge by delta
func (m *Metrics) RecordProcess(delta int) {
	if m == nil {
		return
	}
	m.Processes.Add(float64(delta))
}

// RecordConnection adjusts the live connection gauge by delta
func (m *Metrics) RecordConnection(discipline string, delta int) {
	if m == nil {
		return
	}
	m.Connections.WithLabelValues(discipline).Add(float64(delta))
}

// RecordPacketSent counts packets enqueued by a process
func (m *Metrics) RecordPacketSent(handler string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.PacketsSent.WithLabelValues(handler).Add(float64(n))
}

// RecordPacketDelivered counts one delivery and its handler time
func (m *Metrics) RecordPacketDelivered(handler string, d time.Duration) {
	if m == nil {
		return
	}
	m.PacketsDelivered.WithLabelValues(handler).Inc()
	m.DispatchDuration.WithLabelValues(handler).Observe(d.Seconds())
}

// RecordDispatchError counts a failed callback; kind is "error" or "panic"
func (m *Metrics) RecordDispatchError(handler, kind string) {
	if m == nil {
		return
	}
	m.DispatchErrors.WithLabelValues(handler, kind).Inc()
}

// RecordModuleLoad counts a module fetch outcome
func (m *Metrics) RecordModuleLoad(kind, status string) {
	if m == nil {
		return
	}
	m.ModuleLoads.WithLabelValues(kind, status).Inc()
}

// RecordLoaderInflight sets the number of fetches in progress
func (m *Metrics) RecordLoaderInflight(n int) {
	if m == nil {
		return
	}
	m.LoaderInflight.Set(float64(n))
}

// RecordEventBatch counts a flushed batch and its events by kind
func (m *Metrics) RecordEventBatch(counts map[string]int) {
	if m == nil {
		return
	}
	m.EventBatches.Inc()
	for kind, n := range counts {
		m.Events.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordNATSStatus updates NATS connection status
func (m *Metrics) RecordNATSStatus(connected bool) {
	if m == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	m.NATSConnected.Set(value)
}

// RecordNATSReconnect increments the reconnection counter
func (m *Metrics) RecordNATSReconnect() {
	if m == nil {
		return
	}
	m.NATSReconnects.Inc()
}

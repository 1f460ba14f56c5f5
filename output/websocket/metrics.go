package websocket

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semflow/metric"
)

const metricsOwner = "websocket"

// Metrics holds Prometheus metrics for the event stream
type Metrics struct {
	clientsConnected   prometheus.Gauge
	connectionsTotal   prometheus.Counter
	disconnectionTotal *prometheus.CounterVec
	batchesTotal       prometheus.Counter
	framesSent         prometheus.Counter
	framesDropped      prometheus.Counter
	bytesSent          prometheus.Counter
	errorsTotal        *prometheus.CounterVec
}

// newMetrics creates and registers the metrics; a nil registry yields nil
// metrics, and every recorder below is nil-safe
func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "semflow", Subsystem: "websocket", Name: "clients_connected",
			Help: "Number of currently connected clients",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semflow", Subsystem: "websocket", Name: "client_connections_total",
			Help: "Total client connections",
		}),
		disconnectionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semflow", Subsystem: "websocket", Name: "client_disconnections_total",
			Help: "Total client disconnections",
		}, []string{"reason"}),
		batchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semflow", Subsystem: "websocket", Name: "batches_total",
			Help: "Event batches broadcast",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semflow", Subsystem: "websocket", Name: "frames_sent_total",
			Help: "Frames written to clients",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semflow", Subsystem: "websocket", Name: "frames_dropped_total",
			Help: "Frames dropped from full client outboxes",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semflow", Subsystem: "websocket", Name: "bytes_sent_total",
			Help: "Bytes written to clients",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semflow", Subsystem: "websocket", Name: "errors_total",
			Help: "Event stream errors",
		}, []string{"error_type"}),
	}

	for name, c := range map[string]prometheus.Counter{
		"client_connections_total": m.connectionsTotal,
		"batches_total":            m.batchesTotal,
		"frames_sent_total":        m.framesSent,
		"frames_dropped_total":     m.framesDropped,
		"bytes_sent_total":         m.bytesSent,
	} {
		if err := registry.RegisterCounter(metricsOwner, name, c); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterGauge(metricsOwner, "clients_connected", m.clientsConnected); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(metricsOwner, "client_disconnections_total", m.disconnectionTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(metricsOwner, "errors_total", m.errorsTotal); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) recordConnect(clients int) {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.clientsConnected.Set(float64(clients))
}

func (m *Metrics) recordDisconnect(reason string, clients int) {
	if m == nil {
		return
	}
	m.disconnectionTotal.WithLabelValues(reason).Inc()
	m.clientsConnected.Set(float64(clients))
}

func (m *Metrics) recordBatch() {
	if m != nil {
		m.batchesTotal.Inc()
	}
}

func (m *Metrics) recordSent(bytes int) {
	if m == nil {
		return
	}
	m.framesSent.Inc()
	m.bytesSent.Add(float64(bytes))
}

func (m *Metrics) recordDrop() {
	if m != nil {
		m.framesDropped.Inc()
	}
}

func (m *Metrics) recordError(kind string) {
	if m != nil {
		m.errorsTotal.WithLabelValues(kind).Inc()
	}
}

package health

import (
	"sync"
	"time"
)

// Runner is anything that reports whether it is running, such as a sheet
type Runner interface {
	Running() bool
}

// Connection is anything that reports whether its link is up, such as a
// NATS client
type Connection interface {
	IsHealthy() bool
}

// RunnerProbe is healthy while r runs and degraded otherwise. Uptime counts
// from the first healthy evaluation.
func RunnerProbe(r Runner) Probe {
	var (
		mu    sync.Mutex
		since time.Time
	)
	return func() Status {
		mu.Lock()
		defer mu.Unlock()
		if !r.Running() {
			since = time.Time{}
			return NewDegraded("", "stopped")
		}
		if since.IsZero() {
			since = time.Now()
		}
		return NewHealthy("", "running").WithMetrics(&Metrics{Uptime: time.Since(since)})
	}
}

// ConnectionProbe is healthy while c is connected and unhealthy otherwise
func ConnectionProbe(c Connection) Probe {
	return func() Status {
		if c.IsHealthy() {
			return NewHealthy("", "connected")
		}
		return NewUnhealthy("", "disconnected")
	}
}

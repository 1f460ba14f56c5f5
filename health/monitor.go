package health

import (
	"slices"
	"sync"
	"time"
)

// Probe computes a status on demand
type Probe func() Status

// Monitor holds pushed statuses and registered probes. It is safe for
// concurrent use.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	probes   map[string]Probe
}

// NewMonitor creates an empty monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
		probes:   make(map[string]Probe),
	}
}

// Update records status under name, replacing any probe of that name
func (m *Monitor) Update(name string, status Status) {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.probes, name)
	m.statuses[name] = status
}

// UpdateHealthy records name as healthy
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy records name as unhealthy
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, message))
}

// UpdateDegraded records name as degraded
func (m *Monitor) UpdateDegraded(name, message string) {
	m.Update(name, NewDegraded(name, message))
}

// Register evaluates probe every time name is read
func (m *Monitor) Register(name string, probe Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
	m.probes[name] = probe
}

// Get returns the current status of name
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	status, ok := m.statuses[name]
	probe := m.probes[name]
	m.mu.RUnlock()

	if probe != nil {
		return evaluate(name, probe), true
	}
	return status, ok
}

// Remove stops tracking name
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
	delete(m.probes, name)
}

// Names returns the tracked names in sorted order
func (m *Monitor) Names() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.statuses)+len(m.probes))
	for name := range m.statuses {
		names = append(names, name)
	}
	for name := range m.probes {
		names = append(names, name)
	}
	m.mu.RUnlock()

	slices.Sort(names)
	return names
}

// Snapshot returns every current status sorted by name. Probes run outside
// the lock.
func (m *Monitor) Snapshot() []Status {
	m.mu.RLock()
	out := make([]Status, 0, len(m.statuses)+len(m.probes))
	for _, status := range m.statuses {
		out = append(out, status)
	}
	probes := make(map[string]Probe, len(m.probes))
	for name, probe := range m.probes {
		probes[name] = probe
	}
	m.mu.RUnlock()

	for name, probe := range probes {
		out = append(out, evaluate(name, probe))
	}
	slices.SortFunc(out, func(a, b Status) int {
		switch {
		case a.Component < b.Component:
			return -1
		case a.Component > b.Component:
			return 1
		default:
			return 0
		}
	})
	return out
}

// AggregateHealth rolls every tracked status up under system
func (m *Monitor) AggregateHealth(system string) Status {
	return Aggregate(system, m.Snapshot())
}

func evaluate(name string, probe Probe) Status {
	status := probe()
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	return status
}

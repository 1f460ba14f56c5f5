package health

import "time"

func newStatus(component string, state State, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		State:     state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, StateHealthy, message)
}

// NewUnhealthy creates an unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StateUnhealthy, message)
}

// NewDegraded creates a degraded status
func NewDegraded(component, message string) Status {
	return newStatus(component, StateDegraded, message)
}

// Aggregate rolls subs up into one status carrying the worst sub-state.
// An empty list is healthy.
func Aggregate(component string, subs []Status) Status {
	if len(subs) == 0 {
		return NewHealthy(component, "nothing to report")
	}

	worst := StateHealthy
	for _, sub := range subs {
		if sub.State.rank() > worst.rank() {
			worst = sub.State
		}
	}

	var status Status
	switch worst {
	case StateHealthy:
		status = NewHealthy(component, "all parts healthy")
	case StateDegraded:
		status = NewDegraded(component, "one or more parts degraded")
	default:
		status = NewUnhealthy(component, "one or more parts unhealthy")
	}

	status.SubStatuses = make([]Status, len(subs))
	copy(status.SubStatuses, subs)
	return status
}

package flowstore

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/flow"
)

// Flow is a named, versioned graph document
type Flow struct {
	// Identity
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Version for optimistic concurrency control
	Version int64 `json:"version"`

	Graph flow.Document `json:"graph"`

	// Runtime state
	RuntimeState RuntimeState `json:"runtime_state"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	StoppedAt    *time.Time   `json:"stopped_at,omitempty"`

	// Audit
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// RuntimeState is the execution state last recorded for a flow
type RuntimeState string

// RuntimeState constants:
//   - StateStored: saved but never run
//   - StateRunning: a sheet is executing the graph
//   - StateStopped: the sheet stopped and saved the graph
//   - StateError: the graph failed to import or start
const (
	StateStored  RuntimeState = "stored"
	StateRunning RuntimeState = "running"
	StateStopped RuntimeState = "stopped"
	StateError   RuntimeState = "error"
)

// Valid reports whether s is a known state
func (s RuntimeState) Valid() bool {
	switch s {
	case StateStored, StateRunning, StateStopped, StateError:
		return true
	}
	return false
}

// New returns an unsaved flow with a fresh id
func New(name string, graph flow.Document) *Flow {
	return &Flow{
		ID:           uuid.NewString(),
		Name:         name,
		Graph:        graph,
		RuntimeState: StateStored,
	}
}

// Validate checks the flow fields and its graph document
func (f *Flow) Validate() error {
	if f.ID == "" {
		return errors.WrapInvalid(fmt.Errorf("flow ID cannot be empty"), "flowstore", "Validate", "validation")
	}
	if f.Name == "" {
		return errors.WrapInvalid(fmt.Errorf("flow %s: name cannot be empty", f.ID), "flowstore", "Validate", "validation")
	}
	if !f.RuntimeState.Valid() {
		return errors.WrapInvalid(fmt.Errorf("flow %s: invalid runtime state %q", f.ID, f.RuntimeState),
			"flowstore", "Validate", "runtime state validation")
	}
	if err := f.Graph.Validate(); err != nil {
		return errors.WrapInvalid(err, "flowstore", "Validate", fmt.Sprintf("flow %s graph validation", f.ID))
	}
	return nil
}

// Snapshot replaces the graph with the sheet's current export
func (f *Flow) Snapshot(s *flow.Sheet) {
	f.Graph = s.ExportGraph()
}

// MarkState records a runtime state transition
func (f *Flow) MarkState(state RuntimeState, at time.Time) {
	f.RuntimeState = state
	switch state {
	case StateRunning:
		f.StartedAt = &at
	case StateStopped, StateError:
		f.StoppedAt = &at
	}
}

package websocket

import (
	"encoding/json"
	"strconv"

	"github.com/c360/semflow/flow"
)

// Event kinds, in the order they appear within a batch
const (
	KindProcessDeleted    = "process_deleted"
	KindPortDeleted       = "port_deleted"
	KindConnectionDeleted = "connection_deleted"
	KindProcessCreated    = "process_created"
	KindPortCreated       = "port_created"
	KindConnectionCreated = "connection_created"
	KindPortChanged       = "port_changed"
)

// Envelope types
const (
	TypeHello    = "hello"
	TypeSnapshot = "snapshot"
	TypeBatch    = "batch"
	TypeError    = "error"
)

// MessageEnvelope wraps every frame sent to or received from a client
type MessageEnvelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Batch is the payload of a "batch" envelope: the notifications of one
// sheet flush
type Batch struct {
	Seq    uint64  `json:"seq"`
	Events []Event `json:"events"`
}

// Hello is the payload of the first frame a client receives
type Hello struct {
	ClientID string `json:"client_id"`
	Seq      uint64 `json:"seq"` // last batch sent before the client joined
}

// Event is one graph notification
type Event struct {
	Kind       string          `json:"kind"`
	Process    *ProcessInfo    `json:"process,omitempty"`
	Port       *PortInfo       `json:"port,omitempty"`
	Connection *ConnectionInfo `json:"connection,omitempty"`
}

// ProcessInfo identifies a process
type ProcessInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Handler string `json:"handler"`
}

// PortInfo describes a port. Value is set for valued ports whose value
// encodes as JSON.
type PortInfo struct {
	Ref        string          `json:"ref"`
	Name       string          `json:"name"`
	Direction  string          `json:"direction"`
	Discipline string          `json:"discipline"`
	Type       string          `json:"type"`
	Value      json.RawMessage `json:"value,omitempty"`
}

// ConnectionInfo describes a connection by its port references
type ConnectionInfo struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Discipline string `json:"discipline"`
}

func processInfo(p *flow.Process) *ProcessInfo {
	return &ProcessInfo{
		ID:      strconv.FormatUint(p.ID(), 16),
		Name:    p.Name(),
		Handler: p.HandlerName(),
	}
}

// portInfo captures the port as it is now; values are encoded immediately
// since they may change before the batch is sent
func portInfo(port *flow.Port, withValue bool) *PortInfo {
	info := &PortInfo{
		Ref:        port.String(),
		Name:       port.Name(),
		Direction:  port.Direction().String(),
		Discipline: port.Discipline().String(),
		Type:       port.Type().Name(),
	}
	if withValue && port.Discipline() == flow.Valued && !port.IsDeleted() {
		if data, err := json.Marshal(port.Value()); err == nil {
			info.Value = data
		}
	}
	return info
}

func connectionInfo(c *flow.Connection) *ConnectionInfo {
	return &ConnectionInfo{
		From:       c.Start().String(),
		To:         c.End().String(),
		Discipline: c.Discipline().String(),
	}
}

package flow

import (
	"context"
	"slices"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/types"
)

// Direction of a port relative to its process
type Direction int

const (
	// In ports receive packets or read values
	In Direction = iota
	// Out ports send packets or provide values
	Out
)

func (d Direction) String() string {
	if d == Out {
		return "out"
	}
	return "in"
}

// MarshalText implements encoding.TextMarshaler
func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Discipline selects how data moves through a port
type Discipline int

const (
	// Streamed ports push packets through FIFO connections
	Streamed Discipline = iota
	// Valued ports expose a current value that readers pull
	Valued
)

func (d Discipline) String() string {
	if d == Valued {
		return "valued"
	}
	return "streamed"
}

// MarshalText implements encoding.TextMarshaler
func (d Discipline) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Cloner is implemented by packets that must not be shared between the
// destinations of a fan-out. Every destination after the first gets a clone.
type Cloner interface {
	Clone() any
}

// PortSpec describes a port to create
type PortSpec struct {
	Name        string
	Direction   Direction
	Discipline  Discipline
	Type        string
	Description string
	// Default is the stored value of a valued port; nil uses the type default
	Default any
	// PassThrough makes a valued output compute its value on demand
	PassThrough bool
}

// Port is a named, typed endpoint of a process
type Port struct {
	name        string
	description string
	direction   Direction
	discipline  Discipline
	typ         *types.Type
	passThrough bool
	value       any

	process     *Process
	connections []*Connection

	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	deleted bool
}

// Name returns the port name
func (p *Port) Name() string { return p.name }

// Description returns the port description
func (p *Port) Description() string { return p.description }

// Direction returns In or Out
func (p *Port) Direction() Direction { return p.direction }

// Discipline returns Streamed or Valued
func (p *Port) Discipline() Discipline { return p.discipline }

// Type returns the port type
func (p *Port) Type() *types.Type { return p.typ }

// Process returns the owning process
func (p *Port) Process() *Process { return p.process }

// IsPassThrough reports whether a valued output computes its value on demand
func (p *Port) IsPassThrough() bool { return p.passThrough }

// IsDeleted reports whether the port was removed from its process
func (p *Port) IsDeleted() bool { return p.deleted }

// Connections returns the port's connections in creation order
func (p *Port) Connections() []*Connection { return slices.Clone(p.connections) }

// IsConnected reports whether the port has any connection
func (p *Port) IsConnected() bool { return len(p.connections) > 0 }

// Ref returns the document reference of the port
func (p *Port) Ref() PortRef {
	return PortRef{Process: p.process.name, ID: p.process.id, Port: p.name}
}

// String renders the port as name[hexid]#port
func (p *Port) String() string { return p.Ref().String() }

func (p *Port) sheet() *Sheet { return p.process.sheet }

// Connect links this port with other; the output side becomes the start of
// the connection regardless of which side Connect is called on.
func (p *Port) Connect(other *Port) (*Connection, error) {
	if other == nil {
		return nil, errors.WrapInvalid(errors.Detail(errors.ErrUnknownPort, "nil port"), "Port", "Connect", "argument check")
	}
	if p.direction == Out {
		return p.sheet().connect(p, other)
	}
	return p.sheet().connect(other, p)
}

// DisconnectAll deletes every connection of the port
func (p *Port) DisconnectAll() error {
	for _, c := range slices.Clone(p.connections) {
		if c.deleted {
			continue
		}
		if err := c.Delete(); err != nil {
			return err
		}
	}
	if len(p.connections) > 0 {
		return errors.WrapFatal(errors.Detail(errors.ErrInvariantViolation, "%s kept %d connections", p, len(p.connections)),
			"Port", "DisconnectAll", "connection check")
	}
	return nil
}

// Send enqueues packet on every outgoing connection in connection order
func (p *Port) Send(packet any) error {
	if p.discipline != Streamed || p.direction != Out {
		return errors.WrapInvalid(errors.Detail(errors.ErrWrongConnectionKind, "send on %s %s port %s", p.discipline, p.direction, p),
			"Port", "Send", "discipline check")
	}
	if p.deleted {
		return errors.WrapFatal(errors.Detail(errors.ErrAlreadyDeleted, "port %s", p), "Port", "Send", "state check")
	}

	sent := 0
	for i, c := range p.connections {
		pkt := packet
		if cl, ok := packet.(Cloner); ok && i > 0 {
			pkt = cl.Clone()
		}
		if c.queue.push(pkt) {
			sent++
		}
	}
	p.sheet().metrics.RecordPacketSent(p.process.handlerName, sent)
	return nil
}

// Default returns the stored value of a valued port
func (p *Port) Default() any { return p.value }

// Value resolves the current value of a valued port. A connected input
// reads its source, cast to the input type; an unconnected port returns its
// stored value; a pass-through output asks its handler and falls back to the
// stored value. Streamed ports have no value.
func (p *Port) Value() any {
	if p.discipline != Valued {
		return nil
	}
	switch {
	case p.direction == In && len(p.connections) == 1:
		return p.connections[0].value()
	case p.direction == Out && p.passThrough:
		if v, ok := p.process.passThroughValue(p); ok {
			return v
		}
	}
	return p.value
}

// SetValue stores v in a valued port and notifies the handler, observers and
// every valued input downstream whose value depends on it.
func (p *Port) SetValue(v any) error {
	if p.discipline != Valued {
		return errors.WrapInvalid(errors.Detail(errors.ErrWrongConnectionKind, "set value on streamed port %s", p),
			"Port", "SetValue", "discipline check")
	}
	if p.deleted {
		return errors.WrapFatal(errors.Detail(errors.ErrAlreadyDeleted, "port %s", p), "Port", "SetValue", "state check")
	}
	p.value = v
	p.sheet().valueChanged(p)
	return nil
}

// Start begins delivering packets from every incoming connection of a
// streamed input. The sheet must be running.
func (p *Port) Start() error {
	if p.discipline != Streamed || p.direction != In {
		return errors.WrapInvalid(errors.Detail(errors.ErrWrongConnectionKind, "start %s %s port %s", p.discipline, p.direction, p),
			"Port", "Start", "discipline check")
	}
	s := p.sheet()
	if !s.Running() {
		return errors.WrapInvalid(errors.ErrNotStarted, "Port", "Start", "sheet state check")
	}
	if p.started || p.deleted {
		return nil
	}
	p.ctx, p.cancel = context.WithCancel(s.runCtx)
	p.started = true
	for _, c := range p.connections {
		s.startConsumer(p.ctx, c)
	}
	return nil
}

// Stop cancels the port's pending reads. Queued packets stay queued.
func (p *Port) Stop() {
	if !p.started {
		return
	}
	p.cancel()
	p.started = false
	p.ctx, p.cancel = nil, nil
}

// IsStarted reports whether the port is delivering packets
func (p *Port) IsStarted() bool { return p.started }

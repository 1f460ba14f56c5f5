package flow

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"time"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/pkg/attr"
)

// Reserved process attribute keys; they are document fields, not attributes
var processReserved = []string{"id", "name", "handler", "parameters", "state"}

// Process is a node of the graph. Its behaviour comes from a Handler and
// its ports are created by the handler during OnCreate.
type Process struct {
	id          uint64
	name        string
	handlerName string
	handler     *Handler
	params      Parameters
	inputs      []*Port
	outputs     []*Port
	attrs       *attr.Object
	state       any
	sheet       *Sheet
	logger      *slog.Logger
	deleted     bool

	faults    int
	lastFault error
}

// ID returns the process id
func (p *Process) ID() uint64 { return p.id }

// Name returns the display name
func (p *Process) Name() string { return p.name }

// HandlerName returns the handler module name
func (p *Process) HandlerName() string { return p.handlerName }

// Handler returns the loaded handler
func (p *Process) Handler() *Handler { return p.handler }

// Parameters returns a copy of the resolved parameters
func (p *Process) Parameters() Parameters { return p.params.Clone() }

// Sheet returns the owning sheet
func (p *Process) Sheet() *Sheet { return p.sheet }

// Logger returns a logger tagged with the process identity
func (p *Process) Logger() *slog.Logger { return p.logger }

// Attributes returns the free attributes of the process
func (p *Process) Attributes() *attr.Object { return p.attrs }

// State returns the handler-private state
func (p *Process) State() any { return p.state }

// SetState replaces the handler-private state
func (p *Process) SetState(state any) { p.state = state }

// IsDeleted reports whether the process was deleted
func (p *Process) IsDeleted() bool { return p.deleted }

// Faults returns how many callbacks failed and the most recent failure
func (p *Process) Faults() (int, error) { return p.faults, p.lastFault }

// Inputs returns the input ports in creation order
func (p *Process) Inputs() []*Port { return slices.Clone(p.inputs) }

// Outputs returns the output ports in creation order
func (p *Process) Outputs() []*Port { return slices.Clone(p.outputs) }

// String renders the process as name[hexid]
func (p *Process) String() string { return fmt.Sprintf("%s[%x]", p.name, p.id) }

func (p *Process) portList(dir Direction) *[]*Port {
	if dir == Out {
		return &p.outputs
	}
	return &p.inputs
}

// CreatePort adds a port. Names are unique per direction.
func (p *Process) CreatePort(spec PortSpec) (*Port, error) {
	if p.deleted {
		return nil, errors.WrapFatal(errors.Detail(errors.ErrAlreadyDeleted, "process %s", p), "Process", "CreatePort", "state check")
	}
	if spec.Name == "" {
		return nil, errors.WrapInvalid(errors.Detail(errors.ErrInvalidParameters, "empty port name on %s", p),
			"Process", "CreatePort", "name check")
	}
	if existing := p.findPort(spec.Name, spec.Direction); existing != nil {
		return nil, errors.WrapInvalid(errors.Detail(errors.ErrDuplicateName, "port %q (%s) on %s", spec.Name, spec.Direction, p),
			"Process", "CreatePort", "name check")
	}
	typ, err := p.sheet.types.Resolve(spec.Type)
	if err != nil {
		return nil, errors.Wrap(err, "Process", "CreatePort", fmt.Sprintf("type of port %q", spec.Name))
	}

	port := &Port{
		name:        spec.Name,
		description: spec.Description,
		direction:   spec.Direction,
		discipline:  spec.Discipline,
		typ:         typ,
		passThrough: spec.PassThrough && spec.Discipline == Valued && spec.Direction == Out,
		process:     p,
	}
	if spec.Discipline == Valued {
		port.value = spec.Default
		if port.value == nil {
			port.value = typ.Default()
		}
	}

	list := p.portList(spec.Direction)
	*list = append(*list, port)
	p.sheet.portCreated(port)

	if port.discipline == Streamed && port.direction == In && p.sheet.Running() {
		if err := port.Start(); err != nil {
			return nil, err
		}
	}
	return port, nil
}

func (p *Process) findPort(name string, dir Direction) *Port {
	for _, port := range *p.portList(dir) {
		if port.name == name {
			return port
		}
	}
	return nil
}

// Port finds a port by name, checking inputs before outputs
func (p *Process) Port(name string) (*Port, bool) {
	if port := p.findPort(name, In); port != nil {
		return port, true
	}
	port := p.findPort(name, Out)
	return port, port != nil
}

// InputPort finds an input port by name
func (p *Process) InputPort(name string) (*Port, bool) {
	port := p.findPort(name, In)
	return port, port != nil
}

// OutputPort finds an output port by name
func (p *Process) OutputPort(name string) (*Port, bool) {
	port := p.findPort(name, Out)
	return port, port != nil
}

// Send is a shortcut for sending on the named streamed output
func (p *Process) Send(port string, packet any) error {
	out, ok := p.OutputPort(port)
	if !ok {
		return errors.WrapInvalid(errors.Detail(errors.ErrUnknownPort, "output %q on %s", port, p), "Process", "Send", "port lookup")
	}
	return out.Send(packet)
}

// DeletePort disconnects and removes a port
func (p *Process) DeletePort(name string, dir Direction) error {
	port := p.findPort(name, dir)
	if port == nil {
		return errors.WrapInvalid(errors.Detail(errors.ErrUnknownPort, "%s port %q on %s", dir, name, p),
			"Process", "DeletePort", "port lookup")
	}
	return p.removePort(port)
}

func (p *Process) removePort(port *Port) error {
	port.Stop()
	if err := port.DisconnectAll(); err != nil {
		return err
	}
	list := p.portList(port.direction)
	*list = slices.DeleteFunc(*list, func(o *Port) bool { return o == port })
	port.deleted = true
	p.sheet.portDeleted(port)
	return nil
}

// HandlePacket hands a packet to the handler's OnPacket. Without OnPacket the
// packet is dropped. Errors and panics come back as *DispatchError.
func (p *Process) HandlePacket(port string, packet any) error {
	if p.deleted || p.handler.OnPacket == nil {
		return nil
	}

	start := time.Now()
	err := p.guard(port, func() error { return p.handler.OnPacket(p, port, packet) })
	p.sheet.metrics.RecordPacketDelivered(p.handlerName, time.Since(start))
	return err
}

// UpdateParameters re-validates and replaces the parameters, then tells the
// handler through OnChange.
func (p *Process) UpdateParameters(params map[string]any) error {
	if p.deleted {
		return errors.WrapFatal(errors.Detail(errors.ErrAlreadyDeleted, "process %s", p), "Process", "UpdateParameters", "state check")
	}
	resolved, err := p.handler.resolveParameters(params, p.sheet)
	if err != nil {
		return errors.WrapInvalid(err, "Process", "UpdateParameters", "parameter check")
	}
	p.params = resolved
	p.notifyChange(Change{Reason: ChangeParameters})
	return nil
}

// Delete removes every port, calls OnDestroy and removes the process from
// its sheet. Deleting twice is an invariant violation.
func (p *Process) Delete() error {
	if p.deleted {
		return errors.WrapFatal(errors.Detail(errors.ErrAlreadyDeleted, "process %s", p), "Process", "Delete", "state check")
	}
	if err := p.clearPorts(); err != nil {
		return err
	}
	if p.handler.OnDestroy != nil {
		if err := p.guard("", func() error { p.handler.OnDestroy(p); return nil }); err != nil {
			p.sheet.reportDispatchError(err)
		}
	}
	p.deleted = true
	p.sheet.processDeleted(p)
	p.attrs.Detach()
	return nil
}

func (p *Process) clearPorts() error {
	for _, port := range slices.Concat(p.inputs, p.outputs) {
		if err := p.removePort(port); err != nil {
			return err
		}
	}
	return nil
}

// ExportState returns the handler's serializable state, if it has any
func (p *Process) ExportState() map[string]any {
	if p.handler.ExportState == nil {
		return nil
	}
	var state map[string]any
	err := p.guard("", func() error {
		state = p.handler.ExportState(p)
		return nil
	})
	if err != nil {
		p.sheet.reportDispatchError(err)
		return nil
	}
	return state
}

func (p *Process) notifyChange(change Change) {
	if p.deleted || p.handler.OnChange == nil {
		return
	}
	port := ""
	if change.Port != nil {
		port = change.Port.name
	}
	if err := p.guard(port, func() error { p.handler.OnChange(p, change); return nil }); err != nil {
		p.sheet.reportDispatchError(err)
	}
}

func (p *Process) passThroughValue(port *Port) (v any, ok bool) {
	if p.handler.PassThroughValue == nil {
		return nil, false
	}
	err := p.guard(port.name, func() error {
		v, ok = p.handler.PassThroughValue(p, port.name)
		return nil
	})
	if err != nil {
		p.sheet.reportDispatchError(err)
		return nil, false
	}
	return v, ok
}

// guard runs a handler callback, turning a returned error or a panic into a
// *DispatchError and recording it on the process.
func (p *Process) guard(port string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DispatchError{
				ProcessID: p.id,
				Process:   p.name,
				Handler:   p.handlerName,
				Port:      port,
				Err:       fmt.Errorf("panic: %v", r),
				Panicked:  true,
				Stack:     string(debug.Stack()),
			}
		}
		if err != nil {
			p.faults++
			p.lastFault = err
		}
	}()

	if cbErr := fn(); cbErr != nil {
		return &DispatchError{
			ProcessID: p.id,
			Process:   p.name,
			Handler:   p.handlerName,
			Port:      port,
			Err:       cbErr,
		}
	}
	return nil
}

// DispatchError reports a handler callback that failed or panicked
type DispatchError struct {
	ProcessID uint64
	Process   string
	Handler   string
	Port      string
	Err       error
	Panicked  bool
	Stack     string
}

func (e *DispatchError) Error() string {
	where := fmt.Sprintf("%s[%x]", e.Process, e.ProcessID)
	if e.Port != "" {
		where += "#" + e.Port
	}
	return fmt.Sprintf("handler %s at %s: %v", e.Handler, where, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

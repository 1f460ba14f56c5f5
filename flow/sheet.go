package flow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/metric"
	"github.com/c360/semflow/pkg/attr"
	"github.com/c360/semflow/pkg/worker"
	"github.com/c360/semflow/types"
)

// Sheet owns a graph of processes and connections. Graph edits are not
// goroutine-safe: make them before Start, or inside Do while running.
type Sheet struct {
	types    *types.Registry
	handlers HandlerSource

	processes map[uint64]*Process
	order     []*Process
	ids       IDSource

	pending   eventBatch
	obsMu     sync.Mutex
	observers []Observer

	logger          *slog.Logger
	metricsRegistry *metric.MetricsRegistry
	metrics         *metric.Metrics
	onDispatchError func(*DispatchError)

	queueSize  int
	runMu      sync.Mutex
	running    bool
	runCtx     context.Context
	runCancel  context.CancelFunc
	exec       *worker.Pool[*task]
	consumers  sync.WaitGroup
	executorMu sync.Mutex
}

// Option configures a Sheet
type Option func(*Sheet)

// WithLogger sets the sheet logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sheet) { s.logger = logger }
}

// WithMetrics records runtime metrics into registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Sheet) {
		s.metricsRegistry = registry
		s.metrics = registry.CoreMetrics()
	}
}

// WithIDSource replaces the process id source
func WithIDSource(src IDSource) Option {
	return func(s *Sheet) { s.ids = src }
}

// WithSeed seeds the default id source
func WithSeed(seed uint64) Option {
	return func(s *Sheet) { s.ids = NewRandomIDSource(seed, 0) }
}

// WithObserver registers an observer at construction
func WithObserver(obs Observer) Option {
	return func(s *Sheet) { s.observers = append(s.observers, obs) }
}

// WithDispatchErrorHandler is called for every failed handler callback, after
// the failure has been logged and counted
func WithDispatchErrorHandler(fn func(*DispatchError)) Option {
	return func(s *Sheet) { s.onDispatchError = fn }
}

// WithQueueSize sets the executor queue capacity
func WithQueueSize(n int) Option {
	return func(s *Sheet) { s.queueSize = n }
}

// NewSheet creates an empty sheet resolving types in registry and handlers
// through handlers
func NewSheet(registry *types.Registry, handlers HandlerSource, opts ...Option) *Sheet {
	s := &Sheet{
		types:     registry,
		handlers:  handlers,
		processes: make(map[uint64]*Process),
		logger:    slog.Default(),
		queueSize: 1024,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ids == nil {
		s.ids = NewRandomIDSource(1, 0)
	}
	if s.handlers == nil {
		s.handlers = HandlerSet{}
	}
	s.logger = s.logger.With("component", "sheet")
	return s
}

// Types returns the sheet's type registry
func (s *Sheet) Types() *types.Registry { return s.types }

// Logger returns the sheet logger
func (s *Sheet) Logger() *slog.Logger { return s.logger }

// Handlers returns the sheet's handler source
func (s *Sheet) Handlers() HandlerSource { return s.handlers }

// Process returns the process with id
func (s *Sheet) Process(id uint64) (*Process, bool) {
	p, ok := s.processes[id]
	return p, ok
}

// ProcessByName returns the first process named name
func (s *Sheet) ProcessByName(name string) (*Process, bool) {
	for _, p := range s.order {
		if p.name == name {
			return p, true
		}
	}
	return nil, false
}

// Processes returns the processes in creation order
func (s *Sheet) Processes() []*Process { return slices.Clone(s.order) }

// Connections returns every connection, grouped by start process in creation
// order, then by output port, then by connection order
func (s *Sheet) Connections() []*Connection {
	var out []*Connection
	for _, p := range s.order {
		for _, port := range p.outputs {
			out = append(out, port.connections...)
		}
	}
	return out
}

// ProcessSpec describes a process to create
type ProcessSpec struct {
	// ID is the preferred id; it is honoured when unused
	ID         *uint64
	Name       string
	Handler    string
	Parameters map[string]any
	Attributes map[string]any
	State      map[string]any
}

// CreateProcess instantiates a process from a loaded handler. The handler's
// OnCreate builds the ports. Any failure leaves the sheet unchanged.
func (s *Sheet) CreateProcess(spec ProcessSpec) (*Process, error) {
	h, ok := s.handlers.Handler(spec.Handler)
	if !ok {
		return nil, errors.WrapInvalid(errors.Detail(errors.ErrHandlerNotLoaded, "handler %q", spec.Handler),
			"Sheet", "CreateProcess", "handler lookup")
	}
	params, err := h.resolveParameters(spec.Parameters, s)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Sheet", "CreateProcess", "parameter check")
	}
	for key := range spec.Attributes {
		if slices.Contains(processReserved, key) {
			return nil, errors.WrapInvalid(errors.Detail(errors.ErrReservedAttribute, "key %q", key),
				"Sheet", "CreateProcess", "attribute check")
		}
	}
	id, err := s.GenerateProcessID(spec.ID)
	if err != nil {
		return nil, err
	}

	name := spec.Name
	if name == "" {
		name = spec.Handler[strings.LastIndexAny(spec.Handler, "./")+1:]
	}
	p := &Process{
		id:          id,
		name:        name,
		handlerName: spec.Handler,
		handler:     h,
		params:      params,
		attrs:       attr.New(processReserved...),
		sheet:       s,
	}
	p.logger = s.logger.With("process", name, "process_id", fmt.Sprintf("%x", id), "handler", spec.Handler)

	s.processes[id] = p
	s.order = append(s.order, p)
	s.pending.processCreated = append(s.pending.processCreated, p)
	s.metrics.RecordProcess(1)

	if err := s.initProcess(p, spec); err != nil {
		s.discard(p)
		return nil, errors.WrapInvalid(err, "Sheet", "CreateProcess", fmt.Sprintf("create %s", p))
	}

	p.attrs.SetObserver(attr.ObserverFuncs{
		OnChange: func(key string, _, _ any) {
			p.notifyChange(Change{Reason: ChangeAttribute, Key: key})
		},
	})
	return p, nil
}

func (s *Sheet) initProcess(p *Process, spec ProcessSpec) error {
	if p.handler.OnCreate != nil {
		if err := p.guard("", func() error { return p.handler.OnCreate(p, p.params) }); err != nil {
			return err
		}
	}
	if err := p.attrs.Merge(spec.Attributes); err != nil {
		return err
	}
	if len(spec.State) > 0 && p.handler.ImportState != nil {
		if err := p.guard("", func() error { return p.handler.ImportState(p, spec.State) }); err != nil {
			return err
		}
	}
	return nil
}

// discard rolls back a process whose construction failed. OnDestroy is not
// called because OnCreate never completed.
func (s *Sheet) discard(p *Process) {
	if err := p.clearPorts(); err != nil {
		s.logger.Error("Rollback of failed process left ports behind", "process", p.String(), "error", err)
	}
	p.deleted = true
	s.processDeleted(p)
}

// Connect connects an output port to an input port
func (s *Sheet) Connect(from, to *Port) (*Connection, error) {
	return s.connect(from, to)
}

func (s *Sheet) connect(start, end *Port) (*Connection, error) {
	const component, op = "Sheet", "Connect"

	switch {
	case start == nil || end == nil:
		return nil, errors.WrapInvalid(errors.Detail(errors.ErrUnknownPort, "nil port"), component, op, "argument check")
	case start.deleted || end.deleted:
		return nil, errors.WrapFatal(errors.Detail(errors.ErrAlreadyDeleted, "port %s or %s", start, end), component, op, "state check")
	case start.process.sheet != s || end.process.sheet != s:
		return nil, errors.WrapInvalid(errors.Detail(errors.ErrIncompatibleType, "ports belong to another sheet"), component, op, "sheet check")
	case start.direction != Out || end.direction != In:
		return nil, errors.WrapInvalid(
			errors.Detail(errors.ErrIncompatibleType, "%s is %s and %s is %s", start, start.direction, end, end.direction),
			component, op, "direction check")
	case start.discipline != end.discipline:
		return nil, errors.WrapInvalid(
			errors.Detail(errors.ErrIncompatibleType, "%s is %s but %s is %s", start, start.discipline, end, end.discipline),
			component, op, "discipline check")
	case !s.types.IsAssignable(start.typ, end.typ.Name()):
		return nil, errors.WrapInvalid(
			errors.Detail(errors.ErrIncompatibleType, "%s (%s) cannot feed %s (%s)", start, start.typ.Name(), end, end.typ.Name()),
			component, op, "type check")
	}

	for _, c := range start.connections {
		if c.end == end {
			return nil, errors.WrapInvalid(errors.Detail(errors.ErrDuplicateConnection, "%s", c), component, op, "duplicate check")
		}
	}
	if end.discipline == Valued && len(end.connections) > 0 {
		return nil, errors.WrapInvalid(
			errors.Detail(errors.ErrConnectionFull, "%s already fed by %s", end, end.connections[0].start),
			component, op, "fan-in check")
	}

	c := &Connection{
		start:      start,
		end:        end,
		discipline: start.discipline,
		attrs:      attr.New("from", "to"),
	}
	c.link()
	if c.discipline == Valued && start.passThrough && createsPassThroughCycle(start) {
		c.unlink()
		return nil, errors.WrapInvalid(errors.Detail(errors.ErrPassThroughCycle, "%s", c), component, op, "cycle check")
	}
	if c.discipline == Streamed {
		c.queue = newPacketQueue()
		if end.started {
			s.startConsumer(end.ctx, c)
		}
	}

	s.pending.connCreated = append(s.pending.connCreated, c)
	s.metrics.RecordConnection(c.discipline.String(), 1)
	start.process.notifyChange(Change{Reason: ChangeConnected, Port: start})
	end.process.notifyChange(Change{Reason: ChangeConnected, Port: end})
	if c.discipline == Valued {
		s.inputChanged(end)
	}
	return c, nil
}

// Clear deletes every process
func (s *Sheet) Clear() error {
	for _, p := range slices.Backward(slices.Clone(s.order)) {
		if err := p.Delete(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sheet) portCreated(port *Port) {
	s.pending.portCreated = append(s.pending.portCreated, port)
}

func (s *Sheet) portDeleted(port *Port) {
	s.pending.addPortDeleted(port)
}

func (s *Sheet) connectionDeleted(c *Connection) {
	s.pending.addConnDeleted(c)
	s.metrics.RecordConnection(c.discipline.String(), -1)
}

func (s *Sheet) processDeleted(p *Process) {
	delete(s.processes, p.id)
	s.order = slices.DeleteFunc(s.order, func(o *Process) bool { return o == p })
	s.pending.addProcessDeleted(p)
	s.metrics.RecordProcess(-1)
}

// valueChanged reacts to SetValue on a valued port
func (s *Sheet) valueChanged(port *Port) {
	s.pending.addPortChanged(port)
	port.process.notifyChange(Change{Reason: ChangeValue, Port: port})
	switch {
	case port.direction == Out:
		s.propagateFrom(port, map[*Port]bool{port: true})
	case len(port.connections) == 0:
		s.propagateThrough(port.process, map[*Port]bool{port: true})
	}
}

// inputChanged reacts to a change of the value seen by a valued input
func (s *Sheet) inputChanged(in *Port) {
	s.notifyInput(in, map[*Port]bool{})
}

func (s *Sheet) notifyInput(in *Port, visited map[*Port]bool) {
	if visited[in] {
		return
	}
	visited[in] = true
	s.pending.addPortChanged(in)
	in.process.notifyChange(Change{Reason: ChangeInput, Port: in})
	s.propagateThrough(in.process, visited)
}

// propagateThrough marks the pass-through outputs of p as changed and
// continues downstream from each
func (s *Sheet) propagateThrough(p *Process, visited map[*Port]bool) {
	for _, out := range p.outputs {
		if out.discipline != Valued || !out.passThrough || visited[out] {
			continue
		}
		visited[out] = true
		s.pending.addPortChanged(out)
		s.propagateFrom(out, visited)
	}
}

func (s *Sheet) propagateFrom(out *Port, visited map[*Port]bool) {
	for _, c := range out.connections {
		if c.discipline == Valued {
			s.notifyInput(c.end, visited)
		}
	}
}

func (s *Sheet) reportDispatchError(err error) {
	var de *DispatchError
	if !errors.As(err, &de) {
		s.logger.Error("Handler callback failed", "error", err)
		return
	}
	kind := "error"
	if de.Panicked {
		kind = "panic"
	}
	s.logger.Error("Handler callback failed",
		"process", de.Process,
		"process_id", fmt.Sprintf("%x", de.ProcessID),
		"handler", de.Handler,
		"port", de.Port,
		"kind", kind,
		"error", de.Err)
	s.metrics.RecordDispatchError(de.Handler, kind)
	if s.onDispatchError != nil {
		s.onDispatchError(de)
	}
}

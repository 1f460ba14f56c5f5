package flow

import (
	"slices"
)

// Observer receives batched graph notifications from Sheet.Flush. Within a
// batch, deletions come before creations and processes before ports before
// connections; port value changes come last.
type Observer interface {
	OnProcessCreated(p *Process)
	OnProcessDeleted(p *Process)
	OnPortCreated(port *Port)
	OnPortChanged(port *Port)
	OnPortDeleted(port *Port)
	OnConnectionCreated(c *Connection)
	OnConnectionDeleted(c *Connection)
}

// BatchObserver is an Observer that is also told where each flushed batch
// ends
type BatchObserver interface {
	Observer
	OnFlushDone()
}

// NopObserver implements Observer with no-ops, for embedding
type NopObserver struct{}

func (NopObserver) OnProcessCreated(*Process)       {}
func (NopObserver) OnProcessDeleted(*Process)       {}
func (NopObserver) OnPortCreated(*Port)             {}
func (NopObserver) OnPortChanged(*Port)             {}
func (NopObserver) OnPortDeleted(*Port)             {}
func (NopObserver) OnConnectionCreated(*Connection) {}
func (NopObserver) OnConnectionDeleted(*Connection) {}

// eventBatch accumulates notifications between flushes. An entity created
// and deleted within one batch appears in neither list, so observers are
// never asked to tear down something they were not told about.
type eventBatch struct {
	processCreated []*Process
	processDeleted []*Process
	portCreated    []*Port
	portDeleted    []*Port
	portChanged    []*Port
	connCreated    []*Connection
	connDeleted    []*Connection
}

func (b *eventBatch) empty() bool {
	return len(b.processCreated)+len(b.processDeleted)+len(b.portCreated)+len(b.portDeleted)+
		len(b.portChanged)+len(b.connCreated)+len(b.connDeleted) == 0
}

// cancelCreation removes x from created and reports whether it was there
func cancelCreation[T comparable](created *[]T, x T) bool {
	i := slices.Index(*created, x)
	if i < 0 {
		return false
	}
	*created = slices.Delete(*created, i, i+1)
	return true
}

func (b *eventBatch) addProcessDeleted(p *Process) {
	if !cancelCreation(&b.processCreated, p) {
		b.processDeleted = append(b.processDeleted, p)
	}
}

func (b *eventBatch) addPortDeleted(port *Port) {
	b.portChanged = slices.DeleteFunc(b.portChanged, func(o *Port) bool { return o == port })
	if !cancelCreation(&b.portCreated, port) {
		b.portDeleted = append(b.portDeleted, port)
	}
}

func (b *eventBatch) addPortChanged(port *Port) {
	if slices.Contains(b.portChanged, port) || slices.Contains(b.portCreated, port) {
		return
	}
	b.portChanged = append(b.portChanged, port)
}

func (b *eventBatch) addConnDeleted(c *Connection) {
	if !cancelCreation(&b.connCreated, c) {
		b.connDeleted = append(b.connDeleted, c)
	}
}

func (b *eventBatch) counts() map[string]int {
	return map[string]int{
		"process_created":    len(b.processCreated),
		"process_deleted":    len(b.processDeleted),
		"port_created":       len(b.portCreated),
		"port_deleted":       len(b.portDeleted),
		"port_changed":       len(b.portChanged),
		"connection_created": len(b.connCreated),
		"connection_deleted": len(b.connDeleted),
	}
}

// AddObserver registers an observer for subsequent flushes
func (s *Sheet) AddObserver(obs Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, obs)
}

// RemoveObserver unregisters an observer
func (s *Sheet) RemoveObserver(obs Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = slices.DeleteFunc(s.observers, func(o Observer) bool { return o == obs })
}

// Flush delivers the pending batch to every observer and reports whether
// there was anything to deliver. While the sheet runs, Flush happens after
// every executor task; a stopped sheet is flushed by its caller.
func (s *Sheet) Flush() bool {
	if s.pending.empty() {
		return false
	}
	batch := s.pending
	s.pending = eventBatch{}

	s.obsMu.Lock()
	observers := slices.Clone(s.observers)
	s.obsMu.Unlock()

	for _, obs := range observers {
		for _, p := range batch.processDeleted {
			obs.OnProcessDeleted(p)
		}
		for _, port := range batch.portDeleted {
			obs.OnPortDeleted(port)
		}
		for _, c := range batch.connDeleted {
			obs.OnConnectionDeleted(c)
		}
		for _, p := range batch.processCreated {
			obs.OnProcessCreated(p)
		}
		for _, port := range batch.portCreated {
			obs.OnPortCreated(port)
		}
		for _, c := range batch.connCreated {
			obs.OnConnectionCreated(c)
		}
		for _, port := range batch.portChanged {
			obs.OnPortChanged(port)
		}
		if bo, ok := obs.(BatchObserver); ok {
			bo.OnFlushDone()
		}
	}
	s.metrics.RecordEventBatch(batch.counts())
	return true
}

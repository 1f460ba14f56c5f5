package flow

import (
	"context"
	"fmt"
	"slices"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/pkg/attr"
)

// Connection links an output port to an input port of the same discipline.
// Streamed connections own an unbounded FIFO; valued connections own no
// buffer and forward reads to their start port.
type Connection struct {
	start      *Port
	end        *Port
	discipline Discipline
	queue      *packetQueue
	attrs      *attr.Object
	deleted    bool
}

// Start returns the output side
func (c *Connection) Start() *Port { return c.start }

// End returns the input side
func (c *Connection) End() *Port { return c.end }

// Discipline returns the connection discipline
func (c *Connection) Discipline() Discipline { return c.discipline }

// Attributes returns the free attributes of the connection
func (c *Connection) Attributes() *attr.Object { return c.attrs }

// IsDeleted reports whether the connection was deleted
func (c *Connection) IsDeleted() bool { return c.deleted }

// String renders the connection as start -> end
func (c *Connection) String() string { return fmt.Sprintf("%s -> %s", c.start, c.end) }

func (c *Connection) wrongKind(op string) error {
	return errors.WrapInvalid(errors.Detail(errors.ErrWrongConnectionKind, "%s on %s connection %s", op, c.discipline, c),
		"Connection", op, "discipline check")
}

// Write enqueues a packet without blocking
func (c *Connection) Write(packet any) error {
	if c.discipline != Streamed {
		return c.wrongKind("Write")
	}
	if c.deleted {
		return errors.WrapFatal(errors.Detail(errors.ErrAlreadyDeleted, "connection %s", c), "Connection", "Write", "state check")
	}
	c.queue.push(packet)
	return nil
}

// Read blocks until a packet is available. ok is false, with a nil error,
// when ctx ends or the connection is deleted before a packet arrives.
func (c *Connection) Read(ctx context.Context) (packet any, ok bool, err error) {
	if c.discipline != Streamed {
		return nil, false, c.wrongKind("Read")
	}
	packet, ok = c.queue.pop(ctx)
	return packet, ok, nil
}

// Clear drops undelivered packets and returns how many were dropped
func (c *Connection) Clear() (int, error) {
	if c.discipline != Streamed {
		return 0, c.wrongKind("Clear")
	}
	return c.queue.clear(), nil
}

// Len returns the number of queued packets; zero for valued connections
func (c *Connection) Len() int {
	if c.queue == nil {
		return 0
	}
	return c.queue.size()
}

// Value returns the start port's value cast to the end port type
func (c *Connection) Value() (any, error) {
	if c.discipline != Valued {
		return nil, c.wrongKind("Value")
	}
	return c.value(), nil
}

func (c *Connection) value() any {
	s := c.end.sheet()
	v, err := s.types.Cast(c.start.Value(), c.start.typ, c.end.typ.Name())
	if err != nil {
		s.logger.Warn("Valued connection cast failed, using input default",
			"connection", c.String(), "error", err)
		return c.end.value
	}
	return v
}

// Delete removes the connection. Streamed connections drop their packets and
// release pending reads. Start port, end port and then the sheet are told.
func (c *Connection) Delete() error {
	if c.deleted {
		return errors.WrapFatal(errors.Detail(errors.ErrAlreadyDeleted, "connection %s", c), "Connection", "Delete", "state check")
	}
	c.deleted = true
	if c.queue != nil {
		c.queue.close()
	}
	c.unlink()

	s := c.end.sheet()
	c.start.process.notifyChange(Change{Reason: ChangeDisconnected, Port: c.start})
	c.end.process.notifyChange(Change{Reason: ChangeDisconnected, Port: c.end})
	s.connectionDeleted(c)
	if c.discipline == Valued && !c.end.deleted {
		s.inputChanged(c.end)
	}
	c.attrs.Detach()
	return nil
}

func (c *Connection) link() {
	c.start.connections = append(c.start.connections, c)
	c.end.connections = append(c.end.connections, c)
}

func (c *Connection) unlink() {
	c.start.connections = slices.DeleteFunc(c.start.connections, func(o *Connection) bool { return o == c })
	c.end.connections = slices.DeleteFunc(c.end.connections, func(o *Connection) bool { return o == c })
}

// createsPassThroughCycle reports whether start, a pass-through output, can
// reach itself by walking downstream: output to connected valued inputs, input
// to the pass-through outputs of the same process. Such a loop would make
// Value recurse forever. Streamed connections never take part.
func createsPassThroughCycle(start *Port) bool {
	visited := map[*Port]bool{start: true}
	stack := []*Port{start}
	for len(stack) > 0 {
		out := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range out.connections {
			if c.discipline != Valued {
				continue
			}
			for _, next := range c.end.process.outputs {
				if next.discipline != Valued || !next.passThrough {
					continue
				}
				if next == start {
					return true
				}
				if !visited[next] {
					visited[next] = true
					stack = append(stack, next)
				}
			}
		}
	}
	return false
}

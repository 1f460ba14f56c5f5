// Package flow is the flow-based programming runtime: a Sheet holding a
// live graph of processes whose ports are joined by connections.
//
// Ports come in two disciplines. Streamed ports carry packets through
// unbounded FIFO connections; Valued ports expose a current value that
// readers pull through the connection, and a pass-through valued output
// computes that value on demand from its handler. Types from a
// types.Registry decide which ports may be connected.
//
// Behaviour comes from a Handler, a struct of optional callbacks looked up
// by module name through a HandlerSource (usually a loader.Loader). The
// handler's OnCreate builds a process's ports:
//
//	h := &flow.Handler{
//	    Name: "demo.print",
//	    OnCreate: func(p *flow.Process, _ flow.Parameters) error {
//	        _, err := p.CreatePort(flow.PortSpec{Name: "in", Direction: flow.In, Type: types.Any})
//	        return err
//	    },
//	    OnPacket: func(p *flow.Process, port string, packet any) error {
//	        p.Logger().Info("packet", "port", port, "value", packet)
//	        return nil
//	    },
//	}
//
// # Execution
//
// Every handler callback of a sheet runs on a single executor goroutine.
// Start launches it together with one consumer goroutine per streamed
// connection; consumers wait for a packet, hand it to the executor and wait
// for its delivery, so each connection is delivered in FIFO order. Graph
// edits are not goroutine-safe: make them before Start, from handler
// callbacks, or inside Do. RunUntilIdle delivers queued packets
// synchronously on a stopped sheet, which keeps tests deterministic.
//
// A callback that returns an error or panics is reported as a
// *DispatchError to the sheet's logger, metrics and dispatch error handler;
// the process keeps running.
//
// # Events
//
// Structural changes and value changes are batched and handed to every
// Observer on Flush, which the executor calls after each task. Deletions are
// reported before creations, and an entity created and deleted in the same
// batch is not reported at all.
//
// # Documents
//
// ExportGraph and ImportGraph convert a sheet to and from a Document, the
// JSON form in which connections reference ports as name[hexid]#port.
package flow

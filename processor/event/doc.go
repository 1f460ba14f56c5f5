// Package event provides the handlers that work on streamed packets:
//
//   - event.fanout copies each packet from "in" to outputs out0..out{nb_out-1},
//     sending in output index order whatever order the outputs were connected in
//   - event.counter counts packets on a valued "count" output and forwards
//     the running count on "out"
//   - event.collect keeps received packets in its exported state
//   - event.emit injects packets from the host through Emit
//
// Register adds all of them to a loader catalog.
package event

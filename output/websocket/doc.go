// Package websocket streams sheet notifications to browser clients.
//
// Output is a flow.BatchObserver and an http.Handler. Attach it to a sheet
// and mount it on a path; every flush of the sheet becomes one "batch"
// frame sent to all connected clients:
//
//	out, err := websocket.New(websocket.DefaultConfig(), websocket.WithMetrics(registry))
//	out.Attach(sheet)
//	mux.Handle("/events", out)
//
// # Protocol
//
// Every frame is a MessageEnvelope with a type, an id, a unix-millisecond
// timestamp and a JSON payload. A client receives, in order:
//
//   - "hello" with its client id (a UUID) and the last batch sequence number
//   - "snapshot" with the exported graph document of the attached sheet
//   - "batch" frames with increasing sequence numbers
//
// The snapshot is taken on the sheet's executor between two flushes, so
// applying the batches that follow it reproduces the sheet. Within a batch,
// deletions come before creations and value changes come last. Port values
// are encoded at flush time.
//
// A client may send {"type": "snapshot"} to receive a fresh snapshot. Other
// messages are answered with an "error" frame.
//
// # Slow Clients
//
// Each client has a bounded outbox (pkg/buffer). Broadcasting never blocks
// the sheet: a client that falls behind loses its oldest frames, counted in
// semflow_websocket_frames_dropped_total, and should request a snapshot
// when it sees a gap in batch sequence numbers.
package websocket

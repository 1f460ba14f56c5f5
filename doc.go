// Package semflow is a flow-based programming runtime: a live graph of typed
// processes whose ports are joined by connections.
//
// Packages:
//   - flow: sheets, processes, ports, connections, the executor, change
//     batching and the graph document
//   - types: the type hierarchy and cast rules that decide what may connect
//   - loader: resolves handler and types modules by name through library
//     manifests (built-in catalog, files or NATS KV)
//   - processor/...: the built-in handlers, registered by componentregistry
//   - flowgraph: connectivity report for a sheet
//   - flowstore: named graph documents in NATS KV
//   - output/websocket: streams sheet change batches to clients
//   - config, errors, metric, health, natsclient: runtime infrastructure
//   - pkg/attr, pkg/buffer, pkg/retry, pkg/worker: small reusable pieces
//
// The semflow binary in cmd/semflow wires these together; cmd/schema-exporter
// writes the parameter schemas of the built-in handlers.
package semflow

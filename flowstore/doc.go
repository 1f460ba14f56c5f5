// Package flowstore persists graph documents in a NATS KV bucket.
//
// A Flow wraps a flow.Document with an id, a name, an optimistic-concurrency
// version and the runtime state last recorded by the process that ran it.
// Flows are stored as JSON under their id in bucket "semflow_flows" unless
// another bucket is configured.
//
// # Optimistic Concurrency
//
//   - Create sets version 1 and fails with ErrExists for a taken id
//   - Update requires the caller's version to equal the stored one, bumps it
//     and writes with the KV revision, so concurrent writers conflict
//   - Conflicts are reported as ErrVersionConflict, classified invalid
//
// Example:
//
//	store, err := flowstore.NewStore(ctx, client, "")
//	f := flowstore.New("pipeline", sheet.ExportGraph())
//	err = store.Create(ctx, f) // f.Version == 1
//
//	f.Snapshot(sheet)
//	err = store.Update(ctx, f) // f.Version == 2
//
// SetRuntimeState records running/stopped transitions without a version
// check, retrying compare-and-set conflicts through the KV store.
//
// # Error Classification
//
//   - WrapInvalid: validation failures, missing flows, version conflicts
//   - WrapTransient: NATS KV errors
//   - WrapFatal: marshaling errors, nil client
package flowstore

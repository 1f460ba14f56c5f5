// Package errors implements the semflow error taxonomy.
//
// # Classification
//
// Every error is one of three classes:
//
//   - Transient: the operation may succeed if retried (a module fetch that timed
//     out, a NATS bucket that is briefly unavailable).
//   - Invalid: the request was rejected and the graph is unchanged (duplicate
//     names, incompatible port types, a full VALUED input, a pass-through cycle,
//     a malformed graph document).
//   - Fatal: an invariant broke (a process deleted twice, connections that
//     survived DisconnectAll). The object involved must not be used again.
//
// # Sentinels
//
// Callers match on the sentinel, never on text:
//
//	if _, err := out.Connect(in); errors.Is(err, semerr.ErrConnectionFull) {
//	    // the input already has a source
//	}
//
// Runtime code attaches detail with Detail and call-site context with the Wrap
// family, which follows the "component.method: action failed: %w" pattern:
//
//	err := errors.Detail(errors.ErrDuplicateName, "port %q (%s)", name, dir)
//	return errors.WrapInvalid(err, "Process", "CreatePort", "name check")
//
// # Retry
//
// Retry runs a function through pkg/retry and retries only transient failures.
// The loader uses it around resolver calls.
package errors

// Package loader resolves handler and types module names to modules.
//
// Names are dotted ("math.op2") or slashed ("math/op2"). Every segment but
// the last names a library; the loader walks the library manifests from the
// root, one segment at a time, and the last segment names a module entry
// whose src is handed to the resolver:
//
//	{
//	  "processes": {
//	    "libraries": [{"name": "math", "dir": "math"}],
//	    "modules":   [{"name": "log", "src": "debug.log"}]
//	  },
//	  "types": {"modules": [{"name": "geo", "src": "geo"}]}
//	}
//
// Three resolvers are provided. Catalog holds compiled modules and
// synthesizes manifests from their names. FSResolver reads library.json or
// library.yaml files from an fs.FS. KVResolver reads manifests from a NATS
// KV bucket; Publish fills one from any other resolver. FSResolver and
// KVResolver map module sources through a Catalog.
//
// Manifests and modules are memoized, and concurrent requests for the same
// name share a single fetch. A handler's Requires list loads the named types
// modules before the handler is returned. AwaitIdle blocks until no fetch is
// in flight, which is how document import waits for asynchronously
// requested handlers.
package loader

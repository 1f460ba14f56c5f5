// Package natsclient wraps a NATS connection with a circuit breaker and
// provides a KV store with compare-and-set helpers.
//
// The flow store keeps graph documents in a KV bucket and the module loader
// can read library manifests from one; both go through KVStore so that key
// lookups fail with errors.ErrKeyNotFound and revision conflicts with
// ErrKVRevisionMismatch.
//
// # Circuit breaker
//
// Connection failures are counted. After the threshold (default 5) the
// status becomes StatusCircuitOpen and Connect fails fast with
// errors.ErrCircuitOpen until the current backoff has elapsed. Each time the
// circuit opens the backoff doubles, up to the configured maximum.
//
// # Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithLogger(logger),
//	    natsclient.WithMetrics(registry))
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "flows"})
//	if err != nil {
//	    return err
//	}
//	kv := client.NewKVStore(bucket)
//	rev, err := kv.Create(ctx, "flow.main", data)
//
// # Testing
//
// NewTestClient starts a NATS server with testcontainers. Tests that use it
// carry the integration build tag.
package natsclient

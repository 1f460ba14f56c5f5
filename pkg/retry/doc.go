// Package retry provides exponential backoff with optional jitter.
//
// The loader wraps resolver calls in it and the NATS KV helpers use it for
// compare-and-swap loops:
//
//	manifest, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*Manifest, error) {
//	    return resolver.ResolveManifest(ctx, dir)
//	})
//
// Wrap a failure with NonRetryable to stop early. Classification-aware retry
// (only transient errors) lives in the errors package as errors.Retry.
package retry

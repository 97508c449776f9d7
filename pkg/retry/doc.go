// Package retry retries transient failures with exponential backoff.
//
// Whether an error is worth another attempt is decided by its class in the
// errors package: only transient errors are retried. Invalid and fatal
// errors are returned at once, unchanged.
//
//	err := retry.Do(ctx, retry.Startup(), func() error {
//		return client.Connect(ctx)
//	})
//
// The operation core never retries; retry is for process setup such as the
// first connection to NATS.
package retry

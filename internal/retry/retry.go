package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Do runs op with exponential backoff until it succeeds, attempts retries
// are exhausted, or the context is cancelled.
func Do(ctx context.Context, attempts uint64, initial time.Duration, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	if initial > 0 {
		policy.InitialInterval = initial
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, attempts), ctx))
}

// Permanent marks err as not worth retrying, stopping the loop early.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

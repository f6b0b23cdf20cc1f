package resilience

import (
	"context"
	"time"

	"github.com/harunnryd/kisah/pkg/errorsx"
)

// RetryPolicy retries transient failures with exponential backoff.
// Only errors classified as retryable by their reason code consume the
// budget; terminal errors are returned immediately.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	Multiplier  float64
}

func NewRetryPolicy(maxAttempts int, backoff time.Duration) RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxAttempts: maxAttempts, Backoff: backoff, Multiplier: 2}
}

// WithAttempts returns a copy of the policy with a different attempt budget.
// Used for the first chunk, which gates time-to-first-audio.
func (r RetryPolicy) WithAttempts(maxAttempts int) RetryPolicy {
	if maxAttempts > 0 {
		r.MaxAttempts = maxAttempts
	}
	return r
}

func (r RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	delay := r.Backoff
	mult := r.Multiplier
	if mult < 1 {
		mult = 2
	}
	var err error
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !errorsx.Retryable(errorsx.Reason(err)) {
			return err
		}
		if attempt == r.MaxAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return errorsx.Wrap(ctx.Err(), errorsx.ReasonCancelled)
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * mult)
	}
	return err
}

package engine

import (
	"context"
	"errors"
	"time"

	"github.com/synoet/spellbook/index"
)

// RetryPolicy bounds retries of vector store calls.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first. Values below 1 mean 1.
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy retries three times with exponential backoff from 200ms.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:  3,
	BaseDelay: 200 * time.Millisecond,
	MaxDelay:  5 * time.Second,
}

// Do calls fn until it succeeds, the attempts run out, the error is marked
// index.ErrPermanent or ctx is done. It returns the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			// Calculate backoff delay with exponential increase
			delay := p.BaseDelay * time.Duration(1<<uint(attempt-1))
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(lastErr, ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, index.ErrPermanent) || ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

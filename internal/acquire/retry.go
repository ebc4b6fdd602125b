package acquire

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds how often a strategy is attempted.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second}
}

// Do calls fn until it succeeds, the attempts run out, fn reports
// ErrNotApplicable, or ctx is done. It returns the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := max(1, p.MaxAttempts)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn(attempt)
		if err == nil || errors.Is(err, ErrNotApplicable) {
			return err
		}
		if attempt == attempts || p.Delay <= 0 {
			continue
		}

		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

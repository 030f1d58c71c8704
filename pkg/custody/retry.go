package custody

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Retry runs fn until it succeeds, fails with anything other than a
// RetryableConflictError, or attempts run out. Attempts after the first are
// paced at most one per interval.
func Retry(ctx context.Context, attempts int, interval time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	lim := rate.NewLimiter(rate.Every(interval), 1)
	var err error
	for i := 0; i < attempts; i++ {
		if err = lim.Wait(ctx); err != nil {
			return err
		}
		err = fn(ctx)
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return err
}

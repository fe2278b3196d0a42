package source

import (
	"context"
	"errors"
	"time"

	"ecommerce-analytics-pipeline/internal/model"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryable reports whether another attempt could succeed. Malformed
// payloads and cancellation are final.
func retryable(ctx context.Context, err error) bool {
	return ctx.Err() == nil && !errors.Is(err, ErrParse)
}

// retry runs op up to cfg.MaxRetries+1 times, waiting cfg.Backoff(attempt)
// after each failed attempt but the last. onRetry is invoked before every
// wait. The last error is returned unchanged.
func retry(ctx context.Context, cfg model.RetryConfig, sleep Sleeper, onRetry func(attempt int, wait time.Duration, err error), op func(attempt int) error) error {
	if sleep == nil {
		sleep = sleepContext
	}
	var err error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err = op(attempt); err == nil {
			return nil
		}
		if attempt == cfg.MaxRetries || !retryable(ctx, err) {
			break
		}
		wait := cfg.Backoff(attempt)
		if onRetry != nil {
			onRetry(attempt, wait, err)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return err
		}
	}
	return err
}

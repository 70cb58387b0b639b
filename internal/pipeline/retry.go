package pipeline

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"

	"github.com/dgallion1/sitegest/internal/index"
)

// MaxRetries is the default number of retries for a transient index error.
const MaxRetries = 3

// IsRetryable reports whether err is a transient index failure: a
// rate-limit or server error response, or a network timeout.
func IsRetryable(err error) bool {
	var retryErr *index.RetryableError
	if errors.As(err, &retryErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

// retry calls fn until it succeeds, fails permanently, or has been retried
// maxRetries times. onRetry is called before each wait.
func retry(ctx context.Context, maxRetries int, backoff func(int) time.Duration,
	onRetry func(attempt int, wait time.Duration, err error), fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt >= maxRetries {
			return err
		}
		wait := backoff(attempt)
		if onRetry != nil {
			onRetry(attempt, wait, err)
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(wait):
		}
	}
}

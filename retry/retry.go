package retry

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultMaxRetries = 3
	defaultBaseWait   = time.Second
	defaultMaxWait    = 30 * time.Second
)

type config struct {
	maxRetries int
	baseWait   time.Duration
	maxWait    time.Duration
}

// Option configures a retry loop
type Option func(*config)

// WithMaxRetries sets the number of retries after the initial attempt.
// Zero means the function runs exactly once.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// WithBaseWait sets the initial wait between attempts.
func WithBaseWait(d time.Duration) Option {
	return func(c *config) {
		c.baseWait = d
	}
}

// WithMaxWait caps the wait between attempts.
func WithMaxWait(d time.Duration) Option {
	return func(c *config) {
		c.maxWait = d
	}
}

// Do runs fn, retrying recoverable failures with exponential backoff and
// full jitter. Non-recoverable errors and context cancellation stop the loop
// immediately. The last error from fn is returned when all attempts fail.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	cfg := config{
		maxRetries: defaultMaxRetries,
		baseWait:   defaultBaseWait,
		maxWait:    defaultMaxWait,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		if attempt > 0 {
			wait := cfg.baseWait << (attempt - 1)
			if wait > cfg.maxWait {
				wait = cfg.maxWait
			}
			// Full jitter: sleep a uniform random duration in [0, wait]
			wait = time.Duration(rand.Int63n(int64(wait) + 1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRecoverable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

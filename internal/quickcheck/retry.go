// internal/quickcheck/retry.go
package quickcheck

import (
	"context"
	"errors"
	"time"

	"quickcheck-service/internal/protocol"
)

// RetryPolicy governs how a single request/reply exchange reacts to a
// timed-out reply: resend up to MaxRetries additional times, optionally
// pausing Delay between attempts. It applies per exchange, not per harvest,
// so one unreachable index degrades a harvest instead of aborting it.
type RetryPolicy struct {
	MaxRetries int           `json:"max_retries"`
	Delay      time.Duration `json:"delay"`
}

// DefaultRetryPolicy matches the device's observed behavior: 4 attempts in
// total, no pause between them.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3}

// Do runs fn until it succeeds, fails with a non-timeout error, or the
// attempt budget is spent. On exhaustion the last timeout error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 && p.Delay > 0 {
			select {
			case <-time.After(p.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = fn()
		if err == nil || !errors.Is(err, protocol.ErrTimeout) {
			return err
		}
	}
	return err
}

package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
)

// WithTimeout runs fn under a deadline of timeout and stops waiting when it
// passes. The expiry error wraps both apperrors.ErrTimeout and
// context.DeadlineExceeded; a cancelled parent returns its own error. A
// non-positive timeout runs fn directly.
//
// fn keeps running after an expiry until it notices its context.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if err := ctx.Err(); err != context.DeadlineExceeded {
			return fmt.Errorf("%s: %w", name, err)
		}
		return fmt.Errorf("%w: %s exceeded %v: %w", apperrors.ErrTimeout, name, timeout, context.DeadlineExceeded)
	}
}

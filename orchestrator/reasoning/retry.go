// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package reasoning

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts after the first call.
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between retries.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier for exponential backoff. 1 gives a fixed interval.
	BackoffFactor float64

	// Jitter adds randomness to the wait (0.0-1.0).
	Jitter float64

	// RetryIf determines if an error should be retried. Nil retries every error.
	RetryIf func(err error) bool
}

// DefaultRetryConfig returns the retry policy used for provider calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.1,
		RetryIf:        IsRetryable,
	}
}

// Retryable is implemented by provider errors that know whether a retry can help.
type Retryable interface {
	IsRetryable() bool
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r Retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrNoResponse) {
		return true
	}
	return false
}

// RetryWithBackoff executes fn, retrying per config.
func RetryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if config.RetryIf != nil && !config.RetryIf(err) {
			return zero, err
		}
		if attempt >= config.MaxRetries {
			break
		}

		if err := sleep(ctx, config.backoff(attempt)); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}

func (c RetryConfig) backoff(attempt int) time.Duration {
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	d := float64(c.InitialBackoff)
	for i := 0; i < attempt; i++ {
		d *= factor
	}
	backoff := time.Duration(d)
	if c.MaxBackoff > 0 && backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}
	if c.Jitter > 0 {
		delta := float64(backoff) * c.Jitter
		backoff = time.Duration(float64(backoff) + (rand.Float64()*2*delta - delta))
	}
	return backoff
}

// PollConfig bounds a polling loop: a fixed number of attempts with a fixed sleep between them.
type PollConfig struct {
	Attempts int
	Interval time.Duration
}

// DefaultPollConfig polls five times, two seconds apart.
func DefaultPollConfig() PollConfig {
	return PollConfig{Attempts: 5, Interval: 2 * time.Second}
}

// Poll calls fn until it reports ok or the attempts run out. Errors from fn count as
// an empty attempt. Exhaustion returns ok=false and a nil error; only context
// cancellation is returned as an error.
func Poll[T any](ctx context.Context, cfg PollConfig, fn func(context.Context) (T, bool, error)) (T, bool, error) {
	var zero T
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		result, ok, err := fn(ctx)
		if err == nil && ok {
			return result, true, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, false, ctxErr
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, cfg.Interval); err != nil {
			return zero, false, err
		}
	}
	return zero, false, nil
}

// PollText polls a completer until it returns non-blank content.
func PollText(ctx context.Context, cfg PollConfig, c Completer, req Request) (string, bool, error) {
	return Poll(ctx, cfg, func(ctx context.Context) (string, bool, error) {
		resp, err := c.Complete(ctx, req)
		if err != nil {
			return "", false, err
		}
		text := strings.TrimSpace(resp.Content)
		return text, text != "", nil
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

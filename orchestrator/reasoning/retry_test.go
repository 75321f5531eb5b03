// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package reasoning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type retryableErr struct{ retry bool }

func (e retryableErr) Error() string     { return "provider error" }
func (e retryableErr) IsRetryable() bool { return e.retry }

func fastRetry(max int) RetryConfig {
	return RetryConfig{MaxRetries: max, InitialBackoff: time.Millisecond, BackoffFactor: 1}
}

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := RetryWithBackoff(context.Background(), fastRetry(3), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", retryableErr{retry: true}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_StopsOnNonRetryable(t *testing.T) {
	cfg := fastRetry(5)
	cfg.RetryIf = IsRetryable
	calls := 0
	_, err := RetryWithBackoff(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		return 0, retryableErr{retry: false}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	calls := 0
	_, err := RetryWithBackoff(context.Background(), fastRetry(2), func(context.Context) (int, error) {
		calls++
		return 0, ErrNoResponse
	})

	assert.ErrorIs(t, err, ErrNoResponse)
	assert.Equal(t, 3, calls)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(retryableErr{retry: true}))
	assert.False(t, IsRetryable(retryableErr{retry: false}))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(ErrNoResponse))
	assert.False(t, IsRetryable(errors.New("bad request")))
}

func TestPoll_ReturnsFirstReady(t *testing.T) {
	calls := 0
	got, ok, err := Poll(context.Background(), PollConfig{Attempts: 5, Interval: time.Millisecond},
		func(context.Context) (string, bool, error) {
			calls++
			return "reply", calls == 2, nil
		})

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "reply", got)
	assert.Equal(t, 2, calls)
}

func TestPoll_ExhaustionIsNotAnError(t *testing.T) {
	calls := 0
	_, ok, err := Poll(context.Background(), PollConfig{Attempts: 3, Interval: time.Millisecond},
		func(context.Context) (string, bool, error) {
			calls++
			return "", false, errors.New("still running")
		})

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, calls)
}

func TestPoll_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := Poll(ctx, PollConfig{Attempts: 3, Interval: time.Second},
		func(context.Context) (string, bool, error) { return "", false, nil })

	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollText(t *testing.T) {
	replies := []string{"", "  ", "explanation"}
	i := 0
	c := CompleterFunc(func(context.Context, Request) (*Response, error) {
		r := replies[i]
		i++
		return &Response{Content: r}, nil
	})

	text, ok, err := PollText(context.Background(), PollConfig{Attempts: 5, Interval: time.Millisecond}, c, Request{Prompt: "p"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "explanation", text)
	assert.Equal(t, 3, i)
}

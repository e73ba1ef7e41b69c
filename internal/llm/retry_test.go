package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryManager_SucceedsWithoutRetryOnFirstAttempt(t *testing.T) {
	m := NewRetryManager(RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond})
	calls := 0
	resp, err := m.Do(context.Background(), func(attempt int) (*Response, error) {
		calls++
		return &Response{Content: "ok"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 1, calls)
}

func TestRetryManager_RetriesRetryableError(t *testing.T) {
	m := NewRetryManager(RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	calls := 0
	resp, err := m.Do(context.Background(), func(attempt int) (*Response, error) {
		calls++
		if calls < 2 {
			return nil, &ClassifiedError{Err: errors.New("rate limited"), Retryable: true}
		}
		return &Response{Content: "recovered"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	assert.Equal(t, 2, calls)
}

func TestRetryManager_StopsOnNonRetryableError(t *testing.T) {
	m := NewRetryManager(RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	calls := 0
	_, err := m.Do(context.Background(), func(attempt int) (*Response, error) {
		calls++
		return nil, &ClassifiedError{Err: errors.New("bad request"), Retryable: false}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryManager_StopsOnOverflowWithoutRetrying(t *testing.T) {
	m := NewRetryManager(RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	calls := 0
	_, err := m.Do(context.Background(), func(attempt int) (*Response, error) {
		calls++
		return nil, &ClassifiedError{Err: errors.New("context_length_exceeded"), Retryable: true, Overflow: true}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryManager_ExhaustsBudget(t *testing.T) {
	m := NewRetryManager(RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	calls := 0
	_, err := m.Do(context.Background(), func(attempt int) (*Response, error) {
		calls++
		return nil, &ClassifiedError{Err: errors.New("server error"), Retryable: true}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls) // initial + 2 retries
}

func TestIsOverflowErrorText(t *testing.T) {
	assert.True(t, IsOverflowErrorText("Error: context_length_exceeded"))
	assert.False(t, IsOverflowErrorText("rate limit exceeded"))
}

package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := FromHTTPStatus(tt.status, "boom", 0)
			assert.Equal(t, tt.transient, IsTransient(err))
			assert.Equal(t, !tt.transient, IsPermanent(err))

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
		})
	}
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeTransient, GetErrorType(NewTransientError(errors.New("x"), "")))
	assert.Equal(t, ErrorTypePermanent, GetErrorType(NewPermanentError(errors.New("x"), "")))
	assert.Equal(t, ErrorTypeDegraded, GetErrorType(NewDegradedError(errors.New("x"), "", "")))
	assert.Equal(t, ErrorTypePermanent, GetErrorType(errors.New("something odd")))
	assert.Equal(t, ErrorTypeTransient, GetErrorType(fmt.Errorf("dial: %w", errors.New("connection refused"))))
}

func TestFormatForDisplayPrefersMessage(t *testing.T) {
	err := fmt.Errorf("stage: %w", FromHTTPStatus(http.StatusUnauthorized, "", 0))
	assert.Contains(t, FormatForDisplay(err), "API key")
	assert.Contains(t, FormatForDisplay(context.DeadlineExceeded), "timed out")
	assert.Equal(t, "", FormatForDisplay(nil))
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryWithResultRecoversFromTransient(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastRetry(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("flaky"), "")
		}
		return "ok", nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestRetryWithResultStopsOnPermanent(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetry(), func(context.Context) (int, error) {
		calls++
		return 0, NewPermanentError(errors.New("nope"), "")
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsBudget(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), func(context.Context) error {
		calls++
		return NewTransientError(errors.New("down"), "")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, 4, calls)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, fastRetry(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoffCapped(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	assert.Equal(t, time.Second, calculateBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, calculateBackoff(1, cfg))
	assert.Equal(t, 3*time.Second, calculateBackoff(5, cfg))
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker("llm", CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          20 * time.Millisecond,
	})
	fail := func(context.Context) (int, error) { return 0, NewTransientError(errors.New("down"), "") }
	ok := func(context.Context) (int, error) { return 1, nil }

	_, _ = ExecuteFunc(cb, context.Background(), fail)
	_, _ = ExecuteFunc(cb, context.Background(), fail)
	require.Equal(t, StateOpen, cb.State())

	_, err := ExecuteFunc(cb, context.Background(), ok)
	require.True(t, IsDegraded(err))

	time.Sleep(30 * time.Millisecond)
	v, err := ExecuteFunc(cb, context.Background(), ok)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerIgnoresPermanentFailures(t *testing.T) {
	cb := NewCircuitBreaker("llm", CircuitBreakerConfig{FailureThreshold: 1})
	_, _ = ExecuteFunc(cb, context.Background(), func(context.Context) (int, error) {
		return 0, FromHTTPStatus(http.StatusBadRequest, "bad", 0)
	})
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Metrics().FailureCount)
}

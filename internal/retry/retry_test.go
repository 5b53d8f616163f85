package retry_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/nl2api/internal/retry"
)

func TestIsRetryableClassifiesHTTPStatus(t *testing.T) {
	assert.True(t, retry.IsRetryable(&retry.HTTPStatusError{StatusCode: http.StatusServiceUnavailable}))
	assert.True(t, retry.IsRetryable(&retry.HTTPStatusError{StatusCode: http.StatusTooManyRequests}))
	assert.False(t, retry.IsRetryable(&retry.HTTPStatusError{StatusCode: http.StatusBadRequest}))
	assert.False(t, retry.IsRetryable(&retry.HTTPStatusError{StatusCode: http.StatusNotFound}))
}

func TestIsRetryableContextCancellation(t *testing.T) {
	assert.False(t, retry.IsRetryable(context.Canceled))
	assert.True(t, retry.IsRetryable(context.DeadlineExceeded))
}

func TestDoRetriesOnceThenSucceeds(t *testing.T) {
	attempts := 0
	err := retry.Do(context.Background(), retry.ExecutorConfig(), func(_ context.Context, attempt int) error {
		attempts++
		if attempt == 0 {
			return &retry.HTTPStatusError{StatusCode: 503}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestDoDoesNotRetryNonTransientErrors(t *testing.T) {
	attempts := 0
	sentinel := errors.New("not found")
	err := retry.Do(context.Background(), retry.ExecutorConfig(), func(_ context.Context, _ int) error {
		attempts++
		return sentinel
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, sentinel)
}

func TestDoExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := retry.Do(context.Background(), retry.ExecutorConfig(), func(_ context.Context, _ int) error {
		attempts++
		return &retry.HTTPStatusError{StatusCode: 500}
	})
	require.Error(t, err)
	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, attempts)
}

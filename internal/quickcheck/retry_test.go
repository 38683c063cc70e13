// internal/quickcheck/retry_test.go
package quickcheck

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickcheck-service/internal/protocol"
)

func TestRetryPolicySucceedsFirstTry(t *testing.T) {
	calls := 0
	err := DefaultRetryPolicy.Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicyResendsOnTimeout(t *testing.T) {
	calls := 0
	err := DefaultRetryPolicy.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return protocol.ErrTimeout
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicyExhaustsBudget(t *testing.T) {
	calls := 0
	err := DefaultRetryPolicy.Do(context.Background(), func() error {
		calls++
		return protocol.ErrTimeout
	})
	require.ErrorIs(t, err, protocol.ErrTimeout)
	assert.Equal(t, DefaultRetryPolicy.MaxRetries+1, calls)
}

func TestRetryPolicyStopsOnHardError(t *testing.T) {
	hard := errors.New("wire fault")
	calls := 0
	err := DefaultRetryPolicy.Do(context.Background(), func() error {
		calls++
		return hard
	})
	require.ErrorIs(t, err, hard)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicyRespectsCancellation(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, Delay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func() error {
			calls++
			return protocol.ErrTimeout
		})
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

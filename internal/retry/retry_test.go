package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsImmediately(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), nil, func() (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	start := time.Now()
	v, err := Do(context.Background(), nil, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient filesystem error")
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 3, calls)
	assert.GreaterOrEqual(t, time.Since(start), 2*Backoff)
}

func TestDo_FatalAbortsImmediately(t *testing.T) {
	fatalErr := errors.New("malformed record")
	calls := 0
	_, err := Do(context.Background(), func(error) Kind { return Fatal }, func() (int, error) {
		calls++
		return 0, fatalErr
	})
	require.ErrorIs(t, err, fatalErr)
	assert.Equal(t, 1, calls)
}

func TestDo_CancellationAbortsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan struct{})
	go func() {
		_, err := Do(ctx, nil, func() (int, error) {
			calls++
			if calls == 1 {
				cancel()
			}
			return 0, errors.New("still transient")
		})
		assert.ErrorIs(t, err, ErrCancelled)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Do did not observe cancellation")
	}
}

func TestDo_ContextErrorClassifiedAsCancellationNotFatal(t *testing.T) {
	_, err := Do(context.Background(), func(error) Kind { return Fatal }, func() (int, error) {
		return 0, context.DeadlineExceeded
	})
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestDoVoid(t *testing.T) {
	calls := 0
	err := DoVoid(context.Background(), nil, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithin_ReturnsResult(t *testing.T) {
	v, err := Within(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestWithin_TimesOutAndCancelsWork(t *testing.T) {
	cancelled := make(chan struct{})
	_, err := Within(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(cancelled)
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, ErrTimedOut)
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("work was not cancelled")
	}
}

func TestWithin_DoesNotWaitForStuckWork(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	start := time.Now()
	_, err := Within(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-release
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWithin_ParentCancellationIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, err := Within(ctx, time.Minute, func(ctx context.Context) (int, error) {
		cancel()
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimedOut)
}

func TestWithin_PassesErrorsThrough(t *testing.T) {
	sentinel := errors.New("bad request")
	_, err := Within(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 0, sentinel
	})
	assert.Same(t, sentinel, err)
}

func TestWithin_CapturesPanic(t *testing.T) {
	_, err := Within(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		panic("nil deref")
	})
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "nil deref", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
}

func TestAwait_PrefersReadyResultOverDeadline(t *testing.T) {
	attemptCtx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()
	require.ErrorIs(t, attemptCtx.Err(), context.DeadlineExceeded)

	for i := 0; i < 100; i++ {
		done := make(chan workResult[int], 1)
		done <- workResult[int]{value: 7}
		v, err := await(context.Background(), attemptCtx, done)
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	}
}

func TestAwait_LateErrorIsTimeout(t *testing.T) {
	attemptCtx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()

	done := make(chan workResult[int], 1)
	done <- workResult[int]{err: context.DeadlineExceeded}
	_, err := await(context.Background(), attemptCtx, done)
	assert.ErrorIs(t, err, ErrTimedOut)

	_, err = await(context.Background(), attemptCtx, make(chan workResult[int]))
	assert.ErrorIs(t, err, ErrTimedOut)
}

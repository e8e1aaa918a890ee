package retry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// ErrTimedOut is returned by Within when the deadline fires before the work
// returns.
var ErrTimedOut = errors.New("attempt timed out")

// PanicError carries a recovered panic out of the scope.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Within runs work under a child context that expires after timeout. On
// expiry the child context is cancelled, which aborts any in-flight HTTP call,
// and ErrTimedOut is returned without waiting for work to unwind. A parent
// cancellation is returned as the parent's error. Other errors from work pass
// through unchanged.
func Within[T any](ctx context.Context, timeout time.Duration, work func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan workResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- workResult[T]{err: &PanicError{Value: r, Stack: debug.Stack()}}
			}
		}()
		v, err := work(attemptCtx)
		done <- workResult[T]{value: v, err: err}
	}()

	return await(ctx, attemptCtx, done)
}

type workResult[T any] struct {
	value T
	err   error
}

// await prefers a result that is already available over the deadline.
func await[T any](ctx, attemptCtx context.Context, done <-chan workResult[T]) (T, error) {
	var zero T
	select {
	case res := <-done:
		return settle(ctx, attemptCtx, res)
	case <-attemptCtx.Done():
		select {
		case res := <-done:
			return settle(ctx, attemptCtx, res)
		default:
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, ErrTimedOut
	}
}

func settle[T any](ctx, attemptCtx context.Context, res workResult[T]) (T, error) {
	if res.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, ErrTimedOut
	}
	return res.value, res.err
}

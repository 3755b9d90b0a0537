// Package timed runs cancellable operations under a deadline.
package timed

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinels matched by errors.Is for the typed errors below.
var (
	ErrTimeout = errors.New("operation timed out")
	ErrAborted = errors.New("operation aborted")
)

// TimeoutError is returned when the deadline elapsed before the operation settled.
type TimeoutError struct {
	Label    string
	Deadline time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Label, e.Deadline)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// AbortedError is returned when the parent context was cancelled first.
type AbortedError struct {
	Label string
	Cause error
}

func (e *AbortedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: aborted: %v", e.Label, e.Cause)
	}
	return fmt.Sprintf("%s: aborted", e.Label)
}

func (e *AbortedError) Is(target error) bool { return target == ErrAborted }

func (e *AbortedError) Unwrap() error { return e.Cause }

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// IsAborted reports whether err is (or wraps) an AbortedError.
func IsAborted(err error) bool { return errors.Is(err, ErrAborted) }

type outcome[T any] struct {
	val T
	err error
}

// errDeadline marks the child context cancelled by our own timer.
var errDeadline = errors.New("timed: deadline elapsed")

// Run executes op with a context that is cancelled when deadline elapses or
// parent is done. A non-positive deadline leaves only parent cancellation.
//
// op must honor its context; Run returns as soon as the deadline or the parent
// fires and does not wait for op to unwind.
func Run[T any](parent context.Context, label string, deadline time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := parent.Err(); err != nil {
		return zero, &AbortedError{Label: label, Cause: context.Cause(parent)}
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if deadline > 0 {
		ctx, cancel = context.WithTimeoutCause(parent, deadline, errDeadline)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := op(ctx)
		done <- outcome[T]{val: v, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() != nil {
			return zero, classify(ctx, parent, label, deadline)
		}
		return out.val, out.err
	case <-ctx.Done():
		return zero, classify(ctx, parent, label, deadline)
	}
}

// Do is Run for operations without a result value.
func Do(parent context.Context, label string, deadline time.Duration, op func(ctx context.Context) error) error {
	_, err := Run(parent, label, deadline, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// classify decides between Timeout and Aborted once ctx is done. The cause
// recorded on ctx is whichever source fired first.
func classify(ctx, parent context.Context, label string, deadline time.Duration) error {
	if errors.Is(context.Cause(ctx), errDeadline) {
		return &TimeoutError{Label: label, Deadline: deadline}
	}
	return &AbortedError{Label: label, Cause: context.Cause(parent)}
}

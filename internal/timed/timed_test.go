package timed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsOperationResult(t *testing.T) {
	got, err := Run(context.Background(), "fetch", time.Second, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestRunPropagatesOperationError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Run(context.Background(), "fetch", time.Second, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsTimeout(err))
	assert.False(t, IsAborted(err))
}

func TestRunTimesOutAndCancelsOperation(t *testing.T) {
	cancelled := make(chan struct{})
	_, err := Run(context.Background(), "fetch timer", 20*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(cancelled)
		return 0, ctx.Err()
	})

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "fetch timer", te.Label)
	assert.Equal(t, 20*time.Millisecond, te.Deadline)
	assert.True(t, IsTimeout(err))
	assert.Contains(t, err.Error(), "fetch timer")

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("operation was not cancelled")
	}
}

func TestRunParentCancelReportsAborted(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Run(parent, "save", time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.True(t, IsAborted(err))
	assert.False(t, IsTimeout(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunParentAlreadyCancelledSkipsOperation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Do(parent, "push", time.Second, func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.True(t, IsAborted(err))
	assert.False(t, called)
}

func TestRunWithoutDeadlineWaitsForOperation(t *testing.T) {
	got, err := Run(context.Background(), "slow", 0, func(ctx context.Context) (string, error) {
		time.Sleep(30 * time.Millisecond)
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", got)
}

func TestRunReleasesChildContextOnSuccess(t *testing.T) {
	var opCtx context.Context
	_, err := Run(context.Background(), "fetch", time.Minute, func(ctx context.Context) (int, error) {
		opCtx = ctx
		return 1, nil
	})
	require.NoError(t, err)
	assert.Error(t, opCtx.Err(), "child context must be cancelled once Run returns")
}

func TestRunOperationErrorAfterDeadlineIsTimeout(t *testing.T) {
	_, err := Run(context.Background(), "submit", 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, errors.New("transport closed")
	})
	assert.True(t, IsTimeout(err))
}

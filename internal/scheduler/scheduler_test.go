package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWait_ReturnsPastForAlreadyElapsedTarget(t *testing.T) {
	past, err := Wait(context.Background(), time.Now().Add(-time.Second), time.Second, nil)
	require.NoError(t, err)
	assert.True(t, past)
}

func TestWait_ReturnsWithoutPastForNearFutureTarget(t *testing.T) {
	past, err := Wait(context.Background(), time.Now().Add(50*time.Millisecond), 0, nil)
	require.NoError(t, err)
	assert.False(t, past)
}

func TestWait_PropagatesContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Wait(ctx, time.Now().Add(time.Second), 0, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingChecker struct{}

func (failingChecker) ValidateTokenLiveness(ctx context.Context) error {
	return errors.New("token invalid")
}

func TestWait_PreCheckFailureIsReported(t *testing.T) {
	// Target far enough out that the F-30s ping actually fires, but
	// short enough the test stays fast: the checker fails immediately
	// on the first ping.
	_, err := Wait(context.Background(), time.Now().Add(31*time.Second), 0, failingChecker{})
	assert.ErrorIs(t, err, ErrPreCheckFailed)
}

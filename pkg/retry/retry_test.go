package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errCollision = errors.New("collision")

func TestDo_RetriesRetryableUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errCollision)
		}
		return nil
	}, WithInitialDelay(time.Millisecond), WithJitter(0))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustionReturnsUnwrappedError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errCollision)
	}, WithMaxAttempts(3), WithInitialDelay(time.Millisecond))

	assert.Equal(t, 3, calls)
	assert.Same(t, errCollision, err)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, boom)
}

func TestDo_PermanentUnwrapped(t *testing.T) {
	boom := errors.New("boom")
	err := Do(context.Background(), func(context.Context) error {
		return Permanent(boom)
	}, WithRetryIf(func(error) bool { return true }))

	assert.Same(t, boom, err)
}

func TestIssuanceRetrier_UsesPredicate(t *testing.T) {
	r := IssuanceRetrier(func(err error) bool { return errors.Is(err, errCollision) })
	assert.Equal(t, 3, r.MaxAttempts())

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errCollision
	})
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, errCollision)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, func(context.Context) error {
		calls++
		return nil
	})
	assert.Equal(t, 0, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithData(t *testing.T) {
	calls := 0
	v, err := DoWithData(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", Retryable(errCollision)
		}
		return "ok", nil
	}, WithInitialDelay(time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestFollowUpRetrier(t *testing.T) {
	r := FollowUpRetrier(func(err error) bool { return errors.Is(err, errCollision) })
	assert.Equal(t, 4, r.MaxAttempts())

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errCollision
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	permanent := errors.New("permanent")
	err = r.Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

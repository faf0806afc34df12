package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quickConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), quickConfig(3), func() error {
		calls++
		return nil
	}, nil)

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	var retries []int

	err := Do(context.Background(), quickConfig(5), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(attempt int, err error) {
		retries = append(retries, attempt)
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("always broken")
	calls := 0

	err := Do(context.Background(), quickConfig(3), func() error {
		calls++
		return sentinel
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestDo_UnboundedStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, Forever(time.Millisecond), func() error {
		calls++
		return errors.New("still down")
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Greater(t, calls, 1, "unbounded retry should keep attempting until cancelled")
}

func TestForever(t *testing.T) {
	cfg := Forever(5 * time.Second)
	assert.Equal(t, 0, cfg.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.MaxDelay)
}

func TestDelayFor_CapsAtMax(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2.0}

	assert.Equal(t, time.Second, delayFor(cfg, 1))
	assert.Equal(t, 2*time.Second, delayFor(cfg, 2))
	assert.Equal(t, 3*time.Second, delayFor(cfg, 3))
	assert.Equal(t, 3*time.Second, delayFor(cfg, 10))
}

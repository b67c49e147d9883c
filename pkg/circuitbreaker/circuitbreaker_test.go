package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newTestBreaker() *CircuitBreaker {
	return New(Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             50 * time.Millisecond,
		MaxRequestsHalfOpen: 2,
	})
}

func fail(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func() error { return errBoom })
}

func succeed(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func() error { return nil })
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb := newTestBreaker()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, fail(cb), errBoom)
	}
	assert.Equal(t, StateOpen, cb.State())

	// Shedding: the callable never runs.
	called := false
	err := cb.Execute(context.Background(), func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	cb := newTestBreaker()

	require.Error(t, fail(cb))
	require.Error(t, fail(cb))
	require.NoError(t, succeed(cb))
	require.Error(t, fail(cb))
	require.Error(t, fail(cb))

	assert.Equal(t, StateClosed, cb.State())
}

func TestClosesAfterProbeSuccesses(t *testing.T) {
	cb := newTestBreaker()
	for i := 0; i < 3; i++ {
		fail(cb)
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(60 * time.Millisecond)

	require.NoError(t, succeed(cb))
	require.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, succeed(cb))
	assert.Equal(t, StateClosed, cb.State())
}

func TestFailedProbeReopens(t *testing.T) {
	cb := newTestBreaker()
	for i := 0; i < 3; i++ {
		fail(cb)
	}
	time.Sleep(60 * time.Millisecond)

	require.ErrorIs(t, fail(cb), errBoom)
	assert.Equal(t, StateOpen, cb.State())
}

func TestHalfOpenBoundsProbes(t *testing.T) {
	cb := New(Config{
		FailureThreshold:    1,
		SuccessThreshold:    3,
		Timeout:             50 * time.Millisecond,
		MaxRequestsHalfOpen: 2,
	})
	fail(cb)
	require.Equal(t, StateOpen, cb.State())
	time.Sleep(60 * time.Millisecond)

	// Two probes are admitted; neither closes the breaker yet, so the
	// third call is shed.
	require.NoError(t, succeed(cb))
	require.NoError(t, succeed(cb))
	require.Equal(t, StateHalfOpen, cb.State())
	assert.ErrorIs(t, succeed(cb), ErrOpen)
}

func TestCancelledContextSkipsCall(t *testing.T) {
	cb := newTestBreaker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.Execute(ctx, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Equal(t, StateClosed, cb.State())
}

func TestStateChangeCallbackFires(t *testing.T) {
	cb := newTestBreaker()

	var mu sync.Mutex
	var transitions []State
	done := make(chan struct{}, 4)
	cb.OnStateChange(func(from, to State) {
		mu.Lock()
		transitions = append(transitions, to)
		mu.Unlock()
		done <- struct{}{}
	})

	for i := 0; i < 3; i++ {
		fail(cb)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("state change callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transitions, 1)
	assert.Equal(t, StateOpen, transitions[0])
}

func TestZeroConfigFallsBackToDefaults(t *testing.T) {
	cb := New(Config{})
	assert.Equal(t, DefaultConfig().FailureThreshold, cb.cfg.FailureThreshold)
	assert.Equal(t, DefaultConfig().Timeout, cb.cfg.Timeout)
}

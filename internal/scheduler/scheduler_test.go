package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New("every tuesday", time.UTC, false, func(context.Context) error { return nil }, zerolog.Nop())
	assert.Error(t, err)

	_, err = New("0 */6 * * *", nil, false, func(context.Context) error { return nil }, zerolog.Nop())
	assert.NoError(t, err)
}

func TestRunOnStartAndStop(t *testing.T) {
	ran := make(chan struct{}, 1)
	s, err := New("@every 1h", time.UTC, true, func(context.Context) error {
		ran <- struct{}{}
		return errors.New("boom")
	}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run on start")
	}
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int64(1), s.Runs())
	assert.Equal(t, int64(1), s.Failures())
}

func TestRunsNeverOverlap(t *testing.T) {
	var started, running, maxRunning atomic.Int64
	s, err := New("@every 1s", time.UTC, true, func(ctx context.Context) error {
		started.Add(1)
		n := running.Add(1)
		if n > maxRunning.Load() {
			maxRunning.Store(n)
		}
		<-ctx.Done()
		running.Add(-1)
		return ctx.Err()
	}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Several ticks pass while the first run is still going.
	time.Sleep(2500 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, int64(1), started.Load())
	assert.Equal(t, int64(1), maxRunning.Load())
	assert.Equal(t, int64(0), running.Load())
}

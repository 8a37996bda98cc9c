package services

import (
	"context"
	"testing"
	"time"

	"deskrelay/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReaper_SweepRemovesOnlyExpired(t *testing.T) {
	store := memory.NewSessionStore(100)
	metrics := newCountingMetrics()
	ctx := context.Background()

	session, err := store.CreateForHost(ctx, "H")
	require.NoError(t, err)
	require.NoError(t, store.Deactivate(ctx, session.ID))

	// Young sessions survive, whatever their active flag says.
	reaper := NewSessionReaper(store, time.Hour, time.Minute, metrics, zap.NewNop().Sugar())
	reaper.Sweep(ctx)
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Zero(t, metrics.reaped)

	// With a zero max age everything older than the sweep instant expires.
	time.Sleep(5 * time.Millisecond)
	reaper = NewSessionReaper(store, 0, time.Minute, metrics, zap.NewNop().Sugar())
	reaper.Sweep(ctx)
	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, 1, metrics.reaped)
}

func TestReaper_RunStopsOnCancel(t *testing.T) {
	store := memory.NewSessionStore(100)
	reaper := NewSessionReaper(store, time.Hour, 10*time.Millisecond, newCountingMetrics(), zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after context cancellation")
	}
}

package services

import (
	"context"
	"time"

	"deskrelay/internal/core/ports"

	"go.uber.org/zap"
)

// SessionReaper periodically discards sessions older than a fixed age. The
// sweep is purely age-based: an active session with both peers connected is
// still removed once it passes maxAge, acting as a hard cap on session
// lifetime.
type SessionReaper struct {
	store    ports.SessionStore
	maxAge   time.Duration
	interval time.Duration
	metrics  ports.MetricsRecorder
	logger   *zap.SugaredLogger
}

func NewSessionReaper(store ports.SessionStore, maxAge, interval time.Duration, metrics ports.MetricsRecorder, logger *zap.SugaredLogger) *SessionReaper {
	return &SessionReaper{
		store:    store,
		maxAge:   maxAge,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (r *SessionReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep performs a single pass over the session store.
func (r *SessionReaper) Sweep(ctx context.Context) {
	removed, err := r.store.SweepExpired(ctx, r.maxAge)
	if err != nil {
		r.logger.Errorw("session sweep failed", "error", err)
		return
	}
	if removed > 0 {
		r.metrics.RecordSessionsReaped(removed)
		r.logger.Infow("expired sessions removed", "count", removed, "max_age", r.maxAge)
	}
}

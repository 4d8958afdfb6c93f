package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/timex"
)

// Purger is the part of DeletionPropagator the retention worker drives.
type Purger interface {
	Purge(ctx context.Context, olderThan time.Time) (PurgeStats, error)
}

// RetentionWorker periodically purges tombstones older than the retention
// window.
type RetentionWorker struct {
	purger    Purger
	retention time.Duration
	interval  time.Duration
	clock     timex.Clock
	logger    logging.Logger
	onPurge   func(PurgeStats)
}

func NewRetentionWorker(purger Purger, retention, interval time.Duration, clock timex.Clock, logger logging.Logger) *RetentionWorker {
	return &RetentionWorker{
		purger:    purger,
		retention: retention,
		interval:  interval,
		clock:     clock,
		logger:    logger.With("module", "retention"),
	}
}

// OnPurge registers a callback invoked after every successful run.
func (w *RetentionWorker) OnPurge(fn func(PurgeStats)) {
	w.onPurge = fn
}

// RunOnce purges everything that fell out of the retention window.
func (w *RetentionWorker) RunOnce(ctx context.Context) (PurgeStats, error) {
	cutoff := w.clock().Add(-w.retention)
	stats, err := w.purger.Purge(ctx, cutoff)
	if err != nil {
		w.logger.Error(ctx, "purge failed", "error", err)
		return stats, err
	}
	if w.onPurge != nil {
		w.onPurge(stats)
	}
	if stats.Records > 0 || stats.Tombstones > 0 {
		w.logger.Info(ctx, "purged deleted records", "records", stats.Records, "tombstones", stats.Tombstones, "cutoff", cutoff)
	}
	return stats, nil
}

// Run calls RunOnce every interval until ctx is cancelled.
func (w *RetentionWorker) Run(ctx context.Context) {
	if w.interval <= 0 || w.retention <= 0 {
		w.logger.Info(ctx, "retention worker disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info(ctx, "retention worker started", "interval", w.interval, "retention", w.retention)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "retention worker stopped")
			return
		case <-ticker.C:
			_, _ = w.RunOnce(ctx)
		}
	}
}

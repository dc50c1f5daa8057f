package database

import (
	"context"
	"log/slog"

	"cryptohunter/internal/model"
)

// Recorder writes market snapshots to a Repository from its own goroutine.
type Recorder struct {
	logger *slog.Logger
	repo   Repository
	queue  chan model.MarketSnapshot
}

// NewRecorder creates a Recorder buffering up to queueSize snapshots.
func NewRecorder(logger *slog.Logger, repo Repository, queueSize int) *Recorder {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Recorder{
		logger: logger.With("component", "recorder"),
		repo:   repo,
		queue:  make(chan model.MarketSnapshot, queueSize),
	}
}

// Record queues a snapshot. It drops the snapshot when the queue is full.
func (r *Recorder) Record(snapshot model.MarketSnapshot) {
	select {
	case r.queue <- snapshot:
	default:
		r.logger.Warn("Recorder: queue full, dropping snapshot", "cycle", snapshot.Cycle)
	}
}

// Run writes queued snapshots until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case snapshot := <-r.queue:
			ticks := snapshot.Ticks()
			if err := r.repo.LogPriceTicks(ctx, ticks); err != nil {
				r.logger.Error("Recorder: failed to store price ticks",
					"cycle", snapshot.Cycle,
					"error", err,
				)
				continue
			}
			r.logger.Debug("Recorder: price ticks stored", "cycle", snapshot.Cycle, "ticks", len(ticks))
		}
	}
}

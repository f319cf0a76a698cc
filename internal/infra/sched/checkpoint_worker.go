package sched

import (
	"context"
	"time"

	"telegram-referral-rewards/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Flusher retries ledger records whose write-through failed.
type Flusher interface {
	FlushDirty(ctx context.Context) (int, error)
}

// CheckpointWorker periodically flushes dirty ledger records to storage.
type CheckpointWorker struct {
	interval time.Duration
	ledger   Flusher
	log      *zerolog.Logger
}

func NewCheckpointWorker(interval time.Duration, ledger Flusher, logger *zerolog.Logger) *CheckpointWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	cpLog := logger.With().Str("component", "CheckpointWorker").Logger()
	return &CheckpointWorker{
		interval: interval,
		ledger:   ledger,
		log:      &cpLog,
	}
}

func (w *CheckpointWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting checkpoint worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// final attempt so a clean shutdown does not leave dirty records behind
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flush(flushCtx)
			cancel()
			w.log.Info().Msg("Stopping checkpoint worker")
			return ctx.Err()
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *CheckpointWorker) flush(ctx context.Context) {
	n, err := w.ledger.FlushDirty(ctx)
	if err != nil {
		metrics.AddCheckpoint("failed", 1)
		w.log.Error().Err(err).Msg("checkpoint failed")
		return
	}
	if n > 0 {
		metrics.AddCheckpoint("flushed", n)
		w.log.Info().Int("records", n).Msg("dirty ledger records flushed")
	}
}

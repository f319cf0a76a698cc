package sched

import (
	"context"
	"time"

	"telegram-referral-rewards/internal/usecase"

	"github.com/rs/zerolog"
)

// RightsAuditWorker checks the bot's admin rights in every required channel.
// Operators are alerted by the use case when rights are missing.
type RightsAuditWorker struct {
	interval  time.Duration
	channelUC usecase.ChannelUseCase
	log       *zerolog.Logger
}

func NewRightsAuditWorker(interval time.Duration, channelUC usecase.ChannelUseCase, logger *zerolog.Logger) *RightsAuditWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	compLog := logger.With().Str("component", "RightsAuditWorker").Logger()
	return &RightsAuditWorker{
		interval:  interval,
		channelUC: channelUC,
		log:       &compLog,
	}
}

func (w *RightsAuditWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting rights audit worker")
	// Run once on startup, then on every tick
	w.runAudit(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping rights audit worker")
			return ctx.Err()
		case <-ticker.C:
			w.runAudit(ctx)
		}
	}
}

func (w *RightsAuditWorker) runAudit(ctx context.Context) {
	rights, err := w.channelUC.AuditBotRights(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("rights audit failed")
		return
	}
	lost := 0
	for _, r := range rights {
		if !r.IsAdmin {
			lost++
		}
	}
	w.log.Debug().Int("channels", len(rights)).Int("without_rights", lost).Msg("rights audit finished")
}

package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/domain/ports/adapter"
	"telegram-referral-rewards/internal/infra/metrics"
	"telegram-referral-rewards/internal/infra/worker"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ BroadcastUseCase = (*broadcastUC)(nil)

type BroadcastStats struct {
	Total   int
	Sent    int
	Failed  int
	Blocked int
}

type BroadcastUseCase interface {
	// Broadcast queues message for every active account and returns the
	// recipient count. onDone, if set, receives the final stats.
	Broadcast(ctx context.Context, message string, onDone func(BroadcastStats)) (int, error)
}

type broadcastUC struct {
	ledger     *Ledger
	bot        adapter.TelegramBotAdapter
	workerPool *worker.Pool
	delay      time.Duration
	log        *zerolog.Logger
}

func NewBroadcastUseCase(
	ledger *Ledger,
	bot adapter.TelegramBotAdapter,
	pool *worker.Pool,
	delay time.Duration,
	logger *zerolog.Logger,
) BroadcastUseCase {
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}
	return &broadcastUC{
		ledger:     ledger,
		bot:        bot,
		workerPool: pool,
		delay:      delay,
		log:        logger,
	}
}

type broadcastRun struct {
	total                 int
	sent, failed, blocked atomic.Int64
	wg                    sync.WaitGroup
}

func (r *broadcastRun) stats() BroadcastStats {
	return BroadcastStats{
		Total:   r.total,
		Sent:    int(r.sent.Load()),
		Failed:  int(r.failed.Load()),
		Blocked: int(r.blocked.Load()),
	}
}

func (uc *broadcastUC) Broadcast(ctx context.Context, message string, onDone func(BroadcastStats)) (int, error) {
	var recipients []int64
	for _, a := range uc.ledger.Accounts() {
		if a.Status == model.AccountActive {
			recipients = append(recipients, a.ID)
		}
	}
	run := &broadcastRun{total: len(recipients)}

	// Throttle to respect Telegram's API limits
	throttle := time.NewTicker(uc.delay)

	go func() {
		defer throttle.Stop()
		uc.log.Info().Int("user_count", run.total).Msg("Starting broadcast job")

		for i, id := range recipients {
			select {
			case <-ctx.Done():
				uc.log.Warn().Int("queued", i).Msg("Broadcast interrupted")
				return
			case <-throttle.C:
			}
			run.wg.Add(1)
			if err := uc.workerPool.Submit(uc.createSendTask(run, id, message)); err != nil {
				run.wg.Done()
				run.failed.Add(1)
				metrics.IncBroadcast("failed")
				uc.log.Warn().Err(err).Int64("tg_id", id).Msg("Failed to submit broadcast task to worker pool")
			}
			if (i+1)%10 == 0 {
				st := run.stats()
				uc.log.Info().Int("queued", i+1).Int("sent", st.Sent).Int("failed", st.Failed).Msg("Broadcast progress")
			}
		}
		run.wg.Wait()
		st := run.stats()
		uc.log.Info().Int("sent", st.Sent).Int("failed", st.Failed).Int("blocked", st.Blocked).Msg("Broadcast finished")
		if onDone != nil {
			onDone(st)
		}
	}()

	return run.total, nil
}

// createSendTask creates a closure for the worker pool to execute.
func (uc *broadcastUC) createSendTask(run *broadcastRun, telegramID int64, message string) worker.Task {
	return func(ctx context.Context) error {
		defer run.wg.Done()
		err := uc.bot.SendMessage(ctx, telegramID, message)
		if err == nil {
			run.sent.Add(1)
			metrics.IncBroadcast("sent")
			return nil
		}
		run.failed.Add(1)
		metrics.IncBroadcast("failed")
		if errors.Is(err, adapter.ErrBlockedByUser) {
			run.blocked.Add(1)
			if mErr := uc.ledger.MarkRemoved(ctx, telegramID); mErr != nil {
				uc.log.Warn().Err(mErr).Int64("tg_id", telegramID).Msg("Failed to mark blocked account")
			}
		}
		uc.log.Warn().Err(err).Int64("tg_id", telegramID).Msg("Failed to send broadcast message to user")
		return nil // Return nil so the worker pool doesn't log it as a task error
	}
}

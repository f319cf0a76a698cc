//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/infra/worker"
	"telegram-referral-rewards/internal/usecase"
)

func TestNotificationUseCase(t *testing.T) {
	ctx := context.Background()

	t.Run("delivery errors are swallowed", func(t *testing.T) {
		f := newFixture()
		var calls atomic.Int32
		f.Bot.SendMessageFunc = func(ctx context.Context, chatID int64, text string) error {
			calls.Add(1)
			return errors.New("bot was blocked by the user")
		}
		n := usecase.NewNotificationUseCase(f.Bot, newTestTranslator(), []int64{testOperator, testOperator + 1}, nil, f.Logger)

		n.NotifyCandidateVerified(ctx, 2)
		n.NotifyNewAccount(ctx, model.Account{ID: 2, Username: "x"}, 0)

		if calls.Load() != 3 {
			t.Errorf("expected 3 delivery attempts, got %d", calls.Load())
		}
	})

	t.Run("resolved withdrawal picks the message by status", func(t *testing.T) {
		f := newFixture()
		n := f.notifier()
		n.NotifyWithdrawalResolved(ctx, model.Withdrawal{AccountID: 5, Amount: 20, Status: model.WithdrawalApproved}, 0)
		n.NotifyWithdrawalResolved(ctx, model.Withdrawal{AccountID: 5, Amount: 20, Status: model.WithdrawalRejected}, 20)
		msgs := f.Bot.To(5)
		if len(msgs) != 2 ||
			msgs[0].Text != "notify_withdrawal_approved 20 0" ||
			msgs[1].Text != "notify_withdrawal_rejected 20 20" {
			t.Errorf("unexpected messages: %+v", msgs)
		}
	})

	t.Run("no channels lost sends nothing", func(t *testing.T) {
		f := newFixture()
		f.notifier().NotifyBotRightsLost(ctx, nil)
		if len(f.Bot.Sent) != 0 {
			t.Errorf("expected no messages, got %d", len(f.Bot.Sent))
		}
	})

	t.Run("pool delivers asynchronously", func(t *testing.T) {
		f := newFixture()
		pool := worker.NewPool(1)
		pool.Start(ctx)
		defer pool.Stop()
		done := make(chan struct{}, 1)
		f.Bot.SendMessageFunc = func(ctx context.Context, chatID int64, text string) error {
			done <- struct{}{}
			return nil
		}
		n := usecase.NewNotificationUseCase(f.Bot, newTestTranslator(), nil, pool, f.Logger)
		n.NotifyCandidateVerified(ctx, 2)

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for pooled delivery")
		}
	})
}

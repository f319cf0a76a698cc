package usecase

import (
	"context"
	"fmt"
	"strings"

	"telegram-referral-rewards/internal/domain"
	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/domain/ports/adapter"
	"telegram-referral-rewards/internal/infra/metrics"
	"telegram-referral-rewards/internal/infra/worker"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

// Callback data prefixes carried by operator buttons on withdrawal requests.
const (
	CallbackWithdrawApprove = "wd_ok:"
	CallbackWithdrawReject  = "wd_no:"
)

// Translator renders user-facing text.
type Translator interface {
	T(key string, args ...interface{}) string
}

// NotificationUseCase delivers outbound messages. Delivery is best-effort:
// failures are logged and counted, never returned.
type NotificationUseCase interface {
	NotifyInviterCredited(ctx context.Context, inviterID int64, candidate model.Account, amount, newBalance int64)
	NotifyCandidateVerified(ctx context.Context, candidateID int64)
	NotifyWithdrawalRequested(ctx context.Context, w model.Withdrawal, account model.Account)
	NotifyWithdrawalResolved(ctx context.Context, w model.Withdrawal, newBalance int64)
	NotifyNewAccount(ctx context.Context, account model.Account, inviterID int64)
	NotifyBotRightsLost(ctx context.Context, channels []model.RequiredChannel)
}

type notificationUC struct {
	bot       adapter.TelegramBotAdapter
	tr        Translator
	operators []int64
	pool      *worker.Pool
	log       *zerolog.Logger
}

// NewNotificationUseCase builds the dispatcher. With a nil pool messages are
// sent inline on the caller's goroutine.
func NewNotificationUseCase(bot adapter.TelegramBotAdapter, tr Translator, operators []int64, pool *worker.Pool, logger *zerolog.Logger) *notificationUC {
	l := logger.With().Str("component", "Notifications").Logger()
	return &notificationUC{
		bot:       bot,
		tr:        tr,
		operators: append([]int64(nil), operators...),
		pool:      pool,
		log:       &l,
	}
}

func (n *notificationUC) dispatch(ctx context.Context, kind string, chatID int64, send func(ctx context.Context) error) {
	run := func(ctx context.Context) error {
		err := send(ctx)
		metrics.IncNotification(kind, err == nil)
		if err != nil {
			n.log.Warn().
				Err(fmt.Errorf("%w: %v", domain.ErrNotification, err)).
				Str("kind", kind).
				Int64("tg_id", chatID).
				Msg("notification not delivered")
		}
		return nil
	}
	if n.pool == nil {
		_ = run(ctx)
		return
	}
	if err := n.pool.Submit(run); err != nil {
		metrics.IncNotification(kind, false)
		n.log.Warn().Err(err).Str("kind", kind).Int64("tg_id", chatID).Msg("notification dropped")
	}
}

func (n *notificationUC) text(ctx context.Context, kind string, chatID int64, msg string) {
	n.dispatch(ctx, kind, chatID, func(ctx context.Context) error {
		return n.bot.SendMessage(ctx, chatID, msg)
	})
}

func (n *notificationUC) NotifyInviterCredited(ctx context.Context, inviterID int64, candidate model.Account, amount, newBalance int64) {
	n.text(ctx, "inviter_credited", inviterID,
		n.tr.T("notify_inviter_credited", candidate.Name(), amount, newBalance))
}

func (n *notificationUC) NotifyCandidateVerified(ctx context.Context, candidateID int64) {
	n.text(ctx, "candidate_verified", candidateID, n.tr.T("notify_candidate_verified"))
}

func (n *notificationUC) NotifyWithdrawalRequested(ctx context.Context, w model.Withdrawal, account model.Account) {
	msg := n.tr.T("notify_withdrawal_requested", account.Name(), account.ID, w.Amount, account.Stars, w.ID)
	rows := [][]adapter.InlineButton{{
		{Text: n.tr.T("btn_approve"), Data: CallbackWithdrawApprove + w.ID},
		{Text: n.tr.T("btn_reject"), Data: CallbackWithdrawReject + w.ID},
	}}
	for _, op := range n.operators {
		op := op
		n.dispatch(ctx, "withdrawal_requested", op, func(ctx context.Context) error {
			return n.bot.SendButtons(ctx, op, msg, rows)
		})
	}
}

func (n *notificationUC) NotifyWithdrawalResolved(ctx context.Context, w model.Withdrawal, newBalance int64) {
	key := "notify_withdrawal_approved"
	if w.Status == model.WithdrawalRejected {
		key = "notify_withdrawal_rejected"
	}
	n.text(ctx, "withdrawal_resolved", w.AccountID, n.tr.T(key, w.Amount, newBalance))
}

func (n *notificationUC) NotifyNewAccount(ctx context.Context, account model.Account, inviterID int64) {
	via := n.tr.T("notify_new_account_direct")
	if inviterID != 0 {
		via = n.tr.T("notify_new_account_invited", inviterID)
	}
	msg := n.tr.T("notify_new_account", account.Name(), account.ID, via)
	for _, op := range n.operators {
		n.text(ctx, "new_account", op, msg)
	}
}

func (n *notificationUC) NotifyBotRightsLost(ctx context.Context, channels []model.RequiredChannel) {
	if len(channels) == 0 {
		return
	}
	var b strings.Builder
	for _, ch := range channels {
		fmt.Fprintf(&b, "\n- %s (%d)", ch.Name, ch.ChatID)
	}
	msg := n.tr.T("notify_bot_rights_lost", b.String())
	for _, op := range n.operators {
		n.text(ctx, "bot_rights_lost", op, msg)
	}
}

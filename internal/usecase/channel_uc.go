package usecase

import (
	"context"
	"errors"
	"fmt"

	"telegram-referral-rewards/internal/domain"
	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/domain/ports/adapter"
	"telegram-referral-rewards/internal/infra/logging"
	"telegram-referral-rewards/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ ChannelUseCase = (*channelUC)(nil)

// ChannelRights is one line of the bot rights audit.
type ChannelRights struct {
	Channel   model.RequiredChannel
	BotStatus string
	IsAdmin   bool
	Err       error
}

type ChannelUseCase interface {
	List(ctx context.Context) []model.RequiredChannel
	Add(ctx context.Context, chatID int64, link, name string) (*model.RequiredChannel, error)
	Edit(ctx context.Context, chatID int64, newChatID int64, link, name string) (*model.RequiredChannel, error)
	Remove(ctx context.Context, chatID int64) error
	AuditBotRights(ctx context.Context) ([]ChannelRights, error)
}

type channelUC struct {
	ledger  *Ledger
	members adapter.MembershipChecker
	notify  NotificationUseCase
	log     *zerolog.Logger
}

func NewChannelUseCase(ledger *Ledger, members adapter.MembershipChecker, notify NotificationUseCase, logger *zerolog.Logger) *channelUC {
	return &channelUC{ledger: ledger, members: members, notify: notify, log: logger}
}

func (u *channelUC) List(ctx context.Context) []model.RequiredChannel {
	return u.ledger.Channels()
}

// requireBotAdmin fails unless the bot administers chatID.
func (u *channelUC) requireBotAdmin(ctx context.Context, chatID int64) error {
	status, err := u.members.BotStatus(ctx, chatID)
	if err != nil {
		u.log.Warn().Err(err).Int64("channel_id", chatID).Msg("bot status lookup failed")
		return fmt.Errorf("%w: %w", domain.ErrInsufficientBotPermissions, err)
	}
	if !model.IsAdminStatus(status) {
		return domain.ErrInsufficientBotPermissions
	}
	return nil
}

func (u *channelUC) Add(ctx context.Context, chatID int64, link, name string) (*model.RequiredChannel, error) {
	defer logging.TraceDuration(u.log, "ChannelUC.Add")()

	ch, err := model.NewRequiredChannel(chatID, link, name)
	if err != nil {
		return nil, err
	}
	if err := u.requireBotAdmin(ctx, chatID); err != nil {
		return nil, err
	}
	err = u.ledger.AddChannel(ctx, *ch)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		return nil, err
	}
	u.log.Info().Int64("channel_id", chatID).Str("name", ch.Name).Msg("required channel added")
	return ch, err
}

// Edit replaces the channel at chatID. A zero newChatID keeps the id; empty
// link or name keep the current values.
func (u *channelUC) Edit(ctx context.Context, chatID int64, newChatID int64, link, name string) (*model.RequiredChannel, error) {
	defer logging.TraceDuration(u.log, "ChannelUC.Edit")()

	var cur *model.RequiredChannel
	for _, ch := range u.ledger.Channels() {
		if ch.ChatID == chatID {
			c := ch
			cur = &c
			break
		}
	}
	if cur == nil {
		return nil, domain.ErrNotFound
	}
	if newChatID == 0 {
		newChatID = chatID
	}
	if link == "" {
		link = cur.Link
	}
	if name == "" {
		name = cur.Name
	}
	ch, err := model.NewRequiredChannel(newChatID, link, name)
	if err != nil {
		return nil, err
	}
	if err := u.requireBotAdmin(ctx, newChatID); err != nil {
		return nil, err
	}
	err = u.ledger.ReplaceChannel(ctx, chatID, *ch)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		return nil, err
	}
	ch.Position = cur.Position
	u.log.Info().Int64("channel_id", chatID).Int64("new_channel_id", newChatID).Msg("required channel edited")
	return ch, err
}

func (u *channelUC) Remove(ctx context.Context, chatID int64) error {
	defer logging.TraceDuration(u.log, "ChannelUC.Remove")()
	if err := u.ledger.RemoveChannel(ctx, chatID); err != nil {
		return err
	}
	u.log.Info().Int64("channel_id", chatID).Msg("required channel removed")
	return nil
}

// AuditBotRights checks the bot's status in every required channel and
// alerts operators about channels where it is no longer an administrator.
func (u *channelUC) AuditBotRights(ctx context.Context) ([]ChannelRights, error) {
	defer logging.TraceDuration(u.log, "ChannelUC.AuditBotRights")()

	channels := u.ledger.Channels()
	out := make([]ChannelRights, 0, len(channels))
	var lost []model.RequiredChannel
	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		status, err := u.members.BotStatus(ctx, ch.ChatID)
		r := ChannelRights{Channel: ch, BotStatus: status, Err: err}
		switch {
		case err != nil:
			metrics.IncRightsAudit("error")
			u.log.Warn().Err(err).Int64("channel_id", ch.ChatID).Msg("rights audit lookup failed")
		case model.IsAdminStatus(status):
			r.IsAdmin = true
			metrics.IncRightsAudit("ok")
		default:
			metrics.IncRightsAudit("lost")
			lost = append(lost, ch)
		}
		out = append(out, r)
	}
	if len(lost) > 0 {
		u.log.Warn().Int("channels", len(lost)).Msg("bot lost admin rights")
		u.notify.NotifyBotRightsLost(ctx, lost)
	}
	return out, nil
}

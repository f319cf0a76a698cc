package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/domain/ports/adapter"
)

var (
	_ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)
	_ adapter.MembershipChecker  = (*NoopBotAdapter)(nil)
)

// NoopBotAdapter implements the bot ports for local runs without a token.
// It logs outbound messages and reports every user as a channel member.
type NoopBotAdapter struct {
	log *zerolog.Logger
}

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	l := logger.With().Str("component", "NoopBot").Logger()
	return &NoopBotAdapter{log: &l}
}

func (b *NoopBotAdapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Info().Int64("tg_id", tgID).Str("text", text).Msg("send message")
	return nil
}

func (b *NoopBotAdapter) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Info().Int64("tg_id", tgID).Str("text", text).Int("rows", len(rows)).Msg("send buttons")
	return nil
}

func (b *NoopBotAdapter) SendDocument(ctx context.Context, tgID int64, doc adapter.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Info().Int64("tg_id", tgID).Str("file", doc.Name).Int("bytes", len(doc.Content)).Msg("send document")
	return nil
}

func (b *NoopBotAdapter) MemberStatus(ctx context.Context, chatID, userID int64) (string, error) {
	return model.MemberStatusMember, ctx.Err()
}

func (b *NoopBotAdapter) BotStatus(ctx context.Context, chatID int64) (string, error) {
	return model.MemberStatusAdministrator, ctx.Err()
}

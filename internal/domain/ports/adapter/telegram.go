// File: internal/domain/ports/adapter/telegram.go
package adapter

import (
	"context"
	"errors"
)

// ErrBlockedByUser is returned when Telegram refuses delivery because the
// recipient blocked the bot.
var ErrBlockedByUser = errors.New("bot blocked by user")

type InlineButton struct {
	Text string
	Data string
	URL  string
}

// Document is an in-memory file sent as a Telegram attachment.
type Document struct {
	Name    string
	Content []byte
	Caption string
}

type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, telegramID int64, text string) error
	SendButtons(ctx context.Context, telegramID int64, text string, rows [][]InlineButton) error
	SendDocument(ctx context.Context, telegramID int64, doc Document) error
}

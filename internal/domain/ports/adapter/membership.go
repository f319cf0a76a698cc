package adapter

import "context"

// MembershipChecker answers chat membership questions against Telegram.
// Statuses are the raw Telegram values (member, administrator, creator, left, kicked, restricted).
type MembershipChecker interface {
	MemberStatus(ctx context.Context, chatID, userID int64) (string, error)
	// BotStatus returns the bot's own status in chatID.
	BotStatus(ctx context.Context, chatID int64) (string, error)
}

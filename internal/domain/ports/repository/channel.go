package repository

import (
	"context"

	"telegram-referral-rewards/internal/domain/model"
)

// ChannelRepository persists the ordered list of required channels.
type ChannelRepository interface {
	// ReplaceAll overwrites the stored list with channels, in order.
	ReplaceAll(ctx context.Context, tx Tx, channels []model.RequiredChannel) error
	List(ctx context.Context, tx Tx) ([]model.RequiredChannel, error)
}

package repository

import (
	"context"

	"telegram-referral-rewards/internal/domain/model"
)

// CodeRepository is the port for redeemable codes.
type CodeRepository interface {
	// Save creates or replaces a code together with its usage set.
	Save(ctx context.Context, tx Tx, c *model.RedeemableCode) error
	FindByCode(ctx context.Context, tx Tx, code string) (*model.RedeemableCode, error)
	List(ctx context.Context, tx Tx) ([]*model.RedeemableCode, error)
}

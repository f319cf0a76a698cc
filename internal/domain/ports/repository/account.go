package repository

import (
	"context"

	"telegram-referral-rewards/internal/domain/model"
)

// -----------------------------
// Accounts
// -----------------------------

type AccountRepository interface {
	Save(ctx context.Context, tx Tx, a *model.Account) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Account, error)
	List(ctx context.Context, tx Tx) ([]*model.Account, error)
}

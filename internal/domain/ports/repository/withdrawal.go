package repository

import (
	"context"

	"telegram-referral-rewards/internal/domain/model"
)

type WithdrawalRepository interface {
	Save(ctx context.Context, tx Tx, w *model.Withdrawal) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Withdrawal, error)
	List(ctx context.Context, tx Tx) ([]*model.Withdrawal, error)
}

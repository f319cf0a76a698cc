package model

import (
	"time"

	"telegram-referral-rewards/internal/domain"

	"github.com/oklog/ulid/v2"
)

// MinWithdrawalStars is the smallest amount a withdrawal may request.
const MinWithdrawalStars int64 = 15

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

type Withdrawal struct {
	ID         string
	AccountID  int64
	Amount     int64
	Status     WithdrawalStatus
	CreatedAt  time.Time
	ResolvedAt *time.Time
	ResolvedBy int64
}

func NewWithdrawal(accountID, amount int64) (*Withdrawal, error) {
	if accountID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if amount < MinWithdrawalStars {
		return nil, domain.ErrInsufficientBalance
	}
	return &Withdrawal{
		ID:        ulid.Make().String(),
		AccountID: accountID,
		Amount:    amount,
		Status:    WithdrawalPending,
		CreatedAt: time.Now(),
	}, nil
}

func (w *Withdrawal) IsPending() bool { return w.Status == WithdrawalPending }

// Resolve moves a pending withdrawal to approved or rejected.
func (w *Withdrawal) Resolve(status WithdrawalStatus, operatorID int64) error {
	if !w.IsPending() {
		return domain.ErrWithdrawalResolved
	}
	if status != WithdrawalApproved && status != WithdrawalRejected {
		return domain.ErrInvalidArgument
	}
	now := time.Now()
	w.Status = status
	w.ResolvedAt = &now
	w.ResolvedBy = operatorID
	return nil
}

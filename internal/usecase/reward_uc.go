package usecase

import (
	"context"
	"errors"
	"fmt"

	"telegram-referral-rewards/internal/domain"
	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/infra/logging"
	"telegram-referral-rewards/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ RewardUseCase = (*rewardUC)(nil)

type RedeemResult struct {
	Code       string
	Stars      int64
	NewBalance int64
}

type RewardUseCase interface {
	Balance(ctx context.Context, accountID int64) (int64, error)
	AddStars(ctx context.Context, accountID, amount int64) (int64, error)
	RedeemCode(ctx context.Context, accountID int64, code string) (RedeemResult, error)
	CreateCode(ctx context.Context, code string, stars int64, policy model.CodePolicy, limit int) (*model.RedeemableCode, error)
	ListCodes(ctx context.Context) []*model.RedeemableCode
	RequestWithdrawal(ctx context.Context, accountID, amount int64) (*model.Withdrawal, error)
	ApproveWithdrawal(ctx context.Context, id string, operatorID int64) (*model.Withdrawal, error)
	RejectWithdrawal(ctx context.Context, id string, operatorID int64) (*model.Withdrawal, error)
	ListWithdrawals(ctx context.Context, pendingOnly bool) []*model.Withdrawal
	SetRewardRate(ctx context.Context, stars int64) error
	RewardRate(ctx context.Context) int64
}

type rewardUC struct {
	ledger *Ledger
	notify NotificationUseCase
	log    *zerolog.Logger
}

func NewRewardUseCase(ledger *Ledger, notify NotificationUseCase, logger *zerolog.Logger) *rewardUC {
	return &rewardUC{ledger: ledger, notify: notify, log: logger}
}

func (u *rewardUC) Balance(ctx context.Context, accountID int64) (int64, error) {
	a, ok := u.ledger.Account(accountID)
	if !ok {
		return 0, domain.ErrNotFound
	}
	return a.Stars, nil
}

// AddStars is the operator path for manual top-ups.
func (u *rewardUC) AddStars(ctx context.Context, accountID, amount int64) (int64, error) {
	defer logging.TraceDuration(u.log, "RewardUC.AddStars")()
	bal, err := u.ledger.AddStars(ctx, accountID, amount)
	if err == nil || errors.Is(err, domain.ErrPersistence) {
		metrics.AddStarsAwarded("admin", amount)
	}
	return bal, err
}

func (u *rewardUC) RedeemCode(ctx context.Context, accountID int64, code string) (RedeemResult, error) {
	defer logging.TraceDuration(u.log, "RewardUC.RedeemCode")()

	norm := model.NormalizeCode(code)
	if !model.ValidCode(norm) {
		metrics.IncCodeRedemption("invalid")
		return RedeemResult{Code: norm}, fmt.Errorf("code %q: %w", norm, domain.ErrInvalidArgument)
	}
	stars, bal, err := u.ledger.RedeemCode(ctx, accountID, norm)
	switch {
	case err == nil:
		metrics.IncCodeRedemption("ok")
	case errors.Is(err, domain.ErrPersistence):
		metrics.IncCodeRedemption("ok")
		u.log.Error().Err(err).Int64("tg_id", accountID).Str("code", norm).Msg("redemption kept in memory only")
	case errors.Is(err, domain.ErrCodeNotFound):
		metrics.IncCodeRedemption("not_found")
		return RedeemResult{Code: norm, NewBalance: bal}, err
	case errors.Is(err, domain.ErrCodeExhausted):
		metrics.IncCodeRedemption("exhausted")
		return RedeemResult{Code: norm, NewBalance: bal}, err
	case errors.Is(err, domain.ErrCodeAlreadyUsed):
		metrics.IncCodeRedemption("already_used")
		return RedeemResult{Code: norm, NewBalance: bal}, err
	default:
		return RedeemResult{Code: norm}, err
	}
	metrics.AddStarsAwarded("code", stars)
	u.log.Info().Int64("tg_id", accountID).Str("code", norm).Int64("stars", stars).Msg("code redeemed")
	return RedeemResult{Code: norm, Stars: stars, NewBalance: bal}, err
}

func (u *rewardUC) CreateCode(ctx context.Context, code string, stars int64, policy model.CodePolicy, limit int) (*model.RedeemableCode, error) {
	defer logging.TraceDuration(u.log, "RewardUC.CreateCode")()

	c, err := model.NewRedeemableCode(code, stars, policy, limit)
	if err != nil {
		return nil, err
	}
	err = u.ledger.CreateCode(ctx, c)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		return nil, err
	}
	u.log.Info().Str("code", c.Code).Int64("stars", stars).Str("policy", string(policy)).Msg("code created")
	return c, err
}

func (u *rewardUC) ListCodes(ctx context.Context) []*model.RedeemableCode {
	return u.ledger.Codes()
}

// RequestWithdrawal debits immediately; operators review the request later.
func (u *rewardUC) RequestWithdrawal(ctx context.Context, accountID, amount int64) (*model.Withdrawal, error) {
	defer logging.TraceDuration(u.log, "RewardUC.RequestWithdrawal")()

	w, _, err := u.ledger.RequestWithdrawal(ctx, accountID, amount)
	if w == nil {
		return nil, err
	}
	metrics.IncWithdrawal("requested")
	acc, _ := u.ledger.Account(accountID)
	u.log.Info().Int64("tg_id", accountID).Int64("amount", amount).Str("withdrawal_id", w.ID).Msg("withdrawal requested")
	u.notify.NotifyWithdrawalRequested(ctx, *w, acc)
	return w, err
}

func (u *rewardUC) ApproveWithdrawal(ctx context.Context, id string, operatorID int64) (*model.Withdrawal, error) {
	return u.resolve(ctx, id, model.WithdrawalApproved, operatorID)
}

// RejectWithdrawal returns the debited amount to the account.
func (u *rewardUC) RejectWithdrawal(ctx context.Context, id string, operatorID int64) (*model.Withdrawal, error) {
	return u.resolve(ctx, id, model.WithdrawalRejected, operatorID)
}

func (u *rewardUC) resolve(ctx context.Context, id string, status model.WithdrawalStatus, operatorID int64) (*model.Withdrawal, error) {
	defer logging.TraceDuration(u.log, "RewardUC.ResolveWithdrawal")()

	w, err := u.ledger.ResolveWithdrawal(ctx, id, status, operatorID)
	if w == nil {
		return nil, err
	}
	metrics.IncWithdrawal(string(status))
	if status == model.WithdrawalRejected {
		metrics.AddStarsAwarded("refund", w.Amount)
	}
	acc, _ := u.ledger.Account(w.AccountID)
	u.log.Info().Str("withdrawal_id", id).Str("status", string(status)).Int64("operator_id", operatorID).Msg("withdrawal resolved")
	u.notify.NotifyWithdrawalResolved(ctx, *w, acc.Stars)
	return w, err
}

func (u *rewardUC) ListWithdrawals(ctx context.Context, pendingOnly bool) []*model.Withdrawal {
	return u.ledger.Withdrawals(pendingOnly)
}

func (u *rewardUC) SetRewardRate(ctx context.Context, stars int64) error {
	defer logging.TraceDuration(u.log, "RewardUC.SetRewardRate")()
	if err := u.ledger.SetRewardRate(ctx, stars); err != nil {
		return err
	}
	u.log.Info().Int64("stars", stars).Msg("reward rate changed")
	return nil
}

func (u *rewardUC) RewardRate(ctx context.Context) int64 {
	return u.ledger.RewardRate()
}

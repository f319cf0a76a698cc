package usecase

import (
	"context"
	"sort"

	"telegram-referral-rewards/internal/domain"
	"telegram-referral-rewards/internal/domain/model"
)

// RewardRate returns the stars currently granted per credited referral.
func (l *Ledger) RewardRate() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settings.StarsPerReferral
}

func (l *Ledger) SetRewardRate(ctx context.Context, stars int64) error {
	if stars < 0 {
		return domain.ErrInvalidArgument
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settings.StarsPerReferral = stars
	cs := newChangeSet()
	cs.settings = true
	return l.persist(ctx, cs)
}

func (l *Ledger) CreateCode(ctx context.Context, c *model.RedeemableCode) error {
	if c == nil || !model.ValidCode(c.Code) {
		return domain.ErrInvalidArgument
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.codes[c.Code]; ok {
		return domain.ErrAlreadyExists
	}
	l.codes[c.Code] = c.Clone()
	cs := newChangeSet()
	cs.codes[c.Code] = struct{}{}
	return l.persist(ctx, cs)
}

func (l *Ledger) Code(code string) (*model.RedeemableCode, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.codes[model.NormalizeCode(code)]
	return c.Clone(), ok
}

func (l *Ledger) Codes() []*model.RedeemableCode {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*model.RedeemableCode, 0, len(l.codes))
	for _, c := range l.codes {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// RedeemCode applies code to the account and returns the credited amount and
// the new balance.
func (l *Ledger) RedeemCode(ctx context.Context, accountID int64, code string) (int64, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.accounts[accountID]
	if !ok {
		return 0, 0, domain.ErrNotFound
	}
	code = model.NormalizeCode(code)
	if !model.ValidCode(code) {
		return 0, a.Stars, domain.ErrInvalidArgument
	}
	c, ok := l.codes[code]
	if !ok {
		return 0, a.Stars, domain.ErrCodeNotFound
	}
	if err := c.CanRedeem(accountID); err != nil {
		return 0, a.Stars, err
	}
	if err := a.Credit(c.Stars); err != nil {
		return 0, a.Stars, err
	}
	c.Redeem(accountID)

	cs := newChangeSet()
	cs.accounts[accountID] = struct{}{}
	cs.codes[c.Code] = struct{}{}
	return c.Stars, a.Stars, l.persist(ctx, cs)
}

// RequestWithdrawal debits the account immediately and records a pending
// withdrawal for operator review.
func (l *Ledger) RequestWithdrawal(ctx context.Context, accountID, amount int64) (*model.Withdrawal, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.accounts[accountID]
	if !ok {
		return nil, 0, domain.ErrNotFound
	}
	w, err := model.NewWithdrawal(accountID, amount)
	if err != nil {
		return nil, a.Stars, err
	}
	if err := a.Debit(amount); err != nil {
		return nil, a.Stars, err
	}
	l.withdrawals[w.ID] = w

	cs := newChangeSet()
	cs.accounts[accountID] = struct{}{}
	cs.withdrawals[w.ID] = struct{}{}
	cp := *w
	return &cp, a.Stars, l.persist(ctx, cs)
}

// ResolveWithdrawal approves or rejects a pending withdrawal. Rejection
// returns the amount to the account.
func (l *Ledger) ResolveWithdrawal(ctx context.Context, id string, status model.WithdrawalStatus, operatorID int64) (*model.Withdrawal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.withdrawals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := w.Resolve(status, operatorID); err != nil {
		return nil, err
	}
	cs := newChangeSet()
	cs.withdrawals[id] = struct{}{}
	if status == model.WithdrawalRejected {
		if a, ok := l.accounts[w.AccountID]; ok {
			_ = a.Credit(w.Amount)
			cs.accounts[a.ID] = struct{}{}
		}
	}
	cp := *w
	return &cp, l.persist(ctx, cs)
}

func (l *Ledger) Withdrawal(id string) (*model.Withdrawal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.withdrawals[id]
	if !ok {
		return nil, false
	}
	cp := *w
	return &cp, true
}

// Withdrawals returns copies, newest first. pendingOnly filters resolved ones.
func (l *Ledger) Withdrawals(pendingOnly bool) []*model.Withdrawal {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*model.Withdrawal, 0, len(l.withdrawals))
	for _, w := range l.withdrawals {
		if pendingOnly && !w.IsPending() {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

package usecase

import (
	"context"
	"sort"

	"telegram-referral-rewards/internal/domain"
	"telegram-referral-rewards/internal/domain/model"
)

// Account returns a copy of the account.
func (l *Ledger) Account(id int64) (model.Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[id]
	if !ok {
		return model.Account{}, false
	}
	return *a, true
}

// Accounts returns copies of all accounts ordered by registration time.
func (l *Ledger) Accounts() []model.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Account, 0, len(l.accounts))
	for _, a := range l.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out
}

// EnsureAccount registers a new account or records contact with an existing
// one, flipping removed accounts back to active.
func (l *Ledger) EnsureAccount(ctx context.Context, id int64, username, displayName string) (model.Account, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if a, ok := l.accounts[id]; ok {
		a.Touch()
		if n, err := model.NewAccount(id, username, displayName); err == nil {
			if n.Username != "" {
				a.Username = n.Username
			}
			if n.DisplayName != "" {
				a.DisplayName = n.DisplayName
			}
		}
		cs := newChangeSet()
		cs.accounts[id] = struct{}{}
		return *a, false, l.persist(ctx, cs)
	}

	a, err := model.NewAccount(id, username, displayName)
	if err != nil {
		return model.Account{}, false, err
	}
	l.accounts[id] = a
	cs := newChangeSet()
	cs.accounts[id] = struct{}{}
	return *a, true, l.persist(ctx, cs)
}

// MarkRemoved flags an account whose owner blocked the bot.
func (l *Ledger) MarkRemoved(ctx context.Context, id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	if a.Status == model.AccountRemoved {
		return nil
	}
	a.Status = model.AccountRemoved
	cs := newChangeSet()
	cs.accounts[id] = struct{}{}
	return l.persist(ctx, cs)
}

// ClaimSubscriptionReward sets the one-time subscription flag. It reports
// whether this call flipped it.
func (l *Ledger) ClaimSubscriptionReward(ctx context.Context, id int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if a.SubscriptionRewardClaimed {
		return false, nil
	}
	a.SubscriptionRewardClaimed = true
	cs := newChangeSet()
	cs.accounts[id] = struct{}{}
	return true, l.persist(ctx, cs)
}

// AddStars credits amount to the account and returns the new balance.
// Zero is a legal no-op.
func (l *Ledger) AddStars(ctx context.Context, id, amount int64) (int64, error) {
	if amount < 0 {
		return 0, domain.ErrInvalidArgument
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if amount == 0 {
		return a.Stars, nil
	}
	if err := a.Credit(amount); err != nil {
		return a.Stars, err
	}
	cs := newChangeSet()
	cs.accounts[id] = struct{}{}
	return a.Stars, l.persist(ctx, cs)
}

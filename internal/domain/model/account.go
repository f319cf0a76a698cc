package model

import (
	"strings"
	"time"

	"telegram-referral-rewards/internal/domain"
)

type AccountStatus string

const (
	AccountActive  AccountStatus = "active"
	AccountRemoved AccountStatus = "removed"
)

// Account is a Telegram user known to the bot. The ID is the Telegram user id.
type Account struct {
	ID                        int64
	Username                  string
	DisplayName               string
	Status                    AccountStatus
	Stars                     int64
	SubscriptionRewardClaimed bool
	RegisteredAt              time.Time
	LastSeenAt                time.Time
}

func NewAccount(id int64, username, displayName string) (*Account, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Account{
		ID:           id,
		Username:     strings.TrimPrefix(strings.TrimSpace(username), "@"),
		DisplayName:  strings.TrimSpace(displayName),
		Status:       AccountActive,
		RegisteredAt: now,
		LastSeenAt:   now,
	}, nil
}

func (a *Account) IsZero() bool { return a == nil || a.ID == 0 }

// Touch records contact and reactivates a removed account.
func (a *Account) Touch() {
	a.LastSeenAt = time.Now()
	a.Status = AccountActive
}

// Name returns the best label for messages and exports.
func (a *Account) Name() string {
	switch {
	case a.Username != "":
		return "@" + a.Username
	case a.DisplayName != "":
		return a.DisplayName
	default:
		return "unknown"
	}
}

func (a *Account) Credit(amount int64) error {
	if amount < 0 {
		return domain.ErrInvalidArgument
	}
	a.Stars += amount
	return nil
}

func (a *Account) Debit(amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidArgument
	}
	if a.Stars < amount {
		return domain.ErrInsufficientBalance
	}
	a.Stars -= amount
	return nil
}

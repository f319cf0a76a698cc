package model

import (
	"strings"
	"time"

	"telegram-referral-rewards/internal/domain"
)

// CodePolicy controls how often a code may be redeemed.
type CodePolicy string

const (
	// CodeSingle may be redeemed once per account.
	CodeSingle    CodePolicy = "single"
	CodeUnlimited CodePolicy = "unlimited"
	// CodeCapped may be redeemed Cap times in total.
	CodeCapped CodePolicy = "capped"
)

func ParseCodePolicy(s string) (CodePolicy, error) {
	switch CodePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case CodeSingle:
		return CodeSingle, nil
	case CodeUnlimited:
		return CodeUnlimited, nil
	case CodeCapped, "limited":
		return CodeCapped, nil
	}
	return "", domain.ErrInvalidArgument
}

type RedeemableCode struct {
	Code        string
	Stars       int64
	Policy      CodePolicy
	Cap         int
	Activations int
	UsedBy      []int64
	CreatedAt   time.Time
}

func NewRedeemableCode(code string, stars int64, policy CodePolicy, limit int) (*RedeemableCode, error) {
	code = NormalizeCode(code)
	if !ValidCode(code) || stars <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	switch policy {
	case CodeSingle, CodeUnlimited:
		limit = 0
	case CodeCapped:
		if limit <= 0 {
			return nil, domain.ErrInvalidArgument
		}
	default:
		return nil, domain.ErrInvalidArgument
	}
	return &RedeemableCode{
		Code:      code,
		Stars:     stars,
		Policy:    policy,
		Cap:       limit,
		CreatedAt: time.Now(),
	}, nil
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code is a non-empty uppercase alphanumeric string.
func ValidCode(code string) bool {
	if code == "" {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func (c *RedeemableCode) UsedByAccount(accountID int64) bool {
	for _, id := range c.UsedBy {
		if id == accountID {
			return true
		}
	}
	return false
}

// CanRedeem checks the usage policy for accountID.
func (c *RedeemableCode) CanRedeem(accountID int64) error {
	switch c.Policy {
	case CodeCapped:
		if c.Activations >= c.Cap {
			return domain.ErrCodeExhausted
		}
	case CodeSingle:
		if c.UsedByAccount(accountID) {
			return domain.ErrCodeAlreadyUsed
		}
	}
	return nil
}

// Redeem records a successful activation. Callers check CanRedeem first.
func (c *RedeemableCode) Redeem(accountID int64) {
	c.Activations++
	if !c.UsedByAccount(accountID) {
		c.UsedBy = append(c.UsedBy, accountID)
	}
}

func (c *RedeemableCode) Clone() *RedeemableCode {
	if c == nil {
		return nil
	}
	cp := *c
	cp.UsedBy = append([]int64(nil), c.UsedBy...)
	return &cp
}

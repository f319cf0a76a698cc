package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("unauthorized")

	// Referral funnel
	ErrSelfReferral      = errors.New("self referral is not allowed")
	ErrAlreadyLinked     = errors.New("candidate already linked to another inviter")
	ErrAlreadyCredited   = errors.New("candidate already credited")
	ErrInvalidTransition = errors.New("invalid funnel transition")

	// Rewards
	ErrCodeNotFound        = errors.New("redeemable code not found")
	ErrCodeExhausted       = errors.New("redeemable code exhausted")
	ErrCodeAlreadyUsed     = errors.New("redeemable code already used")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWithdrawalResolved  = errors.New("withdrawal already resolved")

	// Channels
	ErrInvalidChannelID           = errors.New("invalid channel id")
	ErrInsufficientBotPermissions = errors.New("bot is not an administrator of the channel")

	// Infrastructure
	ErrExternalQuery      = errors.New("external query failed")
	ErrPersistence        = errors.New("ledger persistence failed")
	ErrNotification       = errors.New("notification delivery failed")
	ErrInvalidExecContext = errors.New("invalid execution context")
)

// Kind groups errors for transport-level mapping.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindPermission Kind = "permission"
	KindConflict   Kind = "conflict"
	KindExternal   Kind = "external"
	KindPersist    Kind = "persistence"
	KindInternal   Kind = "internal"
)

// KindOf classifies err by the first matching sentinel in its chain.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrSelfReferral),
		errors.Is(err, ErrInvalidChannelID), errors.Is(err, ErrWithdrawalResolved),
		errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrInvalidTransition):
		return KindValidation
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrCodeNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientBotPermissions), errors.Is(err, ErrUnauthorized):
		return KindPermission
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrAlreadyLinked),
		errors.Is(err, ErrAlreadyCredited), errors.Is(err, ErrCodeExhausted),
		errors.Is(err, ErrCodeAlreadyUsed):
		return KindConflict
	case errors.Is(err, ErrExternalQuery), errors.Is(err, ErrNotification):
		return KindExternal
	case errors.Is(err, ErrPersistence):
		return KindPersist
	default:
		return KindInternal
	}
}

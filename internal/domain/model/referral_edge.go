package model

import (
	"strconv"
	"strings"
	"time"

	"telegram-referral-rewards/internal/domain"
)

// ReferralEdge is the inviter side of the referral graph.
type ReferralEdge struct {
	InviterID   int64
	Token       string
	InviterName string
	Count       int
	Activations []int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewReferralEdge(inviterID int64, inviterName string) (*ReferralEdge, error) {
	if inviterID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &ReferralEdge{
		InviterID:   inviterID,
		Token:       InviteToken(inviterID),
		InviterName: inviterName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (e *ReferralEdge) HasActivation(candidateID int64) bool {
	for _, id := range e.Activations {
		if id == candidateID {
			return true
		}
	}
	return false
}

// AddActivation appends candidateID once; it reports whether the list changed.
func (e *ReferralEdge) AddActivation(candidateID int64) bool {
	if e.HasActivation(candidateID) {
		return false
	}
	e.Activations = append(e.Activations, candidateID)
	e.UpdatedAt = time.Now()
	return true
}

func (e *ReferralEdge) IncCount() {
	e.Count++
	e.UpdatedAt = time.Now()
}

// Clone returns a deep copy safe to hand out of the ledger.
func (e *ReferralEdge) Clone() *ReferralEdge {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Activations = append([]int64(nil), e.Activations...)
	return &cp
}

const refPrefix = "ref_"

// InviteToken is the start payload identifying an inviter.
func InviteToken(inviterID int64) string {
	return strconv.FormatInt(inviterID, 10)
}

// ParseInviteToken accepts "<id>" and "ref_<id>" payloads.
func ParseInviteToken(payload string) (int64, error) {
	p := strings.TrimPrefix(strings.TrimSpace(payload), refPrefix)
	if p == "" {
		return 0, domain.ErrInvalidArgument
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return 0, domain.ErrInvalidArgument
		}
	}
	id, err := strconv.ParseInt(p, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	return id, nil
}

// InviteLink builds the deep link a user shares with friends.
func InviteLink(botUsername string, inviterID int64) string {
	return "https://t.me/" + strings.TrimPrefix(botUsername, "@") + "?start=" + InviteToken(inviterID)
}

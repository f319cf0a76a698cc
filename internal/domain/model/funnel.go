package model

import (
	"time"

	"telegram-referral-rewards/internal/domain"
)

// FunnelStage is the position of a candidate in the referral funnel.
type FunnelStage string

const (
	StageUnlinked FunnelStage = "unlinked"
	StageLinked   FunnelStage = "linked"
	StageCredited FunnelStage = "credited"
)

// CreditPath records which signal produced the credit.
type CreditPath string

const (
	CreditViaBotCheck   CreditPath = "bot_check"
	CreditViaMembership CreditPath = "membership"
	CreditViaCheckNow   CreditPath = "check_now"
	CreditViaManual     CreditPath = "manual"
)

// Funnel is the per-candidate state. A zero Funnel is Unlinked.
// Linked and Credited always carry the inviter.
type Funnel struct {
	CandidateID int64
	Stage       FunnelStage
	InviterID   int64
	CreditedVia CreditPath
	LinkedAt    time.Time
	CreditedAt  *time.Time
}

func UnlinkedFunnel(candidateID int64) Funnel {
	return Funnel{CandidateID: candidateID, Stage: StageUnlinked}
}

func (f Funnel) IsLinked() bool   { return f.Stage == StageLinked }
func (f Funnel) IsCredited() bool { return f.Stage == StageCredited }

// Inviter returns the inviter for Linked and Credited funnels.
func (f Funnel) Inviter() (int64, bool) {
	if f.Stage == StageLinked || f.Stage == StageCredited {
		return f.InviterID, true
	}
	return 0, false
}

// Link moves Unlinked to Linked(inviter).
func (f Funnel) Link(inviterID int64) (Funnel, error) {
	if inviterID <= 0 {
		return f, domain.ErrInvalidArgument
	}
	if inviterID == f.CandidateID {
		return f, domain.ErrSelfReferral
	}
	if f.Stage != StageUnlinked && f.Stage != "" {
		if f.InviterID == inviterID {
			return f, nil
		}
		return f, domain.ErrAlreadyLinked
	}
	return Funnel{
		CandidateID: f.CandidateID,
		Stage:       StageLinked,
		InviterID:   inviterID,
		LinkedAt:    time.Now(),
	}, nil
}

// Credit moves Linked(inviter) to Credited(inviter).
func (f Funnel) Credit(via CreditPath) (Funnel, error) {
	switch f.Stage {
	case StageCredited:
		return f, domain.ErrAlreadyCredited
	case StageLinked:
		now := time.Now()
		f.Stage = StageCredited
		f.CreditedVia = via
		f.CreditedAt = &now
		return f, nil
	default:
		return f, domain.ErrInvalidTransition
	}
}

// Reset moves Credited back to Linked, keeping the inviter.
func (f Funnel) Reset() Funnel {
	if f.Stage != StageCredited {
		return f
	}
	f.Stage = StageLinked
	f.CreditedVia = ""
	f.CreditedAt = nil
	return f
}

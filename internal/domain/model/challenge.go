package model

import (
	"strings"
	"time"
)

// ChallengeState is the bot-check state of a chat session.
type ChallengeState string

const (
	ChallengeIssued         ChallengeState = "issued"
	ChallengeAwaitingAnswer ChallengeState = "awaiting_answer"
	ChallengePassed         ChallengeState = "passed"
)

// ChallengeSession tracks the bot-check for one chat.
type ChallengeSession struct {
	SessionID      int64          `json:"session_id"`
	State          ChallengeState `json:"state"`
	Secret         string         `json:"secret,omitempty"`
	PendingInviter int64          `json:"pending_inviter,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (s *ChallengeSession) IsPassed() bool { return s != nil && s.State == ChallengePassed }

// Matches compares an answer against the secret, trimmed and case-insensitive.
func (s *ChallengeSession) Matches(answer string) bool {
	if s == nil || s.Secret == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(s.Secret))
}

// Issue stores a fresh secret and waits for the answer.
func (s *ChallengeSession) Issue(word string) {
	s.Secret = word
	s.State = ChallengeAwaitingAnswer
	s.UpdatedAt = time.Now()
}

func (s *ChallengeSession) Pass() {
	s.State = ChallengePassed
	s.Secret = ""
	s.UpdatedAt = time.Now()
}

package repository

import (
	"context"

	"telegram-referral-rewards/internal/domain/model"
)

// ChallengeSessionRepository keeps bot-check sessions. Get returns (nil, nil)
// when no session exists.
type ChallengeSessionRepository interface {
	Get(ctx context.Context, sessionID int64) (*model.ChallengeSession, error)
	Save(ctx context.Context, s *model.ChallengeSession) error
	Delete(ctx context.Context, sessionID int64) error
}

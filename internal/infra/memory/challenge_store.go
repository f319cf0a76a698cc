// Package memory holds process-local stores for state that is allowed to be
// lost on restart.
package memory

import (
	"context"
	"sync"

	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/domain/ports/repository"
)

var _ repository.ChallengeSessionRepository = (*ChallengeStore)(nil)

// ChallengeStore keeps bot-check sessions in a map. Sessions do not survive a
// restart; the next contact gets a fresh challenge.
type ChallengeStore struct {
	mu       sync.RWMutex
	sessions map[int64]model.ChallengeSession
}

func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{sessions: map[int64]model.ChallengeSession{}}
}

func (s *ChallengeStore) Get(_ context.Context, sessionID int64) (*model.ChallengeSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *ChallengeStore) Save(_ context.Context, sess *model.ChallengeSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.SessionID] = *sess
	return nil
}

func (s *ChallengeStore) Delete(_ context.Context, sessionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

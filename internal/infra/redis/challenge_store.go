package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/domain/ports/repository"
	"telegram-referral-rewards/internal/infra/metrics"
)

var _ repository.ChallengeSessionRepository = (*ChallengeStore)(nil)

// ChallengeStore keeps bot-check sessions in Redis so a restart or another
// replica does not re-challenge users who already passed.
type ChallengeStore struct {
	client RedisClient
	ttl    time.Duration
}

func NewChallengeStore(client RedisClient, ttl time.Duration) *ChallengeStore {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &ChallengeStore{client: client, ttl: ttl}
}

func (s *ChallengeStore) key(sessionID int64) string {
	return fmt.Sprintf("challenge:%d", sessionID)
}

func (s *ChallengeStore) Get(ctx context.Context, sessionID int64) (*model.ChallengeSession, error) {
	data, err := s.client.Get(ctx, s.key(sessionID))
	if errors.Is(err, Nil) {
		metrics.IncStateLookup("challenge", "miss")
		return nil, nil
	}
	if err != nil {
		metrics.IncStateLookup("challenge", "error")
		return nil, err
	}
	var sess model.ChallengeSession
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		metrics.IncStateLookup("challenge", "error")
		return nil, err
	}
	metrics.IncStateLookup("challenge", "hit")
	return &sess, nil
}

func (s *ChallengeStore) Save(ctx context.Context, sess *model.ChallengeSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(sess.SessionID), data, s.ttl)
}

func (s *ChallengeStore) Delete(ctx context.Context, sessionID int64) error {
	return s.client.Del(ctx, s.key(sessionID))
}

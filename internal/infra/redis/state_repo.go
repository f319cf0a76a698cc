package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"telegram-referral-rewards/internal/domain/ports/repository"
	"telegram-referral-rewards/internal/infra/metrics"
)

var _ repository.StateRepository = (*StateRepo)(nil)

// StateRepo manages admin conversation state in Redis. GetState returns
// (nil, nil) when no conversation is in progress.
type StateRepo struct {
	client RedisClient
	ttl    time.Duration
}

func NewStateRepo(client RedisClient) *StateRepo {
	return &StateRepo{
		client: client,
		ttl:    15 * time.Minute, // Give admins 15 minutes to complete any conversational flow.
	}
}

func (s *StateRepo) stateKey(tgID int64) string {
	return fmt.Sprintf("conv_state:%d", tgID)
}

func (s *StateRepo) SetState(ctx context.Context, tgID int64, state *repository.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.stateKey(tgID), data, s.ttl)
}

func (s *StateRepo) GetState(ctx context.Context, tgID int64) (*repository.ConversationState, error) {
	data, err := s.client.Get(ctx, s.stateKey(tgID))
	if errors.Is(err, Nil) {
		metrics.IncStateLookup("conversation", "miss")
		return nil, nil
	}
	if err != nil {
		metrics.IncStateLookup("conversation", "error")
		return nil, err
	}

	var state repository.ConversationState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		metrics.IncStateLookup("conversation", "error")
		return nil, err
	}
	metrics.IncStateLookup("conversation", "hit")
	return &state, nil
}

func (s *StateRepo) ClearState(ctx context.Context, tgID int64) error {
	return s.client.Del(ctx, s.stateKey(tgID))
}

package memory

import (
	"context"
	"maps"
	"sync"

	"telegram-referral-rewards/internal/domain/ports/repository"
)

var _ repository.StateRepository = (*StateStore)(nil)

// StateStore keeps conversation steps when Redis is not configured.
type StateStore struct {
	mu     sync.Mutex
	states map[int64]repository.ConversationState
}

func NewStateStore() *StateStore {
	return &StateStore{states: map[int64]repository.ConversationState{}}
}

func (s *StateStore) SetState(_ context.Context, tgID int64, state *repository.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := repository.ConversationState{Step: state.Step, Data: maps.Clone(state.Data)}
	s.states[tgID] = cp
	return nil
}

// GetState returns (nil, nil) when the user has no pending step.
func (s *StateStore) GetState(_ context.Context, tgID int64) (*repository.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[tgID]
	if !ok {
		return nil, nil
	}
	return &repository.ConversationState{Step: st.Step, Data: maps.Clone(st.Data)}, nil
}

func (s *StateStore) ClearState(_ context.Context, tgID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, tgID)
	return nil
}

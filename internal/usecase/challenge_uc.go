package usecase

import (
	"context"
	"errors"
	"math/rand"
	"strings"

	"telegram-referral-rewards/internal/domain"
	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/domain/ports/repository"
	"telegram-referral-rewards/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ ChallengeUseCase = (*challengeUC)(nil)

// ChallengeOutcome is the result of issuing or answering a bot-check.
type ChallengeOutcome struct {
	Passed bool
	// Word is the secret the user must type back; empty once passed.
	Word string
	// JustPassed is set only on the call that moved the session to Passed.
	JustPassed     bool
	PendingInviter int64
}

// ChallengeUseCase runs the per-chat bot-check.
type ChallengeUseCase interface {
	Begin(ctx context.Context, sessionID, pendingInviter int64) (ChallengeOutcome, error)
	Answer(ctx context.Context, sessionID int64, text string) (ChallengeOutcome, error)
	Bypass(ctx context.Context, sessionID int64) (ChallengeOutcome, error)
	IsPassed(ctx context.Context, sessionID int64) (bool, error)
	IsAwaiting(ctx context.Context, sessionID int64) (bool, error)
}

type challengeUC struct {
	sessions repository.ChallengeSessionRepository
	words    []string
	pick     func(n int) int
	log      *zerolog.Logger
}

// DefaultChallengeWords is used when the configuration provides none.
var DefaultChallengeWords = []string{
	"star", "planet", "cosmos", "galaxy", "universe",
	"rocket", "satellite", "comet", "asteroid", "meteor",
	"sun", "moon", "earth", "mars", "jupiter",
	"saturn", "uranus", "neptune", "pluto", "mercury",
	"venus", "orbit", "constellation", "telescope", "astronaut",
	"investment", "income", "profit", "finance", "economy",
}

func NewChallengeUseCase(sessions repository.ChallengeSessionRepository, words []string, logger *zerolog.Logger) *challengeUC {
	clean := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			clean = append(clean, w)
		}
	}
	if len(clean) == 0 {
		clean = DefaultChallengeWords
	}
	return &challengeUC{sessions: sessions, words: clean, pick: rand.Intn, log: logger}
}

// WithPicker replaces the random index source; tests use it for determinism.
func (u *challengeUC) WithPicker(pick func(n int) int) *challengeUC {
	u.pick = pick
	return u
}

func (u *challengeUC) randomWord() string {
	return u.words[u.pick(len(u.words))]
}

func (u *challengeUC) load(ctx context.Context, sessionID int64) (*model.ChallengeSession, error) {
	s, err := u.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &model.ChallengeSession{SessionID: sessionID, State: model.ChallengeIssued}
	}
	return s, nil
}

// Begin issues a challenge unless the session already passed. A repeated
// Begin while awaiting an answer replaces the word.
func (u *challengeUC) Begin(ctx context.Context, sessionID, pendingInviter int64) (ChallengeOutcome, error) {
	defer logging.TraceDuration(u.log, "ChallengeUC.Begin")()
	if sessionID == 0 {
		return ChallengeOutcome{}, domain.ErrInvalidArgument
	}

	s, err := u.load(ctx, sessionID)
	if err != nil {
		return ChallengeOutcome{}, err
	}
	if s.IsPassed() {
		return ChallengeOutcome{Passed: true}, nil
	}
	if pendingInviter != 0 {
		s.PendingInviter = pendingInviter
	}
	s.Issue(u.randomWord())
	if err := u.sessions.Save(ctx, s); err != nil {
		return ChallengeOutcome{}, err
	}
	u.log.Debug().Int64("session_id", sessionID).Msg("bot-check issued")
	return ChallengeOutcome{Word: s.Secret, PendingInviter: s.PendingInviter}, nil
}

// Answer evaluates free text. A wrong answer issues a new word; there is no
// retry limit.
func (u *challengeUC) Answer(ctx context.Context, sessionID int64, text string) (ChallengeOutcome, error) {
	defer logging.TraceDuration(u.log, "ChallengeUC.Answer")()

	s, err := u.load(ctx, sessionID)
	if err != nil {
		return ChallengeOutcome{}, err
	}
	if s.IsPassed() {
		return ChallengeOutcome{Passed: true}, nil
	}
	if s.State != model.ChallengeAwaitingAnswer {
		return ChallengeOutcome{}, errors.New("no challenge issued for session")
	}

	if s.Matches(text) {
		inviter := s.PendingInviter
		s.Pass()
		if err := u.sessions.Save(ctx, s); err != nil {
			return ChallengeOutcome{}, err
		}
		u.log.Info().Int64("session_id", sessionID).Msg("bot-check passed")
		return ChallengeOutcome{Passed: true, JustPassed: true, PendingInviter: inviter}, nil
	}

	s.Issue(u.randomWord())
	if err := u.sessions.Save(ctx, s); err != nil {
		return ChallengeOutcome{}, err
	}
	return ChallengeOutcome{Word: s.Secret, PendingInviter: s.PendingInviter}, nil
}

// Bypass marks the session passed without an answer; used for admin commands
// and menu buttons.
func (u *challengeUC) Bypass(ctx context.Context, sessionID int64) (ChallengeOutcome, error) {
	s, err := u.load(ctx, sessionID)
	if err != nil {
		return ChallengeOutcome{}, err
	}
	if s.IsPassed() {
		return ChallengeOutcome{Passed: true}, nil
	}
	inviter := s.PendingInviter
	s.Pass()
	if err := u.sessions.Save(ctx, s); err != nil {
		return ChallengeOutcome{}, err
	}
	return ChallengeOutcome{Passed: true, JustPassed: true, PendingInviter: inviter}, nil
}

func (u *challengeUC) IsPassed(ctx context.Context, sessionID int64) (bool, error) {
	s, err := u.sessions.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return s.IsPassed(), nil
}

func (u *challengeUC) IsAwaiting(ctx context.Context, sessionID int64) (bool, error) {
	s, err := u.sessions.Get(ctx, sessionID)
	if err != nil || s == nil {
		return false, err
	}
	return s.State == model.ChallengeAwaitingAnswer, nil
}

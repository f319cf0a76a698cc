//go:build !integration

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/domain/ports/repository"
)

func TestStateRepo(t *testing.T) {
	ctx := context.Background()
	cli := newFakeClient()
	repo := NewStateRepo(cli)

	t.Run("missing state is nil without error", func(t *testing.T) {
		st, err := repo.GetState(ctx, 1)
		if err != nil || st != nil {
			t.Fatalf("expected (nil, nil), got (%+v, %v)", st, err)
		}
	})

	t.Run("set get clear", func(t *testing.T) {
		want := &repository.ConversationState{Step: "awaiting_code", Data: map[string]string{"policy": "single"}}
		if err := repo.SetState(ctx, 1, want); err != nil {
			t.Fatalf("SetState: %v", err)
		}
		if cli.expires["conv_state:1"] != 15*time.Minute {
			t.Errorf("expected 15m ttl, got %v", cli.expires["conv_state:1"])
		}
		got, err := repo.GetState(ctx, 1)
		if err != nil || got.Step != "awaiting_code" || got.Data["policy"] != "single" {
			t.Fatalf("unexpected state %+v err=%v", got, err)
		}
		if err := repo.ClearState(ctx, 1); err != nil {
			t.Fatalf("ClearState: %v", err)
		}
		if got, _ := repo.GetState(ctx, 1); got != nil {
			t.Errorf("expected cleared state, got %+v", got)
		}
	})

	t.Run("backend errors surface", func(t *testing.T) {
		broken := newFakeClient()
		broken.GetErr = errors.New("connection reset")
		if _, err := NewStateRepo(broken).GetState(ctx, 1); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestChallengeStore(t *testing.T) {
	ctx := context.Background()
	store := NewChallengeStore(newFakeClient(), time.Hour)

	if s, err := store.Get(ctx, 5); err != nil || s != nil {
		t.Fatalf("expected no session, got %+v err=%v", s, err)
	}
	sess := &model.ChallengeSession{SessionID: 5, PendingInviter: 9}
	sess.Issue("comet")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Get(ctx, 5)
	if err != nil || got.Secret != "comet" || got.State != model.ChallengeAwaitingAnswer || got.PendingInviter != 9 {
		t.Fatalf("unexpected session %+v err=%v", got, err)
	}
	if err := store.Delete(ctx, 5); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s, _ := store.Get(ctx, 5); s != nil {
		t.Errorf("expected deleted session, got %+v", s)
	}
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	cli := newFakeClient()
	rl := NewRateLimiter(cli)
	key := UserCommandKey(7, "check")

	for i := 1; i <= 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("call %d should pass, got ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := rl.Allow(ctx, key, 3, time.Minute); ok {
		t.Error("fourth call inside the window must be limited")
	}
	if cli.expires[key] != time.Minute {
		t.Errorf("window not applied on first hit, got %v", cli.expires[key])
	}
}

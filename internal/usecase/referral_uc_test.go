//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"telegram-referral-rewards/internal/domain"
	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/infra/memory"
	"telegram-referral-rewards/internal/usecase"
)

const (
	chanA int64 = -1001
	chanB int64 = -1002
)

func newReferralUC(f *fixture) usecase.ReferralUseCase {
	gate := usecase.NewVerificationGate(f.Ledger, f.Members, f.Logger)
	challenge := usecase.NewChallengeUseCase(f.Challenges, []string{"comet"}, f.Logger)
	return usecase.NewReferralUseCase(f.Ledger, gate, challenge, f.notifier(), memory.NewKeyedLocker(), "RefBot", f.Logger)
}

func joined(chatID, userID int64) usecase.MembershipChangeEvent {
	return usecase.MembershipChangeEvent{ChatID: chatID, UserID: userID, OldStatus: model.MemberStatusLeft, NewStatus: model.MemberStatusMember}
}

func stars(f *fixture, id int64) int64 {
	a, _ := f.Ledger.Account(id)
	return a.Stars
}

func creditNotices(f *fixture, inviter int64) int {
	n := 0
	for _, m := range f.Bot.To(inviter) {
		if strings.HasPrefix(m.Text, "notify_inviter_credited") {
			n++
		}
	}
	return n
}

func TestReferralUseCase_EndToEndTwoChannels(t *testing.T) {
	ctx := context.Background()

	// Arrange
	f := newFixture()
	f.account(1, "inviter")
	f.channel(chanA, "A")
	f.channel(chanB, "B")
	uc := newReferralUC(f)

	// Act 1: candidate follows the invite link
	res, err := uc.Enter(ctx, usecase.EntryEvent{CandidateID: 2, Username: "cand", Token: "1"})
	if err != nil {
		t.Fatalf("Enter failed: %v", err)
	}
	if !res.Created || !res.Linked || res.InviterID != 1 {
		t.Fatalf("unexpected entry result: %+v", res)
	}
	if res.Challenge.Word != "comet" {
		t.Fatalf("expected a bot-check word, got %+v", res.Challenge)
	}

	// Act 2: wrong answer, then the right one in another case with spaces
	out, _ := uc.AnswerChallenge(ctx, 2, "planet")
	if out.Passed {
		t.Fatal("wrong answer must not pass")
	}
	out, err = uc.AnswerChallenge(ctx, 2, "  COMET ")
	if err != nil || !out.Passed {
		t.Fatalf("expected pass, got %+v err=%v", out, err)
	}
	if stars(f, 1) != 0 {
		t.Fatal("no channel joined yet; inviter must not be paid")
	}

	// Act 3: join A only
	f.Members.Set(chanA, 2, model.MemberStatusMember)
	cr, _ := uc.OnMembershipChange(ctx, joined(chanA, 2))
	if cr.Credited || cr.Skipped != usecase.SkipNotVerified {
		t.Fatalf("expected not_verified after one channel, got %+v", cr)
	}

	// Act 4: join B
	f.Members.Set(chanB, 2, model.MemberStatusAdministrator)
	cr, err = uc.OnMembershipChange(ctx, joined(chanB, 2))
	if err != nil || !cr.Credited {
		t.Fatalf("expected credit, got %+v err=%v", cr, err)
	}

	// Assert
	if got := stars(f, 1); got != 2 {
		t.Errorf("expected inviter balance 2, got %d", got)
	}
	if e, _ := f.Ledger.Edge(1); e.Count != 1 {
		t.Errorf("expected count 1, got %d", e.Count)
	}
	if fu := f.Ledger.Funnel(2); !fu.IsCredited() || fu.CreditedVia != model.CreditViaMembership {
		t.Errorf("unexpected funnel: %+v", fu)
	}
	if creditNotices(f, 1) != 1 {
		t.Errorf("expected one credit notice, got %d", creditNotices(f, 1))
	}
	a, _ := f.Ledger.Account(2)
	if !a.SubscriptionRewardClaimed {
		t.Error("expected the subscription flag to be set")
	}
	if stars(f, 2) != 0 {
		t.Error("the subscription flag must not carry stars")
	}

	// Act 5: a late check-now changes nothing
	check, err := uc.CheckNow(ctx, 2)
	if err != nil || !check.Verified || check.Credit.Skipped != usecase.SkipAlreadyCredited {
		t.Fatalf("unexpected check result: %+v err=%v", check, err)
	}
	if stars(f, 1) != 2 || creditNotices(f, 1) != 1 {
		t.Error("duplicate signal must not pay or notify again")
	}
	if thanks := thankYous(f, 2); thanks != 1 {
		t.Errorf("expected the candidate to be thanked once, got %d", thanks)
	}
}

func thankYous(f *fixture, id int64) int {
	n := 0
	for _, m := range f.Bot.To(id) {
		if m.Text == "notify_candidate_verified" {
			n++
		}
	}
	return n
}

func TestReferralUseCase_BotCheckPassWhileSubscribed(t *testing.T) {
	ctx := context.Background()

	t.Run("linked candidate is credited and thanked once", func(t *testing.T) {
		// Arrange
		f := newFixture()
		f.account(1, "inviter")
		f.channel(chanA, "A")
		f.Members.Set(chanA, 2, model.MemberStatusMember)
		uc := newReferralUC(f)
		_, _ = uc.Enter(ctx, usecase.EntryEvent{CandidateID: 2, Token: "1"})

		// Act
		out, err := uc.AnswerChallenge(ctx, 2, "comet")

		// Assert
		if err != nil || !out.JustPassed {
			t.Fatalf("expected a fresh pass, got %+v err=%v", out, err)
		}
		if fu := f.Ledger.Funnel(2); !fu.IsCredited() || fu.CreditedVia != model.CreditViaBotCheck {
			t.Fatalf("expected a bot-check credit, got %+v", fu)
		}
		a, _ := f.Ledger.Account(2)
		if !a.SubscriptionRewardClaimed {
			t.Error("expected the subscription flag to be set")
		}
		if n := thankYous(f, 2); n != 1 {
			t.Errorf("expected one thank-you, got %d", n)
		}

		// a later check-now must not thank again
		_, _ = uc.CheckNow(ctx, 2)
		if n := thankYous(f, 2); n != 1 {
			t.Errorf("expected still one thank-you, got %d", n)
		}
	})

	t.Run("candidate without inviter gets the flag", func(t *testing.T) {
		f := newFixture()
		f.channel(chanA, "A")
		f.Members.Set(chanA, 3, model.MemberStatusMember)
		uc := newReferralUC(f)
		_, _ = uc.Enter(ctx, usecase.EntryEvent{CandidateID: 3})

		_, _ = uc.AnswerChallenge(ctx, 3, "comet")

		a, _ := f.Ledger.Account(3)
		if !a.SubscriptionRewardClaimed || thankYous(f, 3) != 1 {
			t.Errorf("expected flag and one thank-you, got flag=%v thanks=%d", a.SubscriptionRewardClaimed, thankYous(f, 3))
		}
	})

	t.Run("unsubscribed candidate is not flagged", func(t *testing.T) {
		f := newFixture()
		f.channel(chanA, "A")
		uc := newReferralUC(f)
		_, _ = uc.Enter(ctx, usecase.EntryEvent{CandidateID: 4})

		_, _ = uc.AnswerChallenge(ctx, 4, "comet")

		a, _ := f.Ledger.Account(4)
		if a.SubscriptionRewardClaimed || thankYous(f, 4) != 0 {
			t.Error("the flag must wait for the gate")
		}
	})
}

func TestReferralUseCase_RateReadAtCreditTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.account(1, "inviter")
	f.channel(chanA, "A")
	uc := newReferralUC(f)

	_, _ = uc.Enter(ctx, usecase.EntryEvent{CandidateID: 2, Token: "ref_1"})
	_, _ = uc.AnswerChallenge(ctx, 2, "comet")

	// The rate changes from 2 to 5 after linking but before verification.
	if err := f.Ledger.SetRewardRate(ctx, 5); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	f.Members.Set(chanA, 2, model.MemberStatusMember)
	cr, err := uc.CheckNow(ctx, 2)
	if err != nil {
		t.Fatalf("CheckNow: %v", err)
	}
	if cr.Credit.Amount != 5 || stars(f, 1) != 5 {
		t.Errorf("expected 5 stars at the new rate, got amount=%d balance=%d", cr.Credit.Amount, stars(f, 1))
	}
}

func TestReferralUseCase_ConcurrentSignalsCreditOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.account(1, "inviter")
	f.channel(chanA, "A")
	uc := newReferralUC(f)
	_, _ = uc.Enter(ctx, usecase.EntryEvent{CandidateID: 2, Token: "1"})
	f.Members.Set(chanA, 2, model.MemberStatusMember)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 3 {
			case 0:
				_, _ = uc.OnMembershipChange(ctx, joined(chanA, 2))
			case 1:
				_, _ = uc.CheckNow(ctx, 2)
			default:
				_, _ = uc.AnswerChallenge(ctx, 2, "comet")
			}
		}(i)
	}
	wg.Wait()

	if got := stars(f, 1); got != 2 {
		t.Errorf("expected exactly one reward of 2, got %d", got)
	}
	if e, _ := f.Ledger.Edge(1); e.Count != 1 {
		t.Errorf("expected count 1, got %d", e.Count)
	}
	if n := creditNotices(f, 1); n != 1 {
		t.Errorf("expected one notification, got %d", n)
	}
}

func TestReferralUseCase_Links(t *testing.T) {
	ctx := context.Background()

	t.Run("self referral is ignored", func(t *testing.T) {
		f := newFixture()
		uc := newReferralUC(f)
		res, err := uc.Enter(ctx, usecase.EntryEvent{CandidateID: 5, Token: "5"})
		if err != nil {
			t.Fatalf("Enter: %v", err)
		}
		if res.Linked || f.Ledger.Funnel(5).Stage != model.StageUnlinked {
			t.Errorf("self referral must not link: %+v", res)
		}
	})

	t.Run("second invite link does not steal the candidate", func(t *testing.T) {
		f := newFixture()
		f.account(1, "first")
		f.account(3, "second")
		uc := newReferralUC(f)
		_, _ = uc.Enter(ctx, usecase.EntryEvent{CandidateID: 2, Token: "1"})
		res, err := uc.Enter(ctx, usecase.EntryEvent{CandidateID: 2, Token: "3"})
		if err != nil {
			t.Fatalf("Enter: %v", err)
		}
		if res.Linked || res.InviterID != 1 {
			t.Errorf("expected the first inviter to be kept, got %+v", res)
		}
	})

	t.Run("garbage and unknown inviter tokens are ignored", func(t *testing.T) {
		f := newFixture()
		uc := newReferralUC(f)
		for _, tok := range []string{"abc", "ref_", "-4", "999"} {
			res, err := uc.Enter(ctx, usecase.EntryEvent{CandidateID: 2, Token: tok})
			if err != nil || res.Linked {
				t.Errorf("token %q: expected ignored, got %+v err=%v", tok, res, err)
			}
		}
	})

	t.Run("new account notifies operators", func(t *testing.T) {
		f := newFixture()
		uc := newReferralUC(f)
		_, _ = uc.Enter(ctx, usecase.EntryEvent{CandidateID: 2, Username: "x"})
		_, _ = uc.Enter(ctx, usecase.EntryEvent{CandidateID: 2, Username: "x"})
		if n := len(f.Bot.To(testOperator)); n != 1 {
			t.Errorf("expected one operator notice, got %d", n)
		}
	})
}

func TestReferralUseCase_GateBlocksCredit(t *testing.T) {
	ctx := context.Background()

	t.Run("query failure is fail-closed", func(t *testing.T) {
		f := newFixture()
		f.account(1, "inviter")
		f.channel(chanA, "A")
		uc := newReferralUC(f)
		_, _ = uc.Enter(ctx, usecase.EntryEvent{CandidateID: 2, Token: "1"})
		f.Members.Fail[[2]int64{chanA, 2}] = errors.New("telegram 500")

		cr, err := uc.AttemptCredit(ctx, 2, model.CreditViaCheckNow)
		if err != nil || cr.Credited || cr.Skipped != usecase.SkipNotVerified {
			t.Fatalf("expected not_verified, got %+v err=%v", cr, err)
		}
		if stars(f, 1) != 0 || f.Ledger.Funnel(2).IsCredited() {
			t.Error("nothing must change while the gate is incomplete")
		}
	})

	t.Run("no inviter is a no-op", func(t *testing.T) {
		f := newFixture()
		uc := newReferralUC(f)
		cr, err := uc.AttemptCredit(ctx, 2, model.CreditViaCheckNow)
		if err != nil || cr.Skipped != usecase.SkipNoInviter {
			t.Errorf("expected no_inviter, got %+v err=%v", cr, err)
		}
	})

	t.Run("bot-check pass with no channels credits immediately", func(t *testing.T) {
		f := newFixture()
		f.account(1, "inviter")
		uc := newReferralUC(f)
		_, _ = uc.Enter(ctx, usecase.EntryEvent{CandidateID: 2, Token: "1"})
		out, err := uc.BypassChallenge(ctx, 2)
		if err != nil || !out.JustPassed {
			t.Fatalf("bypass: %+v err=%v", out, err)
		}
		if fu := f.Ledger.Funnel(2); !fu.IsCredited() || fu.CreditedVia != model.CreditViaBotCheck {
			t.Errorf("expected credit via bot_check, got %+v", fu)
		}
	})
}

func TestReferralUseCase_MembershipEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.account(1, "inviter")
	f.channel(chanA, "A")
	uc := newReferralUC(f)
	_, _ = uc.Enter(ctx, usecase.EntryEvent{CandidateID: 2, Token: "1"})
	f.Members.Set(chanA, 2, model.MemberStatusMember)

	cases := []struct {
		name string
		ev   usecase.MembershipChangeEvent
	}{
		{"channel that is not required", joined(-1009, 2)},
		{"leaving", usecase.MembershipChangeEvent{ChatID: chanA, UserID: 2, OldStatus: model.MemberStatusMember, NewStatus: model.MemberStatusLeft}},
		{"already a member", usecase.MembershipChangeEvent{ChatID: chanA, UserID: 2, OldStatus: model.MemberStatusMember, NewStatus: model.MemberStatusAdministrator}},
		{"unknown user", joined(chanA, 77)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cr, err := uc.OnMembershipChange(ctx, tc.ev)
			if err != nil || cr.Credited {
				t.Errorf("expected ignored event, got %+v err=%v", cr, err)
			}
		})
	}
	if f.Ledger.Funnel(2).IsCredited() {
		t.Error("ignored events must not credit")
	}
}

func TestReferralUseCase_ManualCredit(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.account(1, "inviter")
	f.account(2, "cand")
	f.channel(chanA, "A")
	uc := newReferralUC(f)

	cr, err := uc.ManualCredit(ctx, 2, 1)
	if err != nil || !cr.Credited {
		t.Fatalf("expected manual credit, got %+v err=%v", cr, err)
	}
	if fu := f.Ledger.Funnel(2); fu.CreditedVia != model.CreditViaManual {
		t.Errorf("expected manual path, got %s", fu.CreditedVia)
	}

	_, err = uc.ManualCredit(ctx, 2, 0)
	if !errors.Is(err, domain.ErrAlreadyCredited) {
		t.Errorf("expected ErrAlreadyCredited on repeat, got %v", err)
	}
	if _, err := uc.ManualCredit(ctx, 99, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown account, got %v", err)
	}

	n, err := uc.ResetCredited(ctx)
	if err != nil || n != 1 {
		t.Fatalf("reset: n=%d err=%v", n, err)
	}
	if _, err := uc.ManualCredit(ctx, 2, 0); err != nil {
		t.Errorf("credit after reset should succeed, got %v", err)
	}
	if stars(f, 1) != 4 {
		t.Errorf("expected two payouts of 2, got %d", stars(f, 1))
	}
}

func TestReferralUseCase_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("persistence failure still pays and notifies", func(t *testing.T) {
		f := newFixture()
		f.account(1, "inviter")
		uc := newReferralUC(f)
		_, _ = uc.Enter(ctx, usecase.EntryEvent{CandidateID: 2, Token: "1"})

		restore := f.failWrites()
		cr, err := uc.AttemptCredit(ctx, 2, model.CreditViaCheckNow)
		restore()

		if !errors.Is(err, domain.ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}
		if !cr.Credited || stars(f, 1) != 2 || creditNotices(f, 1) != 1 {
			t.Errorf("expected in-memory credit and notice, got %+v", cr)
		}
		if f.Ledger.DirtyCount() == 0 {
			t.Error("expected dirty records awaiting checkpoint")
		}
	})

	t.Run("notification failure is swallowed", func(t *testing.T) {
		f := newFixture()
		f.account(1, "inviter")
		f.Bot.SendMessageFunc = func(ctx context.Context, chatID int64, text string) error {
			return errors.New("forbidden")
		}
		uc := newReferralUC(f)
		_, _ = uc.Enter(ctx, usecase.EntryEvent{CandidateID: 2, Token: "1"})

		cr, err := uc.AttemptCredit(ctx, 2, model.CreditViaCheckNow)
		if err != nil || !cr.Credited {
			t.Fatalf("credit must succeed despite delivery failure, got %+v err=%v", cr, err)
		}
	})

	t.Run("lock failure aborts without changes", func(t *testing.T) {
		f := newFixture()
		f.account(1, "inviter")
		locker := NewMockLocker()
		locker.ErrOn["lock:credit:2"] = errors.New("redis down")
		gate := usecase.NewVerificationGate(f.Ledger, f.Members, f.Logger)
		challenge := usecase.NewChallengeUseCase(f.Challenges, nil, f.Logger)
		uc := usecase.NewReferralUseCase(f.Ledger, gate, challenge, f.notifier(), locker, "RefBot", f.Logger)
		_, _ = uc.Enter(ctx, usecase.EntryEvent{CandidateID: 2, Token: "1"})

		if _, err := uc.AttemptCredit(ctx, 2, model.CreditViaCheckNow); err == nil {
			t.Fatal("expected lock error")
		}
		if f.Ledger.Funnel(2).IsCredited() {
			t.Error("candidate must stay linked")
		}
	})
}

func TestReferralUseCase_InviteLinkAndStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.account(1, "inviter")
	uc := newReferralUC(f)

	info, err := uc.InviteLink(ctx, 1)
	if err != nil {
		t.Fatalf("InviteLink: %v", err)
	}
	if info.Link != "https://t.me/RefBot?start=1" || info.Rate != 2 {
		t.Errorf("unexpected invite info: %+v", info)
	}
	if _, err := uc.InviteLink(ctx, 42); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_, _ = uc.Enter(ctx, usecase.EntryEvent{CandidateID: 2, Token: "1"})
	_, _ = uc.AttemptCredit(ctx, 2, model.CreditViaCheckNow)
	_ = uc.MarkBotBlocked(ctx, 2)

	st := uc.Stats(ctx, 10)
	if st.Accounts != 2 || st.Active != 1 || st.Credited != 1 {
		t.Errorf("unexpected stats: %+v", st)
	}
	if len(st.TopInviters) != 1 || st.TopInviters[0].InviterID != 1 {
		t.Errorf("unexpected top inviters: %+v", st.TopInviters)
	}
}

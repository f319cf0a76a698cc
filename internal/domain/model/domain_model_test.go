//go:build !integration

package model

import (
	"errors"
	"testing"

	"telegram-referral-rewards/internal/domain"
)

// --- Account Model Tests ---

func TestNewAccount(t *testing.T) {
	t.Run("should create an active account with zero balance", func(t *testing.T) {
		acc, err := NewAccount(42, "@alice", " Alice ")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if acc.Status != AccountActive {
			t.Errorf("expected status active, got %s", acc.Status)
		}
		if acc.Stars != 0 || acc.SubscriptionRewardClaimed {
			t.Errorf("expected empty balance and unclaimed flag, got %+v", acc)
		}
		if acc.Username != "alice" || acc.DisplayName != "Alice" {
			t.Errorf("expected trimmed names, got %q %q", acc.Username, acc.DisplayName)
		}
	})

	t.Run("should fail with invalid id", func(t *testing.T) {
		_, err := NewAccount(0, "x", "")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("touch should reactivate a removed account", func(t *testing.T) {
		acc, _ := NewAccount(7, "", "Bob")
		acc.Status = AccountRemoved
		acc.Touch()
		if acc.Status != AccountActive {
			t.Errorf("expected active after touch, got %s", acc.Status)
		}
	})
}

func TestAccountBalance(t *testing.T) {
	acc, _ := NewAccount(1, "u", "")

	if err := acc.Credit(-1); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected negative credit to fail, got %v", err)
	}
	if err := acc.Credit(0); err != nil || acc.Stars != 0 {
		t.Errorf("expected zero credit to be a no-op, got err=%v stars=%d", err, acc.Stars)
	}
	_ = acc.Credit(20)
	if err := acc.Debit(25); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := acc.Debit(15); err != nil || acc.Stars != 5 {
		t.Errorf("expected balance 5 after debit, got err=%v stars=%d", err, acc.Stars)
	}
}

// --- Referral Model Tests ---

func TestParseInviteToken(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{"ref_42", 42, false},
		{" 1001 ", 1001, false},
		{"", 0, true},
		{"abc", 0, true},
		{"-5", 0, true},
		{"0", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseInviteToken(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseInviteToken(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("ParseInviteToken(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestReferralEdgeActivations(t *testing.T) {
	edge, _ := NewReferralEdge(10, "inviter")
	if !edge.AddActivation(5) {
		t.Fatal("expected first activation to be added")
	}
	if edge.AddActivation(5) {
		t.Error("expected duplicate activation to be ignored")
	}
	if len(edge.Activations) != 1 {
		t.Errorf("expected one activation, got %v", edge.Activations)
	}
	cp := edge.Clone()
	cp.Activations[0] = 99
	if edge.Activations[0] != 5 {
		t.Error("clone must not share the activation slice")
	}
	if got := InviteLink("@refbot", 10); got != "https://t.me/refbot?start=10" {
		t.Errorf("unexpected invite link %s", got)
	}
}

// --- Funnel Model Tests ---

func TestFunnelTransitions(t *testing.T) {
	t.Run("link then credit", func(t *testing.T) {
		f := UnlinkedFunnel(2)
		f, err := f.Link(1)
		if err != nil || !f.IsLinked() {
			t.Fatalf("expected linked funnel, got %+v err=%v", f, err)
		}
		f, err = f.Credit(CreditViaMembership)
		if err != nil || !f.IsCredited() || f.CreditedAt == nil {
			t.Fatalf("expected credited funnel, got %+v err=%v", f, err)
		}
		if inv, ok := f.Inviter(); !ok || inv != 1 {
			t.Errorf("expected inviter 1, got %d", inv)
		}
	})

	t.Run("second inviter is rejected", func(t *testing.T) {
		f, _ := UnlinkedFunnel(2).Link(1)
		if _, err := f.Link(3); !errors.Is(err, domain.ErrAlreadyLinked) {
			t.Errorf("expected ErrAlreadyLinked, got %v", err)
		}
		same, err := f.Link(1)
		if err != nil || same.InviterID != 1 {
			t.Errorf("expected relink to same inviter to be a no-op, got %v", err)
		}
	})

	t.Run("self referral is rejected", func(t *testing.T) {
		if _, err := UnlinkedFunnel(2).Link(2); !errors.Is(err, domain.ErrSelfReferral) {
			t.Errorf("expected ErrSelfReferral, got %v", err)
		}
	})

	t.Run("credit requires a link and happens once", func(t *testing.T) {
		if _, err := UnlinkedFunnel(2).Credit(CreditViaCheckNow); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
		f, _ := UnlinkedFunnel(2).Link(1)
		f, _ = f.Credit(CreditViaCheckNow)
		if _, err := f.Credit(CreditViaBotCheck); !errors.Is(err, domain.ErrAlreadyCredited) {
			t.Errorf("expected ErrAlreadyCredited, got %v", err)
		}
	})

	t.Run("reset returns credited to linked", func(t *testing.T) {
		f, _ := UnlinkedFunnel(2).Link(1)
		f, _ = f.Credit(CreditViaManual)
		f = f.Reset()
		if !f.IsLinked() || f.InviterID != 1 || f.CreditedAt != nil {
			t.Errorf("unexpected funnel after reset: %+v", f)
		}
	})
}

// --- Code Model Tests ---

func TestRedeemableCode(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		if _, err := NewRedeemableCode("bad-code", 5, CodeSingle, 0); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected non-alnum code to fail, got %v", err)
		}
		if _, err := NewRedeemableCode("GOOD", 0, CodeSingle, 0); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected zero stars to fail, got %v", err)
		}
		if _, err := NewRedeemableCode("GOOD", 5, CodeCapped, 0); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected capped without limit to fail, got %v", err)
		}
		c, err := NewRedeemableCode(" promo1 ", 5, CodeSingle, 0)
		if err != nil || c.Code != "PROMO1" {
			t.Errorf("expected normalized code, got %+v err=%v", c, err)
		}
	})

	t.Run("capped policy", func(t *testing.T) {
		c, _ := NewRedeemableCode("CAP", 1, CodeCapped, 2)
		for i := int64(1); i <= 2; i++ {
			if err := c.CanRedeem(i); err != nil {
				t.Fatalf("redeem %d: %v", i, err)
			}
			c.Redeem(i)
		}
		if err := c.CanRedeem(3); !errors.Is(err, domain.ErrCodeExhausted) {
			t.Errorf("expected ErrCodeExhausted, got %v", err)
		}
	})

	t.Run("single policy", func(t *testing.T) {
		c, _ := NewRedeemableCode("ONE", 1, CodeSingle, 0)
		c.Redeem(1)
		if err := c.CanRedeem(1); !errors.Is(err, domain.ErrCodeAlreadyUsed) {
			t.Errorf("expected ErrCodeAlreadyUsed, got %v", err)
		}
		if err := c.CanRedeem(2); err != nil {
			t.Errorf("expected another account to redeem, got %v", err)
		}
	})

	t.Run("policy parsing", func(t *testing.T) {
		if p, err := ParseCodePolicy("limited"); err != nil || p != CodeCapped {
			t.Errorf("expected limited to map to capped, got %s %v", p, err)
		}
		if _, err := ParseCodePolicy("weird"); err == nil {
			t.Error("expected unknown policy to fail")
		}
	})
}

// --- Channel / Withdrawal / Challenge Tests ---

func TestChannelValidation(t *testing.T) {
	if _, err := NewRequiredChannel(-1001234567890, "@news", "News"); err != nil {
		t.Errorf("expected valid channel, got %v", err)
	}
	if _, err := NewRequiredChannel(12345, "", ""); !errors.Is(err, domain.ErrInvalidChannelID) {
		t.Errorf("expected ErrInvalidChannelID, got %v", err)
	}
	if got := NormalizeChannelLink("@news"); got != "https://t.me/news" {
		t.Errorf("unexpected link %s", got)
	}
	for status, want := range map[string]bool{"member": true, "administrator": true, "creator": true, "left": false, "kicked": false, "restricted": false} {
		if IsJoinedStatus(status) != want {
			t.Errorf("IsJoinedStatus(%s) != %v", status, want)
		}
	}
}

func TestWithdrawal(t *testing.T) {
	if _, err := NewWithdrawal(1, 14); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("expected amount below minimum to fail, got %v", err)
	}
	w, err := NewWithdrawal(1, 15)
	if err != nil || w.ID == "" || !w.IsPending() {
		t.Fatalf("expected pending withdrawal, got %+v err=%v", w, err)
	}
	if err := w.Resolve(WithdrawalRejected, 99); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := w.Resolve(WithdrawalApproved, 99); !errors.Is(err, domain.ErrWithdrawalResolved) {
		t.Errorf("expected ErrWithdrawalResolved, got %v", err)
	}
}

func TestChallengeSession(t *testing.T) {
	s := &ChallengeSession{SessionID: 1}
	s.Issue("Comet")
	if s.State != ChallengeAwaitingAnswer {
		t.Fatalf("expected awaiting answer, got %s", s.State)
	}
	if !s.Matches("  comet ") {
		t.Error("expected trimmed case-insensitive match")
	}
	if s.Matches("comets") {
		t.Error("expected exact match only")
	}
	s.Pass()
	if !s.IsPassed() || s.Secret != "" {
		t.Errorf("expected passed session with cleared secret, got %+v", s)
	}
}

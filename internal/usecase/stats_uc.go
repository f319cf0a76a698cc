package usecase

import (
	"bytes"
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/domain/ports/adapter"
	"telegram-referral-rewards/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type Profile struct {
	Account     model.Account
	Invited     int64
	Funnel      model.Funnel
	Rate        int64
	CanWithdraw bool
}

type StatsUseCase interface {
	Totals(ctx context.Context) LedgerStats
	Profile(ctx context.Context, accountID int64) (Profile, bool)
	InactiveAccounts(ctx context.Context, olderThan time.Time) int
	ExportAccounts(ctx context.Context) adapter.Document
	ExportReferrals(ctx context.Context) adapter.Document
	DebugDump(ctx context.Context, limit int) string
}

type statsUC struct {
	ledger *Ledger
	now    func() time.Time
	log    *zerolog.Logger
}

func NewStatsUseCase(ledger *Ledger, logger *zerolog.Logger) *statsUC {
	return &statsUC{ledger: ledger, now: time.Now, log: logger}
}

func (s *statsUC) Totals(ctx context.Context) LedgerStats {
	return s.ledger.Stats()
}

func (s *statsUC) Profile(ctx context.Context, accountID int64) (Profile, bool) {
	a, ok := s.ledger.Account(accountID)
	if !ok {
		return Profile{}, false
	}
	p := Profile{
		Account:     a,
		Funnel:      s.ledger.Funnel(accountID),
		Rate:        s.ledger.RewardRate(),
		CanWithdraw: a.Stars >= model.MinWithdrawalStars,
	}
	if e, ok := s.ledger.Edge(accountID); ok {
		p.Invited = int64(e.Count)
	}
	return p, true
}

func (s *statsUC) InactiveAccounts(ctx context.Context, olderThan time.Time) int {
	n := 0
	for _, a := range s.ledger.Accounts() {
		if a.LastSeenAt.Before(olderThan) {
			n++
		}
	}
	return n
}

func (s *statsUC) stamp() string {
	return s.now().UTC().Format("20060102_150405")
}

// ExportAccounts renders every account as a tab-aligned text table.
func (s *statsUC) ExportAccounts(ctx context.Context) adapter.Document {
	defer logging.TraceDuration(s.log, "StatsUC.ExportAccounts")()

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tNAME\tSTATUS\tSTARS\tINVITER\tSTAGE\tREGISTERED")
	accounts := s.ledger.Accounts()
	for _, a := range accounts {
		f := s.ledger.Funnel(a.ID)
		inviter := "-"
		if id, ok := f.Inviter(); ok {
			inviter = fmt.Sprint(id)
		}
		fmt.Fprintf(w, "%d\t@%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			a.ID, a.Username, a.DisplayName, a.Status, a.Stars, inviter, f.Stage,
			a.RegisteredAt.UTC().Format(time.RFC3339))
	}
	_ = w.Flush()
	return adapter.Document{
		Name:    "accounts_" + s.stamp() + ".txt",
		Content: buf.Bytes(),
		Caption: fmt.Sprintf("Accounts: %d", len(accounts)),
	}
}

// ExportReferrals lists inviters with their credited count and linked candidates.
func (s *statsUC) ExportReferrals(ctx context.Context) adapter.Document {
	defer logging.TraceDuration(s.log, "StatsUC.ExportReferrals")()

	var buf bytes.Buffer
	edges := s.ledger.Edges()
	for _, e := range edges {
		fmt.Fprintf(&buf, "%s (%d): credited=%d linked=%d\n", e.InviterName, e.InviterID, e.Count, len(e.Activations))
		for _, c := range e.Activations {
			f := s.ledger.Funnel(c)
			name := fmt.Sprint(c)
			if a, ok := s.ledger.Account(c); ok {
				name = a.Name()
			}
			fmt.Fprintf(&buf, "  - %s (%d) %s\n", name, c, f.Stage)
		}
	}
	return adapter.Document{
		Name:    "referrals_" + s.stamp() + ".txt",
		Content: buf.Bytes(),
		Caption: fmt.Sprintf("Inviters: %d", len(edges)),
	}
}

// DebugDump summarizes funnel state for operators.
func (s *statsUC) DebugDump(ctx context.Context, limit int) string {
	st := s.ledger.Stats()
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "accounts=%d inviters=%d linked=%d credited=%d rate=%d dirty=%d\n",
		st.Accounts, st.Inviters, st.Linked, st.Credited, st.StarsPerRef, s.ledger.DirtyCount())
	for i, f := range s.ledger.Funnels() {
		if limit > 0 && i >= limit {
			fmt.Fprintf(&buf, "...\n")
			break
		}
		fmt.Fprintf(&buf, "%d -> %d %s", f.CandidateID, f.InviterID, f.Stage)
		if f.IsCredited() {
			fmt.Fprintf(&buf, " via=%s", f.CreditedVia)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

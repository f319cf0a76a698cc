package usecase

import (
	"context"
	"sort"

	"telegram-referral-rewards/internal/domain"
	"telegram-referral-rewards/internal/domain/model"
)

// Funnel returns the candidate's funnel state; unknown candidates are Unlinked.
func (l *Ledger) Funnel(candidateID int64) model.Funnel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.funnelLocked(candidateID)
}

func (l *Ledger) funnelLocked(candidateID int64) model.Funnel {
	if f, ok := l.funnels[candidateID]; ok {
		return f
	}
	return model.UnlinkedFunnel(candidateID)
}

// Funnels returns every non-Unlinked funnel ordered by candidate id.
func (l *Ledger) Funnels() []model.Funnel {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Funnel, 0, len(l.funnels))
	for _, f := range l.funnels {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CandidateID < out[j].CandidateID })
	return out
}

// Edge returns a copy of the inviter's referral edge.
func (l *Ledger) Edge(inviterID int64) (*model.ReferralEdge, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.edges[inviterID]
	return e.Clone(), ok
}

// Edges returns copies of all edges, highest count first.
func (l *Ledger) Edges() []*model.ReferralEdge {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*model.ReferralEdge, 0, len(l.edges))
	for _, e := range l.edges {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].InviterID < out[j].InviterID
		}
		return out[i].Count > out[j].Count
	})
	return out
}

// EnsureEdge creates the inviter's edge on first link generation.
func (l *Ledger) EnsureEdge(ctx context.Context, inviterID int64) (*model.ReferralEdge, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, created, err := l.ensureEdgeLocked(inviterID)
	if err != nil {
		return nil, err
	}
	if !created {
		return e.Clone(), nil
	}
	cs := newChangeSet()
	cs.edges[inviterID] = struct{}{}
	return e.Clone(), l.persist(ctx, cs)
}

func (l *Ledger) ensureEdgeLocked(inviterID int64) (*model.ReferralEdge, bool, error) {
	if e, ok := l.edges[inviterID]; ok {
		return e, false, nil
	}
	inviter, ok := l.accounts[inviterID]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	e, err := model.NewReferralEdge(inviterID, inviter.Name())
	if err != nil {
		return nil, false, err
	}
	l.edges[inviterID] = e
	return e, true, nil
}

// LinkReferral forms the candidate -> inviter link. The first link wins:
// relinking to the same inviter is a no-op returning false, linking to a
// different inviter fails with domain.ErrAlreadyLinked.
func (l *Ledger) LinkReferral(ctx context.Context, candidateID, inviterID int64) (bool, error) {
	if candidateID == inviterID {
		return false, domain.ErrSelfReferral
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.accounts[inviterID]; !ok {
		return false, domain.ErrNotFound
	}
	cur := l.funnelLocked(candidateID)
	next, err := cur.Link(inviterID)
	if err != nil {
		return false, err
	}
	if cur.Stage == next.Stage && cur.InviterID == next.InviterID {
		return false, nil
	}

	edge, _, err := l.ensureEdgeLocked(inviterID)
	if err != nil {
		return false, err
	}
	edge.AddActivation(candidateID)
	l.funnels[candidateID] = next

	cs := newChangeSet()
	cs.funnels[candidateID] = struct{}{}
	cs.edges[inviterID] = struct{}{}
	return true, l.persist(ctx, cs)
}

// CreditReferral moves a Linked candidate to Credited and bumps the inviter's
// count. It returns the inviter. The stage check and the update happen under
// one lock, so of two racing callers exactly one succeeds and the other gets
// domain.ErrAlreadyCredited. On a persistence failure the credit is kept in
// memory and the inviter is returned together with the error.
func (l *Ledger) CreditReferral(ctx context.Context, candidateID int64, via model.CreditPath) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.funnelLocked(candidateID)
	next, err := cur.Credit(via)
	if err != nil {
		return 0, err
	}
	edge, _, err := l.ensureEdgeLocked(next.InviterID)
	if err != nil {
		return 0, err
	}
	edge.IncCount()
	edge.AddActivation(candidateID)
	l.funnels[candidateID] = next

	cs := newChangeSet()
	cs.funnels[candidateID] = struct{}{}
	cs.edges[next.InviterID] = struct{}{}
	return next.InviterID, l.persist(ctx, cs)
}

// ResetCredited returns every Credited candidate to Linked. Counts are kept.
func (l *Ledger) ResetCredited(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cs := newChangeSet()
	for id, f := range l.funnels {
		if f.IsCredited() {
			l.funnels[id] = f.Reset()
			cs.funnels[id] = struct{}{}
		}
	}
	n := len(cs.funnels)
	if n == 0 {
		return 0, nil
	}
	return n, l.persist(ctx, cs)
}

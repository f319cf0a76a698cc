package repository

import (
	"context"

	"telegram-referral-rewards/internal/domain/model"
)

// -----------------------------
// Referral graph
// -----------------------------

// ReferralEdgeRepository stores the inviter side of the graph.
type ReferralEdgeRepository interface {
	Save(ctx context.Context, tx Tx, e *model.ReferralEdge) error
	FindByInviter(ctx context.Context, tx Tx, inviterID int64) (*model.ReferralEdge, error)
	List(ctx context.Context, tx Tx) ([]*model.ReferralEdge, error)
}

// FunnelRepository stores per-candidate funnel state, i.e. the candidate -> inviter
// index and the credited set.
type FunnelRepository interface {
	Save(ctx context.Context, tx Tx, f model.Funnel) error
	FindByCandidate(ctx context.Context, tx Tx, candidateID int64) (model.Funnel, error)
	List(ctx context.Context, tx Tx) ([]model.Funnel, error)
}

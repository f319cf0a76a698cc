package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/domain/ports/repository"
)

var (
	_ repository.ReferralEdgeRepository = (*EdgeRepo)(nil)
	_ repository.FunnelRepository       = (*FunnelRepo)(nil)
)

// -----------------------------
// Inviter edges
// -----------------------------

type EdgeRepo struct {
	pool *pgxpool.Pool
}

func NewEdgeRepo(pool *pgxpool.Pool) *EdgeRepo {
	return &EdgeRepo{pool: pool}
}

const edgeColumns = `inviter_id, token, inviter_name, credited_count, activations, created_at, updated_at`

func (r *EdgeRepo) Save(ctx context.Context, tx repository.Tx, e *model.ReferralEdge) error {
	const q = `
INSERT INTO referral_edges (` + edgeColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (inviter_id) DO UPDATE SET
  inviter_name = EXCLUDED.inviter_name,
  credited_count = EXCLUDED.credited_count,
  activations = EXCLUDED.activations,
  updated_at = EXCLUDED.updated_at;
`
	activations := e.Activations
	if activations == nil {
		activations = []int64{}
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		e.InviterID, e.Token, e.InviterName, e.Count, activations, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save referral edge: %w", err)
	}
	return nil
}

func scanEdge(row interface{ Scan(dest ...interface{}) error }) (*model.ReferralEdge, error) {
	var e model.ReferralEdge
	if err := row.Scan(&e.InviterID, &e.Token, &e.InviterName, &e.Count, &e.Activations, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EdgeRepo) FindByInviter(ctx context.Context, tx repository.Tx, inviterID int64) (*model.ReferralEdge, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+edgeColumns+` FROM referral_edges WHERE inviter_id = $1;`, inviterID)
	if err != nil {
		return nil, err
	}
	e, err := scanEdge(row)
	if err != nil {
		return nil, scanNotFound(err, "referral edge")
	}
	return e, nil
}

func (r *EdgeRepo) List(ctx context.Context, tx repository.Tx) ([]*model.ReferralEdge, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+edgeColumns+` FROM referral_edges ORDER BY inviter_id;`)
	if err != nil {
		return nil, fmt.Errorf("list referral edges: %w", err)
	}
	defer rows.Close()
	var out []*model.ReferralEdge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan referral edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// -----------------------------
// Candidate funnels
// -----------------------------

type FunnelRepo struct {
	pool *pgxpool.Pool
}

func NewFunnelRepo(pool *pgxpool.Pool) *FunnelRepo {
	return &FunnelRepo{pool: pool}
}

const funnelColumns = `candidate_id, stage, inviter_id, credited_via, linked_at, credited_at`

func (r *FunnelRepo) Save(ctx context.Context, tx repository.Tx, f model.Funnel) error {
	const q = `
INSERT INTO referral_funnel (` + funnelColumns + `)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (candidate_id) DO UPDATE SET
  stage = EXCLUDED.stage,
  inviter_id = EXCLUDED.inviter_id,
  credited_via = EXCLUDED.credited_via,
  linked_at = EXCLUDED.linked_at,
  credited_at = EXCLUDED.credited_at;
`
	_, err := execSQL(ctx, r.pool, tx, q,
		f.CandidateID, string(f.Stage), f.InviterID, string(f.CreditedVia), f.LinkedAt, f.CreditedAt)
	if err != nil {
		return fmt.Errorf("save funnel: %w", err)
	}
	return nil
}

func scanFunnel(row interface{ Scan(dest ...interface{}) error }) (model.Funnel, error) {
	var f model.Funnel
	var stage, via string
	if err := row.Scan(&f.CandidateID, &stage, &f.InviterID, &via, &f.LinkedAt, &f.CreditedAt); err != nil {
		return model.Funnel{}, err
	}
	f.Stage = model.FunnelStage(stage)
	f.CreditedVia = model.CreditPath(via)
	return f, nil
}

// FindByCandidate returns an Unlinked funnel when no row exists.
func (r *FunnelRepo) FindByCandidate(ctx context.Context, tx repository.Tx, candidateID int64) (model.Funnel, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+funnelColumns+` FROM referral_funnel WHERE candidate_id = $1;`, candidateID)
	if err != nil {
		return model.Funnel{}, err
	}
	f, err := scanFunnel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.UnlinkedFunnel(candidateID), nil
		}
		return model.Funnel{}, fmt.Errorf("scan funnel: %w", err)
	}
	return f, nil
}

func (r *FunnelRepo) List(ctx context.Context, tx repository.Tx) ([]model.Funnel, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+funnelColumns+` FROM referral_funnel ORDER BY candidate_id;`)
	if err != nil {
		return nil, fmt.Errorf("list funnels: %w", err)
	}
	defer rows.Close()
	var out []model.Funnel
	for rows.Next() {
		f, err := scanFunnel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan funnel: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

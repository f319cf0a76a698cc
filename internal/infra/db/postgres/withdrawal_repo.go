package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/domain/ports/repository"
)

var _ repository.WithdrawalRepository = (*WithdrawalRepo)(nil)

type WithdrawalRepo struct {
	pool *pgxpool.Pool
}

func NewWithdrawalRepo(pool *pgxpool.Pool) *WithdrawalRepo {
	return &WithdrawalRepo{pool: pool}
}

const withdrawalColumns = `id, account_id, amount, status, created_at, resolved_at, resolved_by`

func (r *WithdrawalRepo) Save(ctx context.Context, tx repository.Tx, w *model.Withdrawal) error {
	const q = `
INSERT INTO withdrawals (` + withdrawalColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  resolved_at = EXCLUDED.resolved_at,
  resolved_by = EXCLUDED.resolved_by;
`
	_, err := execSQL(ctx, r.pool, tx, q,
		w.ID, w.AccountID, w.Amount, string(w.Status), w.CreatedAt, w.ResolvedAt, w.ResolvedBy)
	if err != nil {
		return fmt.Errorf("save withdrawal: %w", err)
	}
	return nil
}

func scanWithdrawal(row interface{ Scan(dest ...interface{}) error }) (*model.Withdrawal, error) {
	var w model.Withdrawal
	var status string
	if err := row.Scan(&w.ID, &w.AccountID, &w.Amount, &status, &w.CreatedAt, &w.ResolvedAt, &w.ResolvedBy); err != nil {
		return nil, err
	}
	w.Status = model.WithdrawalStatus(status)
	return &w, nil
}

func (r *WithdrawalRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Withdrawal, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	w, err := scanWithdrawal(row)
	if err != nil {
		return nil, scanNotFound(err, "withdrawal")
	}
	return w, nil
}

func (r *WithdrawalRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Withdrawal, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+withdrawalColumns+` FROM withdrawals ORDER BY created_at;`)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	defer rows.Close()
	var out []*model.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

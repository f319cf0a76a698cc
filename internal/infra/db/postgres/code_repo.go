package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/domain/ports/repository"
)

// Ensure implementation satisfies the interface.
var _ repository.CodeRepository = (*CodeRepo)(nil)

type CodeRepo struct {
	pool *pgxpool.Pool
}

func NewCodeRepo(pool *pgxpool.Pool) *CodeRepo {
	return &CodeRepo{pool: pool}
}

const codeColumns = `code, stars, policy, cap, activations, used_by, created_at`

// Save creates a code or updates its usage counters. The definition
// (stars, policy, cap) is immutable once created.
func (r *CodeRepo) Save(ctx context.Context, tx repository.Tx, c *model.RedeemableCode) error {
	const q = `
INSERT INTO redeemable_codes (` + codeColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (code) DO UPDATE SET
  activations = EXCLUDED.activations,
  used_by = EXCLUDED.used_by;
`
	usedBy := c.UsedBy
	if usedBy == nil {
		usedBy = []int64{}
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		c.Code, c.Stars, string(c.Policy), c.Cap, c.Activations, usedBy, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("save code: %w", err)
	}
	return nil
}

func scanCode(row interface{ Scan(dest ...interface{}) error }) (*model.RedeemableCode, error) {
	var c model.RedeemableCode
	var policy string
	if err := row.Scan(&c.Code, &c.Stars, &policy, &c.Cap, &c.Activations, &c.UsedBy, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Policy = model.CodePolicy(policy)
	return &c, nil
}

func (r *CodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.RedeemableCode, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+codeColumns+` FROM redeemable_codes WHERE code = $1;`, model.NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	c, err := scanCode(row)
	if err != nil {
		return nil, scanNotFound(err, "code")
	}
	return c, nil
}

func (r *CodeRepo) List(ctx context.Context, tx repository.Tx) ([]*model.RedeemableCode, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+codeColumns+` FROM redeemable_codes ORDER BY created_at, code;`)
	if err != nil {
		return nil, fmt.Errorf("list codes: %w", err)
	}
	defer rows.Close()
	var out []*model.RedeemableCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan code: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

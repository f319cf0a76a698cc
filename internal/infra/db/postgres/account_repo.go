package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/domain/ports/repository"
)

var _ repository.AccountRepository = (*AccountRepo)(nil)

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

const accountColumns = `id, username, display_name, status, stars, subscription_reward_claimed, registered_at, last_seen_at`

func (r *AccountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	const q = `
INSERT INTO accounts (` + accountColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  username = EXCLUDED.username,
  display_name = EXCLUDED.display_name,
  status = EXCLUDED.status,
  stars = EXCLUDED.stars,
  subscription_reward_claimed = EXCLUDED.subscription_reward_claimed,
  last_seen_at = EXCLUDED.last_seen_at;
`
	_, err := execSQL(ctx, r.pool, tx, q,
		a.ID, a.Username, a.DisplayName, string(a.Status), a.Stars, a.SubscriptionRewardClaimed, a.RegisteredAt, a.LastSeenAt)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func scanAccount(row interface{ Scan(dest ...interface{}) error }) (*model.Account, error) {
	var a model.Account
	var status string
	if err := row.Scan(&a.ID, &a.Username, &a.DisplayName, &status, &a.Stars, &a.SubscriptionRewardClaimed, &a.RegisteredAt, &a.LastSeenAt); err != nil {
		return nil, err
	}
	a.Status = model.AccountStatus(status)
	return &a, nil
}

func (r *AccountRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Account, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	a, err := scanAccount(row)
	if err != nil {
		return nil, scanNotFound(err, "account")
	}
	return a, nil
}

func (r *AccountRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Account, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+accountColumns+` FROM accounts ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()
	var out []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/domain/ports/repository"
)

var _ repository.ChannelRepository = (*ChannelRepo)(nil)

type ChannelRepo struct {
	pool *pgxpool.Pool
}

func NewChannelRepo(pool *pgxpool.Pool) *ChannelRepo {
	return &ChannelRepo{pool: pool}
}

// ReplaceAll rewrites the list. Callers pass a transaction so readers never
// observe a partial list.
func (r *ChannelRepo) ReplaceAll(ctx context.Context, tx repository.Tx, channels []model.RequiredChannel) error {
	if _, err := execSQL(ctx, r.pool, tx, `DELETE FROM required_channels;`); err != nil {
		return fmt.Errorf("clear channels: %w", err)
	}
	const q = `INSERT INTO required_channels (chat_id, link, name, position) VALUES ($1,$2,$3,$4);`
	for i, ch := range channels {
		if _, err := execSQL(ctx, r.pool, tx, q, ch.ChatID, ch.Link, ch.Name, i); err != nil {
			return fmt.Errorf("insert channel %d: %w", ch.ChatID, err)
		}
	}
	return nil
}

func (r *ChannelRepo) List(ctx context.Context, tx repository.Tx) ([]model.RequiredChannel, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT chat_id, link, name, position FROM required_channels ORDER BY position;`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()
	var out []model.RequiredChannel
	for rows.Next() {
		var ch model.RequiredChannel
		if err := rows.Scan(&ch.ChatID, &ch.Link, &ch.Name, &ch.Position); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

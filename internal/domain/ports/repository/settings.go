package repository

import "context"

// SettingsRepository is a small key/value store for runtime-tunable settings.
type SettingsRepository interface {
	Set(ctx context.Context, tx Tx, key, value string) error
	All(ctx context.Context, tx Tx) (map[string]string, error)
}

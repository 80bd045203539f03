package guard

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the pause flag in registry_settings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Paused reads the stored flag; absence means unpaused.
func (r *Repository) Paused(ctx context.Context) (bool, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM registry_settings WHERE key = 'paused'`).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

// SetPaused upserts the flag.
func (r *Repository) SetPaused(ctx context.Context, paused bool) error {
	value := "false"
	if paused {
		value = "true"
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO registry_settings (key, value, updated_at) VALUES ('paused', $1, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, value)
	return err
}

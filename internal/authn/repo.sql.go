package authn

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-certs/meridian/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindKey fetches one API key by id.
func (r *Repository) FindKey(ctx context.Context, keyID string) (APIKey, error) {
	var key APIKey
	err := r.pool.QueryRow(ctx, `SELECT id, account, secret_hash, created_at FROM api_keys WHERE id = $1`, keyID).
		Scan(&key.ID, &key.Account, &key.SecretHash, &key.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKey{}, fmt.Errorf("%w: api key", shared.ErrNotFound)
	}
	if err != nil {
		return APIKey{}, err
	}
	return key, nil
}

// InsertKey stores one API key.
func (r *Repository) InsertKey(ctx context.Context, key APIKey) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO api_keys (id, account, secret_hash, created_at) VALUES ($1, $2, $3, NOW())`, key.ID, key.Account, key.SecretHash)
	return err
}

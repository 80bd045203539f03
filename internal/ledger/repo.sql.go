package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// Insert creates one certificate row and returns its id. The id comes
// from a BIGSERIAL, so the sequence is monotonic and gaps are never
// reused.
func (r *Repository) Insert(ctx context.Context, owner, metadataRef string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO certificates (owner, metadata_ref, revoked, minted_at)
VALUES ($1, $2, FALSE, NOW()) RETURNING id`, owner, metadataRef).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Get fetches one certificate.
func (r *Repository) Get(ctx context.Context, id int64) (Certificate, error) {
	var c Certificate
	var revokedAt *time.Time
	err := r.pool.QueryRow(ctx, `SELECT id, owner, metadata_ref, revoked, minted_at, revoked_at
FROM certificates WHERE id = $1`, id).Scan(&c.ID, &c.Owner, &c.MetadataRef, &c.Revoked, &c.MintedAt, &revokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Certificate{}, fmt.Errorf("%w: certificate %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return Certificate{}, err
	}
	if revokedAt != nil {
		c.RevokedAt = *revokedAt
	}
	return c, nil
}

// MarkRevoked flips the revoked flag exactly once.
func (r *Repository) MarkRevoked(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE certificates SET revoked = TRUE, revoked_at = NOW()
WHERE id = $1 AND revoked = FALSE`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: certificate %d already revoked or missing", shared.ErrInvalidState, id)
	}
	return nil
}

// Total counts every certificate ever minted, revoked ones included.
func (r *Repository) Total(ctx context.Context) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM certificates`).Scan(&total)
	return total, err
}

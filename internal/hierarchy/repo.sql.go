package hierarchy

import (
	"context"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-certs/meridian/internal/platform/db"
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

// Roles returns every role held by the account.
func (r *Repository) Roles(ctx context.Context, account string) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT role FROM role_memberships WHERE account = $1 ORDER BY role`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, Role(role))
	}
	return roles, rows.Err()
}

// Grant inserts one membership row.
func (r *Repository) Grant(ctx context.Context, account string, role Role) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO role_memberships (account, role, granted_at) VALUES ($1, $2, NOW())`, account, string(role))
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.ConstraintName == "role_memberships_pkey" {
			return fmt.Errorf("%w: account already holds role %s", shared.ErrInvalidState, role)
		}
		return err
	}
	return nil
}

// Revoke deletes one membership row.
func (r *Repository) Revoke(ctx context.Context, account string, role Role) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM role_memberships WHERE account = $1 AND role = $2`, account, string(role))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account does not hold role %s", shared.ErrInvalidState, role)
	}
	return nil
}

// GrantBatch inserts every grant inside one transaction.
func (r *Repository) GrantBatch(ctx context.Context, grants []Grant) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, g := range grants {
			if _, err := tx.Exec(ctx, `INSERT INTO role_memberships (account, role, granted_at) VALUES ($1, $2, NOW())`, g.Account, string(g.Role)); err != nil {
				return err
			}
		}
		return nil
	})
}

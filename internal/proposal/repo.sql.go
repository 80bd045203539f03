package proposal

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

// Insert creates a pending proposal and returns its id.
func (r *Repository) Insert(ctx context.Context, p Proposal) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO proposals (proposer, recipient, title, description, metadata_ref, executed, cancelled, created_at)
VALUES ($1, $2, $3, $4, $5, FALSE, FALSE, NOW()) RETURNING id`,
		p.Proposer, p.Recipient, p.Title, p.Description, p.MetadataRef).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Get fetches one proposal with its approval set.
func (r *Repository) Get(ctx context.Context, id int64) (Proposal, error) {
	var p Proposal
	var certID *int64
	err := r.pool.QueryRow(ctx, `SELECT id, proposer, recipient, title, description, metadata_ref, executed, cancelled, certificate_id, created_at
FROM proposals WHERE id = $1`, id).Scan(&p.ID, &p.Proposer, &p.Recipient, &p.Title, &p.Description, &p.MetadataRef, &p.Executed, &p.Cancelled, &certID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Proposal{}, fmt.Errorf("%w: proposal %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return Proposal{}, err
	}
	if certID != nil {
		p.CertificateID = *certID
	}
	rows, err := r.pool.Query(ctx, `SELECT account FROM proposal_approvals WHERE proposal_id = $1 ORDER BY approved_at`, id)
	if err != nil {
		return Proposal{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var account string
		if err := rows.Scan(&account); err != nil {
			return Proposal{}, err
		}
		p.Approvers = append(p.Approvers, account)
	}
	if err := rows.Err(); err != nil {
		return Proposal{}, err
	}
	p.ApprovalCount = len(p.Approvers)
	return p, nil
}

// IDs lists every proposal id in creation order.
func (r *Repository) IDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM proposals ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Pending lists proposals that are neither executed nor cancelled.
func (r *Repository) Pending(ctx context.Context) ([]Proposal, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM proposals WHERE executed = FALSE AND cancelled = FALSE ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	proposals := make([]Proposal, 0, len(ids))
	for _, id := range ids {
		p, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}
	return proposals, nil
}

// AddApproval records one approval.
func (r *Repository) AddApproval(ctx context.Context, id int64, account string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO proposal_approvals (proposal_id, account, approved_at) VALUES ($1, $2, NOW())`, id, account)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: already approved proposal %d", shared.ErrInvalidState, id)
		}
		return err
	}
	return nil
}

// RemoveApproval deletes one approval.
func (r *Repository) RemoveApproval(ctx context.Context, id int64, account string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM proposal_approvals WHERE proposal_id = $1 AND account = $2`, id, account)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no approval to revoke on proposal %d", shared.ErrInvalidState, id)
	}
	return nil
}

// MarkCancelled flips the cancelled flag on a pending proposal.
func (r *Repository) MarkCancelled(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE proposals SET cancelled = TRUE WHERE id = $1 AND executed = FALSE AND cancelled = FALSE`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: proposal %d is not pending", shared.ErrInvalidState, id)
	}
	return nil
}

// ExecuteMint commits the final approval, the certificate, and the
// executed flag together. The WHERE guard on the update makes a second
// execution impossible even if two callers race past the service
// checks.
func (r *Repository) ExecuteMint(ctx context.Context, id int64, approver, recipient, metadataRef string) (int64, error) {
	var certID int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if approver != "" {
			if _, err := tx.Exec(ctx, `INSERT INTO proposal_approvals (proposal_id, account, approved_at) VALUES ($1, $2, NOW())`, id, approver); err != nil {
				return err
			}
		}
		if err := tx.QueryRow(ctx, `INSERT INTO certificates (owner, metadata_ref, revoked, minted_at)
VALUES ($1, $2, FALSE, NOW()) RETURNING id`, recipient, metadataRef).Scan(&certID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE proposals SET executed = TRUE, certificate_id = $2 WHERE id = $1 AND executed = FALSE AND cancelled = FALSE`, id, certID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: proposal %d is not pending", shared.ErrInvalidState, id)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return certID, nil
}

// Threshold reads the stored approval threshold; 0 means unset.
func (r *Repository) Threshold(ctx context.Context) (int, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM registry_settings WHERE key = 'approval_threshold'`).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("proposal: malformed threshold %q", value)
	}
	return n, nil
}

// SetThreshold upserts the approval threshold.
func (r *Repository) SetThreshold(ctx context.Context, n int) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO registry_settings (key, value, updated_at) VALUES ('approval_threshold', $1, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, strconv.Itoa(n))
	return err
}

package hierarchy

import "context"

// RepositoryPort defines persistence for role memberships.
type RepositoryPort interface {
	Roles(ctx context.Context, account string) ([]Role, error)
	Grant(ctx context.Context, account string, role Role) error
	Revoke(ctx context.Context, account string, role Role) error
	// GrantBatch applies every grant atomically; either all rows commit
	// or none do.
	GrantBatch(ctx context.Context, grants []Grant) error
}

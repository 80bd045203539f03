package ledger

import "context"

// RepositoryPort defines persistence for certificates. Insert assigns
// the next sequential id; ids are never reused, even after revocation.
type RepositoryPort interface {
	Insert(ctx context.Context, owner, metadataRef string) (int64, error)
	Get(ctx context.Context, id int64) (Certificate, error)
	MarkRevoked(ctx context.Context, id int64) error
	Total(ctx context.Context) (int64, error)
}

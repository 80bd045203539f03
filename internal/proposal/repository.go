package proposal

import "context"

// RepositoryPort defines persistence for proposals, their approval
// sets, and the global approval threshold.
type RepositoryPort interface {
	Insert(ctx context.Context, p Proposal) (int64, error)
	Get(ctx context.Context, id int64) (Proposal, error)
	IDs(ctx context.Context) ([]int64, error)
	Pending(ctx context.Context) ([]Proposal, error)
	AddApproval(ctx context.Context, id int64, account string) error
	RemoveApproval(ctx context.Context, id int64, account string) error
	MarkCancelled(ctx context.Context, id int64) error
	// ExecuteMint commits the optional final approval (approver may be
	// empty for the manual path), the certificate row, and the executed
	// flag in a single transaction, returning the new certificate id.
	ExecuteMint(ctx context.Context, id int64, approver, recipient, metadataRef string) (int64, error)
	// Threshold returns the stored threshold, or 0 when none is set.
	Threshold(ctx context.Context) (int, error)
	SetThreshold(ctx context.Context, n int) error
}

// Package ledger owns the certificate records. Certificates are
// soulbound: the owner is fixed at mint time and no transfer operation
// exists anywhere in the registry.
package ledger

import "time"

// Certificate is one issued credential.
type Certificate struct {
	ID          int64     `json:"id"`
	Owner       string    `json:"owner"`
	MetadataRef string    `json:"metadata_ref"`
	Revoked     bool      `json:"revoked"`
	MintedAt    time.Time `json:"minted_at"`
	RevokedAt   time.Time `json:"revoked_at,omitempty"`
}

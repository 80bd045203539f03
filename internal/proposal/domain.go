// Package proposal implements the multi-signature issuance path. ADMIN
// holders cannot mint directly; they open a proposal and distinct,
// non-proposer admins approve it until the threshold triggers an atomic
// mint.
package proposal

import "time"

// Proposal is one pending, executed, or cancelled issuance request.
type Proposal struct {
	ID            int64     `json:"id"`
	Proposer      string    `json:"proposer"`
	Recipient     string    `json:"recipient"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	MetadataRef   string    `json:"metadata_ref"`
	Approvers     []string  `json:"approvers"`
	ApprovalCount int       `json:"approval_count"`
	Executed      bool      `json:"executed"`
	Cancelled     bool      `json:"cancelled"`
	CertificateID int64     `json:"certificate_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Terminal reports whether the proposal accepts no further mutations.
func (p Proposal) Terminal() bool {
	return p.Executed || p.Cancelled
}

// HasApprover reports whether account is in the approval set.
func (p Proposal) HasApprover(account string) bool {
	for _, a := range p.Approvers {
		if a == account {
			return true
		}
	}
	return false
}

// Package events defines the immutable notification records emitted by
// the registry. Every successful mutation produces exactly one event;
// failures produce none. External observers (an indexer, a dashboard)
// can reconstruct registry state from the stream without polling.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind names a mutation type.
type Kind string

const (
	KindRoleGranted          Kind = "role.granted"
	KindRoleRevoked          Kind = "role.revoked"
	KindRoleEmergencyRevoked Kind = "role.emergency_revoked"
	KindRoleRequested        Kind = "role.requested"
	KindCertMinted           Kind = "cert.minted"
	KindCertRevoked          Kind = "cert.revoked"
	KindProposalCreated      Kind = "proposal.created"
	KindProposalApproved     Kind = "proposal.approved"
	KindApprovalRevoked      Kind = "proposal.approval_revoked"
	KindProposalExecuted     Kind = "proposal.executed"
	KindProposalCancelled    Kind = "proposal.cancelled"
	KindThresholdChanged     Kind = "threshold.changed"
	KindRegistryPaused       Kind = "registry.paused"
	KindRegistryUnpaused     Kind = "registry.unpaused"
)

// Event is a single immutable notification record.
type Event struct {
	ID       uuid.UUID      `json:"id"`
	Kind     Kind           `json:"kind"`
	Actor    string         `json:"actor"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// New builds an event with a fresh id and timestamp.
func New(kind Kind, actor, entity, entityID string, meta map[string]any) Event {
	return Event{
		ID:       uuid.New(),
		Kind:     kind,
		Actor:    actor,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       time.Now().UTC(),
	}
}

// Publisher delivers events to external observers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

package proposal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meridian-certs/meridian/internal/events"
	"github.com/meridian-certs/meridian/internal/hierarchy"
	"github.com/meridian-certs/meridian/internal/shared"
)

// RoleChecker answers role membership questions.
type RoleChecker interface {
	HasRole(ctx context.Context, account string, role hierarchy.Role) (bool, error)
}

// PauseChecker rejects mutations while the registry is paused.
type PauseChecker interface {
	EnsureActive() error
}

// Service drives the proposal state machine: Pending, then exactly one
// of Executed or Cancelled. Approvals are processed strictly in call
// order under the shared gate; the approval that reaches the threshold
// commits the mint in the same repository transaction.
type Service struct {
	repo             RepositoryPort
	roles            RoleChecker
	pause            PauseChecker
	bus              events.Publisher
	gate             *shared.Gate
	logger           *slog.Logger
	defaultThreshold int
}

// NewService constructs a Service. defaultThreshold applies until
// SUPER_ADMIN stores an explicit value; anything below 1 becomes 1.
func NewService(repo RepositoryPort, roles RoleChecker, pause PauseChecker, bus events.Publisher, gate *shared.Gate, logger *slog.Logger, defaultThreshold int) *Service {
	if defaultThreshold < 1 {
		defaultThreshold = 1
	}
	return &Service{repo: repo, roles: roles, pause: pause, bus: bus, gate: gate, logger: logger, defaultThreshold: defaultThreshold}
}

func (s *Service) isAdminTier(ctx context.Context, account string) (bool, error) {
	super, err := s.roles.HasRole(ctx, account, hierarchy.RoleSuperAdmin)
	if err != nil {
		return false, err
	}
	if super {
		return true, nil
	}
	return s.roles.HasRole(ctx, account, hierarchy.RoleAdmin)
}

// Create opens a pending proposal to mint a certificate for recipient.
// ADMIN or SUPER_ADMIN only; the proposer starts with zero approvals.
func (s *Service) Create(ctx context.Context, caller, recipient, title, description, metadataRef string) (int64, error) {
	if err := s.pause.EnsureActive(); err != nil {
		return 0, err
	}
	if caller == "" {
		return 0, fmt.Errorf("%w: caller required", shared.ErrValidation)
	}
	if strings.TrimSpace(recipient) == "" {
		return 0, fmt.Errorf("%w: recipient required", shared.ErrValidation)
	}
	if strings.TrimSpace(metadataRef) == "" {
		return 0, fmt.Errorf("%w: metadata reference required", shared.ErrValidation)
	}
	var id int64
	err := s.gate.Do(func() error {
		ok, err := s.isAdminTier(ctx, caller)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: creating proposals requires ADMIN or SUPER_ADMIN", shared.ErrUnauthorized)
		}
		id, err = s.repo.Insert(ctx, Proposal{
			Proposer:    caller,
			Recipient:   recipient,
			Title:       title,
			Description: description,
			MetadataRef: metadataRef,
		})
		if err != nil {
			return err
		}
		s.publish(ctx, events.New(events.KindProposalCreated, caller, "proposal", fmt.Sprint(id), map[string]any{"recipient": recipient, "title": title}))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Approve adds the caller to the approval set. When the set reaches the
// threshold, the same call mints the certificate and marks the proposal
// executed atomically; there is no observable approved-but-not-executed
// state.
func (s *Service) Approve(ctx context.Context, caller string, id int64) error {
	if err := s.pause.EnsureActive(); err != nil {
		return err
	}
	if caller == "" {
		return fmt.Errorf("%w: caller required", shared.ErrValidation)
	}
	return s.gate.Do(func() error {
		ok, err := s.isAdminTier(ctx, caller)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: approving proposals requires ADMIN or SUPER_ADMIN", shared.ErrUnauthorized)
		}
		p, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if p.Terminal() {
			return fmt.Errorf("%w: proposal %d is no longer pending", shared.ErrInvalidState, id)
		}
		if p.Proposer == caller {
			return fmt.Errorf("%w: cannot approve your own proposal", shared.ErrInvalidState)
		}
		if p.HasApprover(caller) {
			return fmt.Errorf("%w: already approved proposal %d", shared.ErrInvalidState, id)
		}
		threshold, err := s.threshold(ctx)
		if err != nil {
			return err
		}
		if p.ApprovalCount+1 >= threshold {
			certID, err := s.repo.ExecuteMint(ctx, id, caller, p.Recipient, p.MetadataRef)
			if err != nil {
				return err
			}
			s.publish(ctx, events.New(events.KindProposalApproved, caller, "proposal", fmt.Sprint(id), map[string]any{"approvals": p.ApprovalCount + 1}))
			s.publish(ctx, events.New(events.KindCertMinted, caller, "certificate", fmt.Sprint(certID), map[string]any{"owner": p.Recipient, "metadata_ref": p.MetadataRef, "proposal": id}))
			s.publish(ctx, events.New(events.KindProposalExecuted, caller, "proposal", fmt.Sprint(id), map[string]any{"certificate": certID}))
			return nil
		}
		if err := s.repo.AddApproval(ctx, id, caller); err != nil {
			return err
		}
		s.publish(ctx, events.New(events.KindProposalApproved, caller, "proposal", fmt.Sprint(id), map[string]any{"approvals": p.ApprovalCount + 1}))
		return nil
	})
}

// RevokeApproval removes the caller from the approval set of a pending
// proposal, freeing them to approve again later.
func (s *Service) RevokeApproval(ctx context.Context, caller string, id int64) error {
	if err := s.pause.EnsureActive(); err != nil {
		return err
	}
	if caller == "" {
		return fmt.Errorf("%w: caller required", shared.ErrValidation)
	}
	return s.gate.Do(func() error {
		p, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if p.Terminal() {
			return fmt.Errorf("%w: proposal %d is no longer pending", shared.ErrInvalidState, id)
		}
		if !p.HasApprover(caller) {
			return fmt.Errorf("%w: caller has not approved proposal %d", shared.ErrInvalidState, id)
		}
		if err := s.repo.RemoveApproval(ctx, id, caller); err != nil {
			return err
		}
		s.publish(ctx, events.New(events.KindApprovalRevoked, caller, "proposal", fmt.Sprint(id), map[string]any{"approvals": p.ApprovalCount - 1}))
		return nil
	})
}

// Execute is the manual fallback for proposals whose approval count
// already meets the threshold, e.g. after SUPER_ADMIN lowered it. It
// shares the atomic execution routine with Approve, so a proposal can
// execute at most once.
func (s *Service) Execute(ctx context.Context, caller string, id int64) error {
	if err := s.pause.EnsureActive(); err != nil {
		return err
	}
	if caller == "" {
		return fmt.Errorf("%w: caller required", shared.ErrValidation)
	}
	return s.gate.Do(func() error {
		ok, err := s.isAdminTier(ctx, caller)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: executing proposals requires ADMIN or SUPER_ADMIN", shared.ErrUnauthorized)
		}
		p, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if p.Terminal() {
			return fmt.Errorf("%w: proposal %d is no longer pending", shared.ErrInvalidState, id)
		}
		threshold, err := s.threshold(ctx)
		if err != nil {
			return err
		}
		if p.ApprovalCount < threshold {
			return fmt.Errorf("%w: proposal %d has %d of %d required approvals", shared.ErrInvalidState, id, p.ApprovalCount, threshold)
		}
		certID, err := s.repo.ExecuteMint(ctx, id, "", p.Recipient, p.MetadataRef)
		if err != nil {
			return err
		}
		s.publish(ctx, events.New(events.KindCertMinted, caller, "certificate", fmt.Sprint(certID), map[string]any{"owner": p.Recipient, "metadata_ref": p.MetadataRef, "proposal": id}))
		s.publish(ctx, events.New(events.KindProposalExecuted, caller, "proposal", fmt.Sprint(id), map[string]any{"certificate": certID}))
		return nil
	})
}

// Cancel marks a pending proposal cancelled. SUPER_ADMIN only.
func (s *Service) Cancel(ctx context.Context, caller string, id int64) error {
	if err := s.pause.EnsureActive(); err != nil {
		return err
	}
	if caller == "" {
		return fmt.Errorf("%w: caller required", shared.ErrValidation)
	}
	return s.gate.Do(func() error {
		ok, err := s.roles.HasRole(ctx, caller, hierarchy.RoleSuperAdmin)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: cancelling proposals requires SUPER_ADMIN", shared.ErrUnauthorized)
		}
		p, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if p.Terminal() {
			return fmt.Errorf("%w: proposal %d is no longer pending", shared.ErrInvalidState, id)
		}
		if err := s.repo.MarkCancelled(ctx, id); err != nil {
			return err
		}
		s.publish(ctx, events.New(events.KindProposalCancelled, caller, "proposal", fmt.Sprint(id), nil))
		return nil
	})
}

// SetThreshold stores a new global approval threshold. SUPER_ADMIN
// only; the threshold must be at least 1.
func (s *Service) SetThreshold(ctx context.Context, caller string, n int) error {
	if err := s.pause.EnsureActive(); err != nil {
		return err
	}
	if caller == "" {
		return fmt.Errorf("%w: caller required", shared.ErrValidation)
	}
	if n < 1 {
		return fmt.Errorf("%w: threshold must be at least 1", shared.ErrValidation)
	}
	return s.gate.Do(func() error {
		ok, err := s.roles.HasRole(ctx, caller, hierarchy.RoleSuperAdmin)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: changing the threshold requires SUPER_ADMIN", shared.ErrUnauthorized)
		}
		if err := s.repo.SetThreshold(ctx, n); err != nil {
			return err
		}
		s.publish(ctx, events.New(events.KindThresholdChanged, caller, "registry", "approval_threshold", map[string]any{"threshold": n}))
		return nil
	})
}

// Threshold returns the currently effective approval threshold.
func (s *Service) Threshold(ctx context.Context) (int, error) {
	return s.threshold(ctx)
}

func (s *Service) threshold(ctx context.Context) (int, error) {
	n, err := s.repo.Threshold(ctx)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return s.defaultThreshold, nil
	}
	return n, nil
}

// Get returns one proposal.
func (s *Service) Get(ctx context.Context, id int64) (Proposal, error) {
	return s.repo.Get(ctx, id)
}

// IDs returns every proposal id in creation order.
func (s *Service) IDs(ctx context.Context) ([]int64, error) {
	return s.repo.IDs(ctx)
}

// Pending returns proposals that are still open for approvals.
func (s *Service) Pending(ctx context.Context) ([]Proposal, error) {
	return s.repo.Pending(ctx)
}

// HasApproved reports whether account is in the approval set of id.
func (s *Service) HasApproved(ctx context.Context, id int64, account string) (bool, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return p.HasApprover(account), nil
}

// Approvers returns the approval set of id in approval order.
func (s *Service) Approvers(ctx context.Context, id int64) ([]string, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.Approvers, nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, ev); err != nil && s.logger != nil {
		s.logger.Error("publish event", slog.String("kind", string(ev.Kind)), slog.Any("error", err))
	}
}

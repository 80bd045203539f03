package hierarchy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meridian-certs/meridian/internal/events"
	"github.com/meridian-certs/meridian/internal/shared"
)

// AuditRecorder persists audit entries for the out-of-band review trail.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service enforces the delegation graph over role memberships.
type Service struct {
	repo   RepositoryPort
	audit  AuditRecorder
	bus    events.Publisher
	gate   *shared.Gate
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, audit AuditRecorder, bus events.Publisher, gate *shared.Gate, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, bus: bus, gate: gate, logger: logger}
}

// GrantRole grants role to account on behalf of caller. The caller must
// administer the role per the delegation table or the SUPER_ADMIN
// override.
func (s *Service) GrantRole(ctx context.Context, caller, account string, role Role) error {
	if caller == "" || account == "" {
		return fmt.Errorf("%w: caller and account required", shared.ErrValidation)
	}
	if role == RoleRoot {
		return fmt.Errorf("%w: root role is not grantable", shared.ErrInvalidState)
	}
	return s.gate.Do(func() error {
		callerRoles, err := s.repo.Roles(ctx, caller)
		if err != nil {
			return err
		}
		if !administers(callerRoles, role) {
			return fmt.Errorf("%w: caller does not administer role %s", shared.ErrUnauthorized, role)
		}
		held, err := s.repo.Roles(ctx, account)
		if err != nil {
			return err
		}
		if hasRole(held, role) {
			return fmt.Errorf("%w: account already holds role %s", shared.ErrInvalidState, role)
		}
		if err := s.repo.Grant(ctx, account, role); err != nil {
			return err
		}
		s.publish(ctx, events.New(events.KindRoleGranted, caller, "role", string(role), map[string]any{"account": account}))
		return nil
	})
}

// RevokeRole removes role from account through the normal delegation path.
func (s *Service) RevokeRole(ctx context.Context, caller, account string, role Role) error {
	if caller == "" || account == "" {
		return fmt.Errorf("%w: caller and account required", shared.ErrValidation)
	}
	if role == RoleRoot {
		return fmt.Errorf("%w: root role is not revocable", shared.ErrInvalidState)
	}
	return s.gate.Do(func() error {
		callerRoles, err := s.repo.Roles(ctx, caller)
		if err != nil {
			return err
		}
		if !administers(callerRoles, role) {
			return fmt.Errorf("%w: caller does not administer role %s", shared.ErrUnauthorized, role)
		}
		held, err := s.repo.Roles(ctx, account)
		if err != nil {
			return err
		}
		if !hasRole(held, role) {
			return fmt.Errorf("%w: account does not hold role %s", shared.ErrInvalidState, role)
		}
		if err := s.repo.Revoke(ctx, account, role); err != nil {
			return err
		}
		s.publish(ctx, events.New(events.KindRoleRevoked, caller, "role", string(role), map[string]any{"account": account}))
		return nil
	})
}

// EmergencyRevokeRole strips role from account outside the delegation
// path. SUPER_ADMIN only; the justification is mandatory and lands in
// the audit trail.
func (s *Service) EmergencyRevokeRole(ctx context.Context, caller, account string, role Role, reason string) error {
	if caller == "" || account == "" {
		return fmt.Errorf("%w: caller and account required", shared.ErrValidation)
	}
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: justification required for emergency revocation", shared.ErrValidation)
	}
	if role.Protected() {
		return fmt.Errorf("%w: role %s is protected", shared.ErrInvalidState, role)
	}
	return s.gate.Do(func() error {
		callerRoles, err := s.repo.Roles(ctx, caller)
		if err != nil {
			return err
		}
		if !hasRole(callerRoles, RoleSuperAdmin) {
			return fmt.Errorf("%w: emergency revocation requires SUPER_ADMIN", shared.ErrUnauthorized)
		}
		held, err := s.repo.Roles(ctx, account)
		if err != nil {
			return err
		}
		if !hasRole(held, role) {
			return fmt.Errorf("%w: account does not hold role %s", shared.ErrInvalidState, role)
		}
		if err := s.repo.Revoke(ctx, account, role); err != nil {
			return err
		}
		s.recordAudit(ctx, shared.AuditLog{
			Actor:    caller,
			Action:   "role.emergency_revoke",
			Entity:   "role",
			EntityID: string(role),
			Meta:     map[string]any{"account": account, "reason": reason},
		})
		s.publish(ctx, events.New(events.KindRoleEmergencyRevoked, caller, "role", string(role), map[string]any{"account": account, "reason": reason}))
		return nil
	})
}

// RequestRole records an auditable request for a role. Review happens
// out of band; no membership changes here.
func (s *Service) RequestRole(ctx context.Context, caller string, role Role, justification string) error {
	if caller == "" {
		return fmt.Errorf("%w: caller required", shared.ErrValidation)
	}
	if strings.TrimSpace(justification) == "" {
		return fmt.Errorf("%w: justification required", shared.ErrValidation)
	}
	if role.Protected() {
		return fmt.Errorf("%w: role %s cannot be requested", shared.ErrInvalidState, role)
	}
	held, err := s.repo.Roles(ctx, caller)
	if err != nil {
		return err
	}
	if hasRole(held, role) {
		return fmt.Errorf("%w: caller already holds role %s", shared.ErrInvalidState, role)
	}
	s.recordAudit(ctx, shared.AuditLog{
		Actor:    caller,
		Action:   "role.request",
		Entity:   "role",
		EntityID: string(role),
		Meta:     map[string]any{"justification": justification},
	})
	s.publish(ctx, events.New(events.KindRoleRequested, caller, "role", string(role), map[string]any{"justification": justification}))
	return nil
}

// BatchGrantRoles grants accounts[i] the role roles[i]. SUPER_ADMIN
// only. Pairs whose role is already held are skipped; everything else
// commits atomically or not at all.
func (s *Service) BatchGrantRoles(ctx context.Context, caller string, accounts []string, roles []Role) error {
	if caller == "" {
		return fmt.Errorf("%w: caller required", shared.ErrValidation)
	}
	if len(accounts) != len(roles) {
		return fmt.Errorf("%w: accounts and roles must have equal length", shared.ErrValidation)
	}
	return s.gate.Do(func() error {
		callerRoles, err := s.repo.Roles(ctx, caller)
		if err != nil {
			return err
		}
		if !hasRole(callerRoles, RoleSuperAdmin) {
			return fmt.Errorf("%w: batch grant requires SUPER_ADMIN", shared.ErrUnauthorized)
		}
		var pending []Grant
		for i, account := range accounts {
			role := roles[i]
			if account == "" {
				return fmt.Errorf("%w: empty account at index %d", shared.ErrValidation, i)
			}
			if !administers(callerRoles, role) {
				return fmt.Errorf("%w: role %s is protected", shared.ErrInvalidState, role)
			}
			held, err := s.repo.Roles(ctx, account)
			if err != nil {
				return err
			}
			if hasRole(held, role) {
				continue
			}
			pending = append(pending, Grant{Account: account, Role: role})
		}
		if len(pending) == 0 {
			return nil
		}
		if err := s.repo.GrantBatch(ctx, pending); err != nil {
			return err
		}
		for _, g := range pending {
			s.publish(ctx, events.New(events.KindRoleGranted, caller, "role", string(g.Role), map[string]any{"account": g.Account, "batch": true}))
		}
		return nil
	})
}

// Roles returns every role held by account.
func (s *Service) Roles(ctx context.Context, account string) ([]Role, error) {
	if account == "" {
		return nil, fmt.Errorf("%w: account required", shared.ErrValidation)
	}
	return s.repo.Roles(ctx, account)
}

// IsAdmin reports whether account holds SUPER_ADMIN or ADMIN.
func (s *Service) IsAdmin(ctx context.Context, account string) (bool, error) {
	held, err := s.repo.Roles(ctx, account)
	if err != nil {
		return false, err
	}
	return hasRole(held, RoleSuperAdmin) || hasRole(held, RoleAdmin), nil
}

// CanIssue reports whether account holds a role in the issuance tier.
// ADMIN holders still cannot mint directly; they route through the
// proposal engine.
func (s *Service) CanIssue(ctx context.Context, account string) (bool, error) {
	held, err := s.repo.Roles(ctx, account)
	if err != nil {
		return false, err
	}
	return hasRole(held, RoleSuperAdmin) || hasRole(held, RoleAdmin) || hasRole(held, RoleIssuer), nil
}

// CanRevoke reports whether account may revoke certificates. Only
// SUPER_ADMIN qualifies; REVOKER confers no enforced capability.
func (s *Service) CanRevoke(ctx context.Context, account string) (bool, error) {
	held, err := s.repo.Roles(ctx, account)
	if err != nil {
		return false, err
	}
	return hasRole(held, RoleSuperAdmin), nil
}

// HasRole reports whether account currently holds role.
func (s *Service) HasRole(ctx context.Context, account string, role Role) (bool, error) {
	held, err := s.repo.Roles(ctx, account)
	if err != nil {
		return false, err
	}
	return hasRole(held, role), nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, ev); err != nil && s.logger != nil {
		s.logger.Error("publish event", slog.String("kind", string(ev.Kind)), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil && s.logger != nil {
		s.logger.Error("record audit", slog.String("action", log.Action), slog.Any("error", err))
	}
}

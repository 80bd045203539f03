package ledger

import (
	"context"
	"errors"
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

// Service enforces issuance and revocation rules over the certificate
// records.
type Service struct {
	repo   RepositoryPort
	roles  RoleChecker
	pause  PauseChecker
	bus    events.Publisher
	gate   *shared.Gate
	cache  *VerifyCache
	logger *slog.Logger
}

// NewService constructs a Service. cache may be nil.
func NewService(repo RepositoryPort, roles RoleChecker, pause PauseChecker, bus events.Publisher, gate *shared.Gate, cache *VerifyCache, logger *slog.Logger) *Service {
	return &Service{repo: repo, roles: roles, pause: pause, bus: bus, gate: gate, cache: cache, logger: logger}
}

// Mint issues a certificate to recipient. Only SUPER_ADMIN and ISSUER
// may mint directly; ADMIN must route through the proposal engine.
func (s *Service) Mint(ctx context.Context, caller, recipient, metadataRef string) (int64, error) {
	if err := s.pause.EnsureActive(); err != nil {
		return 0, err
	}
	var id int64
	err := s.gate.Do(func() error {
		super, err := s.roles.HasRole(ctx, caller, hierarchy.RoleSuperAdmin)
		if err != nil {
			return err
		}
		issuer, err := s.roles.HasRole(ctx, caller, hierarchy.RoleIssuer)
		if err != nil {
			return err
		}
		if !super && !issuer {
			return fmt.Errorf("%w: direct minting requires SUPER_ADMIN or ISSUER", shared.ErrUnauthorized)
		}
		id, err = s.mintLocked(ctx, caller, recipient, metadataRef)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Service) mintLocked(ctx context.Context, actor, recipient, metadataRef string) (int64, error) {
	if strings.TrimSpace(recipient) == "" {
		return 0, fmt.Errorf("%w: recipient required", shared.ErrValidation)
	}
	if strings.TrimSpace(metadataRef) == "" {
		return 0, fmt.Errorf("%w: metadata reference required", shared.ErrValidation)
	}
	id, err := s.repo.Insert(ctx, recipient, metadataRef)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, events.New(events.KindCertMinted, actor, "certificate", fmt.Sprint(id), map[string]any{"owner": recipient, "metadata_ref": metadataRef}))
	return id, nil
}

// Revoke flips the revoked flag. SUPER_ADMIN only; a certificate is
// revoked at most once and the owner never changes.
func (s *Service) Revoke(ctx context.Context, caller string, id int64) error {
	if err := s.pause.EnsureActive(); err != nil {
		return err
	}
	return s.gate.Do(func() error {
		ok, err := s.roles.HasRole(ctx, caller, hierarchy.RoleSuperAdmin)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: revocation requires SUPER_ADMIN", shared.ErrUnauthorized)
		}
		cert, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if cert.Revoked {
			return fmt.Errorf("%w: certificate %d already revoked", shared.ErrInvalidState, id)
		}
		if err := s.repo.MarkRevoked(ctx, id); err != nil {
			return err
		}
		if s.cache != nil {
			s.cache.Invalidate(ctx, id)
		}
		s.publish(ctx, events.New(events.KindCertRevoked, caller, "certificate", fmt.Sprint(id), map[string]any{"owner": cert.Owner}))
		return nil
	})
}

// Verify reports whether id exists and has not been revoked. Available
// while paused.
func (s *Service) Verify(ctx context.Context, id int64) (bool, error) {
	if s.cache != nil {
		return s.cache.Verify(ctx, id, s.verifyDirect)
	}
	return s.verifyDirect(ctx, id)
}

func (s *Service) verifyDirect(ctx context.Context, id int64) (bool, error) {
	cert, err := s.repo.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return !cert.Revoked, nil
}

// Details returns the full record for id.
func (s *Service) Details(ctx context.Context, id int64) (Certificate, error) {
	return s.repo.Get(ctx, id)
}

// Total counts every certificate ever minted.
func (s *Service) Total(ctx context.Context) (int64, error) {
	return s.repo.Total(ctx)
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, ev); err != nil && s.logger != nil {
		s.logger.Error("publish event", slog.String("kind", string(ev.Kind)), slog.Any("error", err))
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}

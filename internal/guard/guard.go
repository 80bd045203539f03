// Package guard implements the registry pause switch. While paused,
// every certificate and proposal mutation is rejected; role operations
// and pure queries stay available so emergency control keeps working.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/meridian-certs/meridian/internal/events"
	"github.com/meridian-certs/meridian/internal/hierarchy"
	"github.com/meridian-certs/meridian/internal/shared"
)

// RepositoryPort persists the pause flag across restarts.
type RepositoryPort interface {
	Paused(ctx context.Context) (bool, error)
	SetPaused(ctx context.Context, paused bool) error
}

// RoleChecker answers role membership questions.
type RoleChecker interface {
	HasRole(ctx context.Context, account string, role hierarchy.Role) (bool, error)
}

// Service owns the global pause flag.
type Service struct {
	repo   RepositoryPort
	roles  RoleChecker
	bus    events.Publisher
	gate   *shared.Gate
	logger *slog.Logger

	paused atomic.Bool
}

// NewService constructs a Service. Load must be called before serving.
func NewService(repo RepositoryPort, roles RoleChecker, bus events.Publisher, gate *shared.Gate, logger *slog.Logger) *Service {
	return &Service{repo: repo, roles: roles, bus: bus, gate: gate, logger: logger}
}

// Load reads the persisted flag into the in-process cache.
func (s *Service) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	paused, err := s.repo.Paused(ctx)
	if err != nil {
		return fmt.Errorf("guard: load pause flag: %w", err)
	}
	s.paused.Store(paused)
	return nil
}

// Pause halts certificate and proposal mutations. SUPER_ADMIN only.
func (s *Service) Pause(ctx context.Context, caller string) error {
	return s.toggle(ctx, caller, true)
}

// Unpause resumes normal operation. SUPER_ADMIN only.
func (s *Service) Unpause(ctx context.Context, caller string) error {
	return s.toggle(ctx, caller, false)
}

func (s *Service) toggle(ctx context.Context, caller string, paused bool) error {
	if caller == "" {
		return fmt.Errorf("%w: caller required", shared.ErrValidation)
	}
	return s.gate.Do(func() error {
		ok, err := s.roles.HasRole(ctx, caller, hierarchy.RoleSuperAdmin)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: pause control requires SUPER_ADMIN", shared.ErrUnauthorized)
		}
		if s.paused.Load() == paused {
			if paused {
				return fmt.Errorf("%w: registry already paused", shared.ErrInvalidState)
			}
			return fmt.Errorf("%w: registry is not paused", shared.ErrInvalidState)
		}
		if s.repo != nil {
			if err := s.repo.SetPaused(ctx, paused); err != nil {
				return err
			}
		}
		s.paused.Store(paused)
		kind := events.KindRegistryPaused
		if !paused {
			kind = events.KindRegistryUnpaused
		}
		s.publish(ctx, events.New(kind, caller, "registry", "pause", nil))
		return nil
	})
}

// Paused reports the current flag.
func (s *Service) Paused() bool {
	return s.paused.Load()
}

// EnsureActive returns ErrPaused while the registry is paused.
func (s *Service) EnsureActive() error {
	if s.paused.Load() {
		return fmt.Errorf("%w: mutations are disabled", shared.ErrPaused)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, ev); err != nil && s.logger != nil {
		s.logger.Error("publish event", slog.String("kind", string(ev.Kind)), slog.Any("error", err))
	}
}

package hierarchy

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/meridian-certs/meridian/internal/events"
	"github.com/meridian-certs/meridian/internal/shared"
	_ "github.com/meridian-certs/meridian/testing"
)

type memRepo struct {
	memberships map[string]map[Role]bool
	failBatch   bool
}

func newMemRepo(seed map[string][]Role) *memRepo {
	m := &memRepo{memberships: make(map[string]map[Role]bool)}
	for account, roles := range seed {
		for _, role := range roles {
			m.set(account, role)
		}
	}
	return m
}

func (m *memRepo) set(account string, role Role) {
	if m.memberships[account] == nil {
		m.memberships[account] = make(map[Role]bool)
	}
	m.memberships[account][role] = true
}

func (m *memRepo) Roles(_ context.Context, account string) ([]Role, error) {
	var roles []Role
	for role := range m.memberships[account] {
		roles = append(roles, role)
	}
	return roles, nil
}

func (m *memRepo) Grant(_ context.Context, account string, role Role) error {
	m.set(account, role)
	return nil
}

func (m *memRepo) Revoke(_ context.Context, account string, role Role) error {
	delete(m.memberships[account], role)
	return nil
}

func (m *memRepo) GrantBatch(_ context.Context, grants []Grant) error {
	if m.failBatch {
		return errors.New("storage unavailable")
	}
	for _, g := range grants {
		m.set(g.Account, g.Role)
	}
	return nil
}

type stubAudit struct {
	logs []shared.AuditLog
}

func (s *stubAudit) Record(_ context.Context, log shared.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func newTestService(repo *memRepo) (*Service, *stubAudit, *events.Recorder) {
	audit := &stubAudit{}
	recorder := events.NewRecorder()
	svc := NewService(repo, audit, recorder, shared.NewGate(), slog.Default())
	return svc, audit, recorder
}

func TestGrantRoleDelegation(t *testing.T) {
	cases := []struct {
		name    string
		caller  string
		role    Role
		wantErr error
	}{
		{"root grants super_admin", "root", RoleSuperAdmin, nil},
		{"super grants admin", "super", RoleAdmin, nil},
		{"super grants issuer via override", "super", RoleIssuer, nil},
		{"super grants verifier via override", "super", RoleVerifier, nil},
		{"admin grants issuer", "admin", RoleIssuer, nil},
		{"admin grants revoker", "admin", RoleRevoker, nil},
		{"admin cannot grant admin", "admin", RoleAdmin, shared.ErrUnauthorized},
		{"admin cannot grant super_admin", "admin", RoleSuperAdmin, shared.ErrUnauthorized},
		{"super cannot grant super_admin", "super", RoleSuperAdmin, shared.ErrUnauthorized},
		{"issuer cannot grant anything", "issuer", RoleVerifier, shared.ErrUnauthorized},
		{"nobody grants root", "root", RoleRoot, shared.ErrInvalidState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemRepo(map[string][]Role{
				"root":   {RoleRoot},
				"super":  {RoleSuperAdmin},
				"admin":  {RoleAdmin},
				"issuer": {RoleIssuer},
			})
			svc, _, recorder := newTestService(repo)
			err := svc.GrantRole(context.Background(), tc.caller, "acct:target", tc.role)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("grant: %v", err)
				}
				if !repo.memberships["acct:target"][tc.role] {
					t.Fatalf("membership missing after grant")
				}
				if len(recorder.Events()) != 1 {
					t.Fatalf("expected one event, got %d", len(recorder.Events()))
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if repo.memberships["acct:target"][tc.role] {
				t.Fatalf("membership mutated on failure")
			}
			if len(recorder.Events()) != 0 {
				t.Fatalf("no events expected on failure")
			}
		})
	}
}

func TestGrantRoleAlreadyHeld(t *testing.T) {
	repo := newMemRepo(map[string][]Role{
		"super":  {RoleSuperAdmin},
		"target": {RoleIssuer},
	})
	svc, _, _ := newTestService(repo)
	err := svc.GrantRole(context.Background(), "super", "target", RoleIssuer)
	if !errors.Is(err, shared.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestRevokeRole(t *testing.T) {
	repo := newMemRepo(map[string][]Role{
		"super":  {RoleSuperAdmin},
		"admin":  {RoleAdmin},
		"target": {RoleIssuer},
	})
	svc, _, recorder := newTestService(repo)

	if err := svc.RevokeRole(context.Background(), "admin", "target", RoleIssuer); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if repo.memberships["target"][RoleIssuer] {
		t.Fatalf("role still held after revoke")
	}
	if got := recorder.Events(); len(got) != 1 || got[0].Kind != events.KindRoleRevoked {
		t.Fatalf("unexpected events %v", got)
	}

	// Revoking a role the account does not hold is an error.
	err := svc.RevokeRole(context.Background(), "admin", "target", RoleIssuer)
	if !errors.Is(err, shared.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestEmergencyRevokeRole(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo(map[string][]Role{
		"super":  {RoleSuperAdmin},
		"admin":  {RoleAdmin},
		"target": {RoleAdmin},
	})
	svc, audit, recorder := newTestService(repo)

	if err := svc.EmergencyRevokeRole(ctx, "super", "target", RoleAdmin, ""); !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error for empty reason, got %v", err)
	}
	if err := svc.EmergencyRevokeRole(ctx, "admin", "target", RoleAdmin, "compromise"); !errors.Is(err, shared.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for non-super caller, got %v", err)
	}
	if err := svc.EmergencyRevokeRole(ctx, "super", "target", RoleSuperAdmin, "compromise"); !errors.Is(err, shared.ErrInvalidState) {
		t.Fatalf("expected invalid state for protected role, got %v", err)
	}

	if err := svc.EmergencyRevokeRole(ctx, "super", "target", RoleAdmin, "account key compromised"); err != nil {
		t.Fatalf("emergency revoke: %v", err)
	}
	if repo.memberships["target"][RoleAdmin] {
		t.Fatalf("role still held after emergency revoke")
	}
	if len(audit.logs) != 1 || audit.logs[0].Action != "role.emergency_revoke" {
		t.Fatalf("expected one audit entry, got %+v", audit.logs)
	}
	evs := recorder.Events()
	if len(evs) != 1 || evs[0].Kind != events.KindRoleEmergencyRevoked {
		t.Fatalf("unexpected events %v", evs)
	}
	if evs[0].Meta["reason"] != "account key compromised" {
		t.Fatalf("reason missing from event meta")
	}
}

func TestRequestRole(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo(map[string][]Role{
		"alice": {RoleVerifier},
	})
	svc, audit, recorder := newTestService(repo)

	if err := svc.RequestRole(ctx, "alice", RoleIssuer, "runs the print shop"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if len(audit.logs) != 1 || audit.logs[0].Action != "role.request" {
		t.Fatalf("expected audit entry, got %+v", audit.logs)
	}
	if got := recorder.Events(); len(got) != 1 || got[0].Kind != events.KindRoleRequested {
		t.Fatalf("unexpected events %v", got)
	}
	// No membership mutation happens on request.
	if repo.memberships["alice"][RoleIssuer] {
		t.Fatalf("request must not grant")
	}

	if err := svc.RequestRole(ctx, "alice", RoleVerifier, "again"); !errors.Is(err, shared.ErrInvalidState) {
		t.Fatalf("expected invalid state for held role, got %v", err)
	}
	if err := svc.RequestRole(ctx, "alice", RoleSuperAdmin, "please"); !errors.Is(err, shared.ErrInvalidState) {
		t.Fatalf("expected invalid state for protected role, got %v", err)
	}
	if err := svc.RequestRole(ctx, "alice", RoleIssuer, "  "); !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error for blank justification, got %v", err)
	}
}

func TestBatchGrantRoles(t *testing.T) {
	ctx := context.Background()

	t.Run("length mismatch", func(t *testing.T) {
		repo := newMemRepo(map[string][]Role{"super": {RoleSuperAdmin}})
		svc, _, _ := newTestService(repo)
		err := svc.BatchGrantRoles(ctx, "super", []string{"a", "b"}, []Role{RoleIssuer})
		if !errors.Is(err, shared.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("requires super admin", func(t *testing.T) {
		repo := newMemRepo(map[string][]Role{"admin": {RoleAdmin}})
		svc, _, _ := newTestService(repo)
		err := svc.BatchGrantRoles(ctx, "admin", []string{"a"}, []Role{RoleIssuer})
		if !errors.Is(err, shared.ErrUnauthorized) {
			t.Fatalf("expected unauthorized, got %v", err)
		}
	})

	t.Run("skips held pairs and grants the rest", func(t *testing.T) {
		repo := newMemRepo(map[string][]Role{
			"super": {RoleSuperAdmin},
			"a":     {RoleIssuer},
		})
		svc, _, recorder := newTestService(repo)
		err := svc.BatchGrantRoles(ctx, "super", []string{"a", "b", "c"}, []Role{RoleIssuer, RoleVerifier, RoleAdmin})
		if err != nil {
			t.Fatalf("batch grant: %v", err)
		}
		if !repo.memberships["b"][RoleVerifier] || !repo.memberships["c"][RoleAdmin] {
			t.Fatalf("grants missing after batch")
		}
		if len(recorder.Events()) != 2 {
			t.Fatalf("expected two events, got %d", len(recorder.Events()))
		}
	})

	t.Run("protected role fails whole batch", func(t *testing.T) {
		repo := newMemRepo(map[string][]Role{"super": {RoleSuperAdmin}})
		svc, _, recorder := newTestService(repo)
		err := svc.BatchGrantRoles(ctx, "super", []string{"a", "b"}, []Role{RoleIssuer, RoleSuperAdmin})
		if !errors.Is(err, shared.ErrInvalidState) {
			t.Fatalf("expected invalid state, got %v", err)
		}
		if repo.memberships["a"][RoleIssuer] {
			t.Fatalf("partial grant applied")
		}
		if len(recorder.Events()) != 0 {
			t.Fatalf("no events expected on failure")
		}
	})

	t.Run("storage failure emits nothing", func(t *testing.T) {
		repo := newMemRepo(map[string][]Role{"super": {RoleSuperAdmin}})
		repo.failBatch = true
		svc, _, recorder := newTestService(repo)
		err := svc.BatchGrantRoles(ctx, "super", []string{"a"}, []Role{RoleIssuer})
		if err == nil {
			t.Fatalf("expected storage error")
		}
		if len(recorder.Events()) != 0 {
			t.Fatalf("no events expected on failure")
		}
	})
}

func TestDerivedQueries(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo(map[string][]Role{
		"super":    {RoleSuperAdmin},
		"admin":    {RoleAdmin},
		"issuer":   {RoleIssuer},
		"revoker":  {RoleRevoker},
		"verifier": {RoleVerifier},
	})
	svc, _, _ := newTestService(repo)

	type expectation struct {
		account   string
		isAdmin   bool
		canIssue  bool
		canRevoke bool
	}
	for _, want := range []expectation{
		{"super", true, true, true},
		{"admin", true, true, false},
		{"issuer", false, true, false},
		{"revoker", false, false, false},
		{"verifier", false, false, false},
		{"stranger", false, false, false},
	} {
		isAdmin, err := svc.IsAdmin(ctx, want.account)
		if err != nil {
			t.Fatalf("isAdmin(%s): %v", want.account, err)
		}
		canIssue, err := svc.CanIssue(ctx, want.account)
		if err != nil {
			t.Fatalf("canIssue(%s): %v", want.account, err)
		}
		canRevoke, err := svc.CanRevoke(ctx, want.account)
		if err != nil {
			t.Fatalf("canRevoke(%s): %v", want.account, err)
		}
		if isAdmin != want.isAdmin || canIssue != want.canIssue || canRevoke != want.canRevoke {
			t.Fatalf("%s: got admin=%v issue=%v revoke=%v, want %+v", want.account, isAdmin, canIssue, canRevoke, want)
		}
	}
}

func TestParseRole(t *testing.T) {
	if _, err := ParseRole("ISSUER"); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := ParseRole("OVERLORD"); !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

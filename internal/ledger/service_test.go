package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/meridian-certs/meridian/internal/events"
	"github.com/meridian-certs/meridian/internal/hierarchy"
	"github.com/meridian-certs/meridian/internal/shared"
	_ "github.com/meridian-certs/meridian/testing"
)

type memRepo struct {
	certs  map[int64]Certificate
	nextID int64
}

func newMemRepo() *memRepo {
	return &memRepo{certs: make(map[int64]Certificate)}
}

func (m *memRepo) Insert(_ context.Context, owner, metadataRef string) (int64, error) {
	m.nextID++
	m.certs[m.nextID] = Certificate{
		ID:          m.nextID,
		Owner:       owner,
		MetadataRef: metadataRef,
		MintedAt:    time.Now(),
	}
	return m.nextID, nil
}

func (m *memRepo) Get(_ context.Context, id int64) (Certificate, error) {
	cert, ok := m.certs[id]
	if !ok {
		return Certificate{}, fmt.Errorf("%w: certificate %d", shared.ErrNotFound, id)
	}
	return cert, nil
}

func (m *memRepo) MarkRevoked(_ context.Context, id int64) error {
	cert := m.certs[id]
	cert.Revoked = true
	cert.RevokedAt = time.Now()
	m.certs[id] = cert
	return nil
}

func (m *memRepo) Total(_ context.Context) (int64, error) {
	return m.nextID, nil
}

type stubRoles struct {
	roles map[string][]hierarchy.Role
}

func (s stubRoles) HasRole(_ context.Context, account string, role hierarchy.Role) (bool, error) {
	for _, r := range s.roles[account] {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

type stubPause struct {
	paused bool
}

func (s *stubPause) EnsureActive() error {
	if s.paused {
		return fmt.Errorf("%w: registry is paused", shared.ErrPaused)
	}
	return nil
}

type fixture struct {
	svc      *Service
	repo     *memRepo
	pause    *stubPause
	recorder *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemRepo()
	pause := &stubPause{}
	recorder := events.NewRecorder()
	roles := stubRoles{roles: map[string][]hierarchy.Role{
		"super":  {hierarchy.RoleSuperAdmin},
		"admin":  {hierarchy.RoleAdmin},
		"issuer": {hierarchy.RoleIssuer},
	}}
	svc := NewService(repo, roles, pause, recorder, shared.NewGate(), nil, slog.Default())
	return &fixture{svc: svc, repo: repo, pause: pause, recorder: recorder}
}

func TestMintAuthorization(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		caller  string
		wantErr error
	}{
		{"super", nil},
		{"issuer", nil},
		// ADMIN routes through the proposal engine; direct mint is
		// always denied.
		{"admin", shared.ErrUnauthorized},
		{"stranger", shared.ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.caller, func(t *testing.T) {
			f := newFixture(t)
			id, err := f.svc.Mint(ctx, tc.caller, "acct:grad-1", "ipfs://bafy-1")
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("mint: %v", err)
				}
				if id != 1 {
					t.Fatalf("first certificate id %d, want 1", id)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if len(f.recorder.Events()) != 0 {
				t.Fatalf("no events expected on failure")
			}
		})
	}
}

func TestMintValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.svc.Mint(ctx, "issuer", " ", "ipfs://m"); !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("blank recipient, got %v", err)
	}
	if _, err := f.svc.Mint(ctx, "issuer", "acct:x", ""); !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("blank metadata, got %v", err)
	}
	if total, _ := f.svc.Total(ctx); total != 0 {
		t.Fatalf("failed mints must not consume ids")
	}
}

func TestSequentialIdentifiers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 1; i <= 3; i++ {
		id, err := f.svc.Mint(ctx, "issuer", fmt.Sprintf("acct:grad-%d", i), fmt.Sprintf("ipfs://bafy-%d", i))
		if err != nil {
			t.Fatalf("mint %d: %v", i, err)
		}
		if id != int64(i) {
			t.Fatalf("mint %d assigned id %d", i, id)
		}
	}

	// Revocation never frees an id.
	if err := f.svc.Revoke(ctx, "super", 2); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	id, err := f.svc.Mint(ctx, "issuer", "acct:grad-4", "ipfs://bafy-4")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if id != 4 {
		t.Fatalf("id after revoke %d, want 4", id)
	}
	total, err := f.svc.Total(ctx)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 4 {
		t.Fatalf("total %d, want 4", total)
	}
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, err := f.svc.Mint(ctx, "issuer", "acct:grad-1", "ipfs://bafy-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := f.svc.Revoke(ctx, "issuer", id); !errors.Is(err, shared.ErrUnauthorized) {
		t.Fatalf("issuer revoke must fail, got %v", err)
	}
	if err := f.svc.Revoke(ctx, "admin", id); !errors.Is(err, shared.ErrUnauthorized) {
		t.Fatalf("admin revoke must fail, got %v", err)
	}
	if err := f.svc.Revoke(ctx, "super", 999); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("missing certificate, got %v", err)
	}

	if err := f.svc.Revoke(ctx, "super", id); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	cert, err := f.svc.Details(ctx, id)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if !cert.Revoked || cert.RevokedAt.IsZero() {
		t.Fatalf("certificate not marked revoked: %+v", cert)
	}
	if cert.Owner != "acct:grad-1" {
		t.Fatalf("owner changed on revoke")
	}

	// Revocation is one way.
	if err := f.svc.Revoke(ctx, "super", id); !errors.Is(err, shared.ErrInvalidState) {
		t.Fatalf("double revoke, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, err := f.svc.Mint(ctx, "issuer", "acct:grad-1", "ipfs://bafy-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	ok, err := f.svc.Verify(ctx, id)
	if err != nil || !ok {
		t.Fatalf("verify fresh cert = %v, %v", ok, err)
	}

	// Unknown ids report invalid rather than an error.
	ok, err = f.svc.Verify(ctx, 999)
	if err != nil || ok {
		t.Fatalf("verify missing cert = %v, %v", ok, err)
	}

	if err := f.svc.Revoke(ctx, "super", id); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err = f.svc.Verify(ctx, id)
	if err != nil || ok {
		t.Fatalf("verify revoked cert = %v, %v", ok, err)
	}
}

func TestPausedRegistryBlocksMintAndRevoke(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, err := f.svc.Mint(ctx, "issuer", "acct:grad-1", "ipfs://bafy-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.pause.paused = true

	if _, err := f.svc.Mint(ctx, "issuer", "acct:grad-2", "ipfs://bafy-2"); !errors.Is(err, shared.ErrPaused) {
		t.Fatalf("mint while paused, got %v", err)
	}
	if err := f.svc.Revoke(ctx, "super", id); !errors.Is(err, shared.ErrPaused) {
		t.Fatalf("revoke while paused, got %v", err)
	}

	// Verification and reads keep working.
	if ok, err := f.svc.Verify(ctx, id); err != nil || !ok {
		t.Fatalf("verify while paused = %v, %v", ok, err)
	}
	if _, err := f.svc.Details(ctx, id); err != nil {
		t.Fatalf("details while paused: %v", err)
	}
}

func TestMintEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, err := f.svc.Mint(ctx, "super", "acct:grad-1", "ipfs://bafy-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	evs := f.recorder.Events()
	if len(evs) != 1 || evs[0].Kind != events.KindCertMinted {
		t.Fatalf("unexpected events %v", evs)
	}
	if evs[0].EntityID != fmt.Sprint(id) || evs[0].Meta["owner"] != "acct:grad-1" {
		t.Fatalf("event payload %+v", evs[0])
	}
}

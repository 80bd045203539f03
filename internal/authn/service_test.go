package authn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/meridian-certs/meridian/internal/shared"
	_ "github.com/meridian-certs/meridian/testing"
)

type memRepo struct {
	keys map[string]APIKey
}

func newMemRepo() *memRepo {
	return &memRepo{keys: make(map[string]APIKey)}
}

func (m *memRepo) FindKey(_ context.Context, keyID string) (APIKey, error) {
	key, ok := m.keys[keyID]
	if !ok {
		return APIKey{}, fmt.Errorf("%w: api key %s", shared.ErrNotFound, keyID)
	}
	return key, nil
}

func (m *memRepo) InsertKey(_ context.Context, key APIKey) error {
	m.keys[key.ID] = key
	return nil
}

func TestIssueAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo())

	token, err := svc.Issue(ctx, "acct:registrar")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !strings.Contains(token, ".") {
		t.Fatalf("token %q missing keyID.secret shape", token)
	}

	account, err := svc.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if account != "acct:registrar" {
		t.Fatalf("resolved account %q", account)
	}
}

func TestAuthenticateRejections(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo)
	token, err := svc.Issue(ctx, "acct:registrar")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	keyID, _, _ := strings.Cut(token, ".")

	cases := []struct {
		name  string
		token string
	}{
		{"no separator", "justonechunk"},
		{"empty secret", keyID + "."},
		{"unknown key id", "missing.secret"},
		{"wrong secret", keyID + ".wrong"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Authenticate(ctx, tc.token); !errors.Is(err, shared.ErrUnauthorized) {
				t.Fatalf("expected unauthorized, got %v", err)
			}
		})
	}
}

func TestIssueRequiresAccount(t *testing.T) {
	svc := NewService(newMemRepo())
	if _, err := svc.Issue(context.Background(), ""); !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo())
	token, err := svc.Issue(ctx, "acct:registrar")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var gotCaller string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCaller = shared.CallerFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := Middleware{Service: svc}.Authenticate(next)

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/certificates/1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status %d", rec.Code)
		}
		if gotCaller != "acct:registrar" {
			t.Fatalf("caller %q", gotCaller)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/certificates/1", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status %d", rec.Code)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/certificates/1", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status %d", rec.Code)
		}
	})
}

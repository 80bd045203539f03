package authn

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-certs/meridian/internal/shared"
)

// RepositoryPort defines persistence for API keys.
type RepositoryPort interface {
	FindKey(ctx context.Context, keyID string) (APIKey, error)
	InsertKey(ctx context.Context, key APIKey) error
}

// Service validates bearer tokens.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Authenticate resolves a "keyID.secret" token to an account address.
func (s *Service) Authenticate(ctx context.Context, token string) (string, error) {
	keyID, secret, ok := strings.Cut(token, ".")
	if !ok || keyID == "" || secret == "" {
		return "", fmt.Errorf("%w: malformed api key", shared.ErrUnauthorized)
	}
	key, err := s.repo.FindKey(ctx, keyID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", fmt.Errorf("%w: unknown api key", shared.ErrUnauthorized)
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)); err != nil {
		return "", fmt.Errorf("%w: invalid api key", shared.ErrUnauthorized)
	}
	return key.Account, nil
}

// Issue creates an API key for account and returns the one-time token.
func (s *Service) Issue(ctx context.Context, account string) (string, error) {
	if account == "" {
		return "", fmt.Errorf("%w: account required", shared.ErrValidation)
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	secret := hex.EncodeToString(buf)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	keyID := uuid.NewString()
	if err := s.repo.InsertKey(ctx, APIKey{ID: keyID, Account: account, SecretHash: string(hash)}); err != nil {
		return "", err
	}
	return keyID + "." + secret, nil
}

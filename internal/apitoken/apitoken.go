// Package apitoken implements scoped, expiring service-account credentials
// (business_logic/api_tokens.py's CLI-parity feature, exposed at
// /api-tokens): minting a raw token, storing only its hash, and validating
// presented tokens by hash lookup.
package apitoken

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/worldline-go/types"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/domain"
)

const tokenPrefixLen = 8

// Repo is the persistence slice the token service needs.
type Repo interface {
	CreateToken(ctx context.Context, t domain.ApiToken) (*domain.ApiToken, error)
	ListTokensForUser(ctx context.Context, userID string) ([]domain.ApiToken, error)
	GetTokenByHash(ctx context.Context, hash string) (*domain.ApiToken, error)
	RevokeToken(ctx context.Context, id string) error
}

type Service struct {
	repo Repo
}

func New(repo Repo) *Service {
	return &Service{repo: repo}
}

// IssuedToken carries the one-time raw token value alongside the persisted
// row; the raw value is never stored and never retrievable again.
type IssuedToken struct {
	Token string
	Row   *domain.ApiToken
}

// Issue mints a new token for userID, storing only its sha256 hash.
func (s *Service) Issue(ctx context.Context, userID, name string, scopes []string, expiresAt *time.Time) (*IssuedToken, error) {
	raw, err := randomToken()
	if err != nil {
		return nil, apierr.Internal(err, "generate api token")
	}

	row, err := s.repo.CreateToken(ctx, domain.ApiToken{
		UserID:      userID,
		Name:        name,
		TokenPrefix: raw[:tokenPrefixLen],
		TokenHash:   hashToken(raw),
		Scopes:      types.Slice[string](scopes),
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return nil, apierr.Database(err, "create api token")
	}

	return &IssuedToken{Token: raw, Row: row}, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]domain.ApiToken, error) {
	tokens, err := s.repo.ListTokensForUser(ctx, userID)
	if err != nil {
		return nil, apierr.Database(err, "list api tokens")
	}
	return tokens, nil
}

// Authenticate resolves a raw token to its row, rejecting expired or revoked
// tokens.
func (s *Service) Authenticate(ctx context.Context, raw string) (*domain.ApiToken, error) {
	row, err := s.repo.GetTokenByHash(ctx, hashToken(raw))
	if err != nil {
		return nil, apierr.Database(err, "look up api token")
	}
	if row == nil {
		return nil, apierr.Unauthorized("unknown api token")
	}
	if row.Revoked(time.Now().UTC()) {
		return nil, apierr.Unauthorized("api token revoked or expired")
	}
	return row, nil
}

func (s *Service) Revoke(ctx context.Context, id string) error {
	if err := s.repo.RevokeToken(ctx, id); err != nil {
		return apierr.Database(err, "revoke api token")
	}
	return nil
}

func randomToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "at_" + hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

package apitoken

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/computor-platform/computor-api/internal/domain"
)

type fakeRepo struct {
	byHash map[string]*domain.ApiToken
	byID   map[string]*domain.ApiToken
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byHash: map[string]*domain.ApiToken{}, byID: map[string]*domain.ApiToken{}}
}

func (f *fakeRepo) CreateToken(_ context.Context, t domain.ApiToken) (*domain.ApiToken, error) {
	t.ID = "token-1"
	f.byHash[t.TokenHash] = &t
	f.byID[t.ID] = &t
	return &t, nil
}
func (f *fakeRepo) ListTokensForUser(_ context.Context, userID string) ([]domain.ApiToken, error) {
	var out []domain.ApiToken
	for _, t := range f.byID {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}
func (f *fakeRepo) GetTokenByHash(_ context.Context, hash string) (*domain.ApiToken, error) {
	return f.byHash[hash], nil
}
func (f *fakeRepo) RevokeToken(_ context.Context, id string) error {
	if t, ok := f.byID[id]; ok {
		now := time.Now().UTC()
		t.RevokedAt = &now
	}
	return nil
}

func TestIssueThenAuthenticateRoundTrip(t *testing.T) {
	repo := newFakeRepo()
	s := New(repo)

	issued, err := s.Issue(context.Background(), "user1", "ci token", []string{"read"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Token)

	row, err := s.Authenticate(context.Background(), issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "user1", row.UserID)
}

func TestAuthenticateRejectsUnknownToken(t *testing.T) {
	repo := newFakeRepo()
	s := New(repo)

	_, err := s.Authenticate(context.Background(), "at_does-not-exist")
	assert.Error(t, err)
}

func TestAuthenticateRejectsRevokedToken(t *testing.T) {
	repo := newFakeRepo()
	s := New(repo)

	issued, err := s.Issue(context.Background(), "user1", "ci token", nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Revoke(context.Background(), issued.Row.ID))

	_, err = s.Authenticate(context.Background(), issued.Token)
	assert.Error(t, err)
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	repo := newFakeRepo()
	s := New(repo)

	past := time.Now().UTC().Add(-time.Hour)
	issued, err := s.Issue(context.Background(), "user1", "short lived", nil, &past)
	require.NoError(t, err)

	_, err = s.Authenticate(context.Background(), issued.Token)
	assert.Error(t, err)
}

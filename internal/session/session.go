// Package session implements the session/token store described by
// spec.md §4.3: Redis-backed access/refresh entries with a Postgres
// Session row as the system of record, device binding, and revocation that
// takes effect immediately by deleting the Redis entry.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	accessKeyPrefix  = "session:"
	refreshKeyPrefix = "refresh:"
)

// Repo is the Postgres-backed half of the store: the Session row audit
// trail that survives Redis eviction.
type Repo interface {
	CreateSession(ctx context.Context, s domain.Session) (*domain.Session, error)
	UpdateSessionOnRefresh(ctx context.Context, refreshTokenHash, newSessionIDHash string, newExpiresAt time.Time) (*domain.Session, error)
	EndSession(ctx context.Context, sessionIDHash string) error
	GetSessionByRefreshHash(ctx context.Context, refreshTokenHash string) (*domain.Session, error)
	ListSessionsForUser(ctx context.Context, userID string) ([]domain.Session, error)
}

// DeviceInfo is the audit metadata recorded on the Session row at login.
type DeviceInfo struct {
	Label     string
	UserAgent string
	IP        string
}

type accessEntry struct {
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	ExpiresAt time.Time `json:"expires_at"`
}

type refreshEntry struct {
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"`
	ExpiresAt  time.Time `json:"expires_at"`
	AccessHash string    `json:"access_hash"`
}

// Store issues and validates hashed bearer tokens per §4.3.
type Store struct {
	redis      *redis.Client
	repo       Repo
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func New(redisClient *redis.Client, repo Repo, accessTTL, refreshTTL time.Duration) *Store {
	return &Store{redis: redisClient, repo: repo, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Tokens is the pair minted on login or access rotation.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// Login mints a new access/refresh pair and persists both the Redis
// entries and the Session row.
func (s *Store) Login(ctx context.Context, userID string, device DeviceInfo) (*Tokens, error) {
	access, err := randomToken()
	if err != nil {
		return nil, apierr.Internal(err, "generate access token")
	}
	refresh, err := randomToken()
	if err != nil {
		return nil, apierr.Internal(err, "generate refresh token")
	}

	now := time.Now().UTC()
	accessExpiresAt := now.Add(s.accessTTL)
	refreshExpiresAt := now.Add(s.refreshTTL)

	accessHash := hashToken(access)
	refreshHash := hashToken(refresh)

	if err := s.putAccess(ctx, accessHash, accessEntry{UserID: userID, Kind: "access", ExpiresAt: accessExpiresAt}, s.accessTTL); err != nil {
		return nil, err
	}
	if err := s.putRefresh(ctx, refreshHash, refreshEntry{UserID: userID, Kind: "refresh", ExpiresAt: refreshExpiresAt, AccessHash: accessHash}, s.refreshTTL); err != nil {
		return nil, err
	}

	if _, err := s.repo.CreateSession(ctx, domain.Session{
		UserID:           userID,
		SessionIDHash:    accessHash,
		RefreshTokenHash: refreshHash,
		DeviceLabel:      device.Label,
		UserAgent:        device.UserAgent,
		IP:               device.IP,
		ExpiresAt:        accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
		CreatedAt:        now,
	}); err != nil {
		return nil, apierr.Database(err, "persist session row")
	}

	return &Tokens{AccessToken: access, RefreshToken: refresh, ExpiresIn: int(s.accessTTL.Seconds())}, nil
}

// Authenticate resolves an access token to its owning user id.
func (s *Store) Authenticate(ctx context.Context, accessToken string) (string, error) {
	var entry accessEntry
	if err := s.getJSON(ctx, accessKeyPrefix+hashToken(accessToken), &entry); err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apierr.SessionExpired("session expired or not found")
		}
		return "", apierr.Internal(err, "lookup access token")
	}
	return entry.UserID, nil
}

// Refresh mints a new access token and updates the Session row's
// session_id_hash, without rotating the refresh token (reused until its own
// expiry per §4.3).
func (s *Store) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	refreshHash := hashToken(refreshToken)

	var entry refreshEntry
	if err := s.getJSON(ctx, refreshKeyPrefix+refreshHash, &entry); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apierr.RefreshExpired("refresh token expired or not found")
		}
		return nil, apierr.Internal(err, "lookup refresh token")
	}

	now := time.Now().UTC()
	if now.After(entry.ExpiresAt) {
		return nil, apierr.RefreshExpired("refresh token expired")
	}

	newAccess, err := randomToken()
	if err != nil {
		return nil, apierr.Internal(err, "generate access token")
	}
	newAccessHash := hashToken(newAccess)
	accessExpiresAt := now.Add(s.accessTTL)

	if err := s.redis.Del(ctx, accessKeyPrefix+entry.AccessHash).Err(); err != nil {
		return nil, apierr.Internal(err, "delete prior access entry")
	}
	if err := s.putAccess(ctx, newAccessHash, accessEntry{UserID: entry.UserID, Kind: "access", ExpiresAt: accessExpiresAt}, s.accessTTL); err != nil {
		return nil, err
	}

	entry.AccessHash = newAccessHash
	ttl := time.Until(entry.ExpiresAt)
	if err := s.putRefresh(ctx, refreshHash, entry, ttl); err != nil {
		return nil, err
	}

	if _, err := s.repo.UpdateSessionOnRefresh(ctx, refreshHash, newAccessHash, accessExpiresAt); err != nil {
		return nil, apierr.Database(err, "update session on refresh")
	}

	return &Tokens{AccessToken: newAccess, RefreshToken: refreshToken, ExpiresIn: int(s.accessTTL.Seconds())}, nil
}

// Logout deletes both Redis entries and marks the Session row ended.
func (s *Store) Logout(ctx context.Context, accessToken string) error {
	accessHash := hashToken(accessToken)

	var entry accessEntry
	_ = s.getJSON(ctx, accessKeyPrefix+accessHash, &entry)

	if err := s.redis.Del(ctx, accessKeyPrefix+accessHash).Err(); err != nil {
		return apierr.Internal(err, "delete access entry")
	}

	if entry.UserID != "" {
		rows, err := s.repo.ListSessionsForUser(ctx, entry.UserID)
		if err != nil {
			return apierr.Database(err, "look up session row")
		}
		for _, row := range rows {
			if row.SessionIDHash == accessHash {
				if err := s.redis.Del(ctx, refreshKeyPrefix+row.RefreshTokenHash).Err(); err != nil {
					return apierr.Internal(err, "delete refresh entry")
				}
			}
		}
	}

	if err := s.repo.EndSession(ctx, accessHash); err != nil {
		return apierr.Database(err, "end session row")
	}

	return nil
}

// ListSessions returns every live session row for userID, device-binding
// metadata included, for GET /auth/sessions.
func (s *Store) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	sessions, err := s.repo.ListSessionsForUser(ctx, userID)
	if err != nil {
		return nil, apierr.Database(err, "list sessions")
	}
	return sessions, nil
}

// RevokeByAccessHash deletes the cache entry immediately so any further
// authentication for that credential fails, per the revocation rule.
func (s *Store) RevokeByAccessHash(ctx context.Context, accessHash string) error {
	return s.redis.Del(ctx, accessKeyPrefix+accessHash).Err()
}

func (s *Store) putAccess(ctx context.Context, hash string, entry accessEntry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return apierr.Internal(err, "marshal access entry")
	}
	if err := s.redis.Set(ctx, accessKeyPrefix+hash, data, ttl).Err(); err != nil {
		return apierr.Internal(err, "store access entry")
	}
	return nil
}

func (s *Store) putRefresh(ctx context.Context, hash string, entry refreshEntry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return apierr.Internal(err, "marshal refresh entry")
	}
	if err := s.redis.Set(ctx, refreshKeyPrefix+hash, data, ttl).Err(); err != nil {
		return apierr.Internal(err, "store refresh entry")
	}
	return nil
}

func (s *Store) getJSON(ctx context.Context, key string, dst any) error {
	raw, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// HashAccessToken exposes the hashing scheme to callers that only have the
// raw token (e.g. the HTTP middleware looking up a Principal cache entry).
func HashAccessToken(token string) string { return hashToken(token) }

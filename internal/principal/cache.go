package principal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Cache memoizes built Principals for AUTH_CACHE_TTL (~10s), keyed by a hash
// of the resolved credential. Role and membership changes can be stale for
// up to that interval unless a caller explicitly invalidates the entry
// (Invalidate). Logout, and revocation of a caller's own API token, call
// Invalidate before returning to the client; an admin revoking another
// user's token does not. Every request re-authenticates its credential
// against the session or API-token store before consulting this cache, so
// a revoked credential is refused even while its entry remains.
type Cache struct {
	builder *Builder
	ttl     time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	principal Principal
	expiresAt time.Time
}

func NewCache(builder *Builder, ttl time.Duration) *Cache {
	return &Cache{
		builder: builder,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// CredentialKey hashes a raw credential (session token, refresh token, API
// token) into the cache key, so the cache never holds the credential value
// itself in memory.
func CredentialKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// Resolve returns the cached Principal for credentialKey and userID if it
// is still fresh, otherwise builds and caches a fresh one.
func (c *Cache) Resolve(ctx context.Context, credentialKey, userID string) (Principal, error) {
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.entries[credentialKey]
	c.mu.RUnlock()

	if ok && now.Before(entry.expiresAt) {
		return entry.principal, nil
	}

	p, err := c.builder.Build(ctx, userID)
	if err != nil {
		return Principal{}, err
	}

	c.mu.Lock()
	c.entries[credentialKey] = cacheEntry{principal: p, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()

	return p, nil
}

// Invalidate removes a cached Principal immediately, used on session/token
// revocation so the next request rebuilds from the database rather than
// waiting out the TTL.
func (c *Cache) Invalidate(credentialKey string) {
	c.mu.Lock()
	delete(c.entries, credentialKey)
	c.mu.Unlock()
}

// InvalidateUser removes every cached Principal for userID, used when a
// user's global roles or course memberships change.
func (c *Cache) InvalidateUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.principal.UserID == userID {
			delete(c.entries, k)
		}
	}
}

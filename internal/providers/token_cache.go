package providers

import (
	"sync"
	"time"
)

// TokenCache stores an authentication token in memory for the life of the
// process. Tokens are never written to disk.
type TokenCache struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewTokenCache creates a new empty token cache
func NewTokenCache() *TokenCache {
	return &TokenCache{now: time.Now}
}

// Get retrieves the cached token if it exists and is not expired.
func (c *TokenCache) Get() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == "" || c.now().After(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

// Set stores a token with the specified TTL. Five seconds are taken off the
// TTL so the token is refreshed before the server expires it.
func (c *TokenCache) Set(token string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = token
	buffer := 5 * time.Second
	if ttl > buffer {
		ttl -= buffer
	}
	c.expiresAt = c.now().Add(ttl)
}

// Clear removes the cached token
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = ""
	c.expiresAt = time.Time{}
}

// Package pending holds unverified tokens in memory, one per client IP.
package pending

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/koltyakov/servgate/internal/auth"
)

// DefaultTTL is how long an issued verification token stays valid.
const DefaultTTL = 15 * time.Minute

// Cache maps client IP to the most recently issued pending token. Expiry is
// tracked per item by ttlcache and checked on every read, so a stale entry
// can never remove a newer one for the same IP.
type Cache struct {
	mu    sync.Mutex
	items *ttlcache.Cache[string, string]
}

// New returns a cache whose entries live for ttl (DefaultTTL when zero).
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		items: ttlcache.New(
			ttlcache.WithTTL[string, string](ttl),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
	}
}

// Start runs the background sweep that reclaims expired entries. It blocks
// until Stop is called.
func (c *Cache) Start() { c.items.Start() }

// Stop ends the background sweep.
func (c *Cache) Stop() { c.items.Stop() }

// Put stores token as the pending entry for ip, replacing any previous one.
func (c *Cache) Put(ip, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Set(ip, token, ttlcache.DefaultTTL)
}

// Consume removes and accepts the entry for ip when it holds token and has
// not expired. Any mismatch leaves the cache untouched.
func (c *Cache) Consume(ip, token string) bool {
	if token == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	item := c.items.Get(ip)
	if item == nil || item.IsExpired() {
		return false
	}
	if !auth.ConstantTimeEquals(item.Value(), token) {
		return false
	}
	c.items.Delete(ip)
	return true
}

// Len returns the number of stored entries, expired ones not yet swept
// included.
func (c *Cache) Len() int {
	return c.items.Len()
}

// DeleteExpired drops every expired entry immediately.
func (c *Cache) DeleteExpired() {
	c.items.DeleteExpired()
}

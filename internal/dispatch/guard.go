package dispatch

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Guard remembers message IDs that were recently taken into the diagnosis
// pipeline so re-delivered events do not produce a second reply.
type Guard struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, struct{}]
}

// NewGuard returns a Guard whose entries expire after ttl. Expired entries
// are evicted by a background loop until Close is called.
func NewGuard(ttl time.Duration) *Guard {
	cache := ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](ttl),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go cache.Start()
	return &Guard{cache: cache}
}

// Claim records id and reports whether it was not already in flight.
func (g *Guard) Claim(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cache.Has(id) {
		return false
	}
	g.cache.Set(id, struct{}{}, ttlcache.DefaultTTL)
	return true
}

// Len returns the number of IDs currently held.
func (g *Guard) Len() int {
	return g.cache.Len()
}

// Close stops the eviction loop.
func (g *Guard) Close() {
	g.cache.Stop()
}

package matchservice

import (
	"sync"
	"time"

	matchutil "github.com/north-end-collective/matchday-bot/app/modules/match/utils"
)

// statusCache bounds dashboard-poll load on the queue inspection API. Entries
// are valid for one TTL; expired entries are dropped lazily on access.
type statusCache struct {
	mu      sync.Mutex
	clock   matchutil.Clock
	ttl     time.Duration
	entries map[int64]statusCacheEntry
}

type statusCacheEntry struct {
	status   *MatchTaskStatus
	cachedAt time.Time
}

func newStatusCache(clock matchutil.Clock, ttl time.Duration) *statusCache {
	return &statusCache{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[int64]statusCacheEntry),
	}
}

func (c *statusCache) get(matchID int64) (*MatchTaskStatus, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[matchID]
	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(entry.cachedAt) >= c.ttl {
		delete(c.entries, matchID)
		return nil, false
	}
	return entry.status, true
}

func (c *statusCache) set(matchID int64, status *MatchTaskStatus) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for id, entry := range c.entries {
		if now.Sub(entry.cachedAt) >= c.ttl {
			delete(c.entries, id)
		}
	}
	c.entries[matchID] = statusCacheEntry{status: status, cachedAt: now}
}

// invalidate drops one match's cached status after a mutating operation.
func (c *statusCache) invalidate(matchID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, matchID)
}

// purge drops everything; used by the emergency-recovery paths.
func (c *statusCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int64]statusCacheEntry)
}

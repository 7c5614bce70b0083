package freeze

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

const cacheScope = "freeze_status"

// cacheStore is the slice of the redis client the cache consumes.
type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(scope, id string) string
}

// Cache holds freeze statuses for a short TTL. Freeze status is a computed
// view, so staleness is bounded by the TTL alone; there is no invalidation.
// A nil *Cache is a valid no-op cache.
type Cache struct {
	store cacheStore
	ttl   time.Duration
}

// NewCache builds a freeze-status cache over the provided store.
func NewCache(store cacheStore, ttl time.Duration) (*Cache, error) {
	if store == nil {
		return nil, errors.New("cache store is required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{store: store, ttl: ttl}, nil
}

// Get returns the cached status for the owner when present and decodable.
// Store errors and decode failures read as misses.
func (c *Cache) Get(ctx context.Context, ownerID uuid.UUID) (FreezeStatus, bool) {
	if c == nil || c.store == nil {
		return FreezeStatus{}, false
	}
	raw, err := c.store.Get(ctx, c.store.CacheKey(cacheScope, ownerID.String()))
	if err != nil {
		return FreezeStatus{}, false
	}
	var status FreezeStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return FreezeStatus{}, false
	}
	if status.FrozenPolicyIDs == nil {
		status.FrozenPolicyIDs = []uuid.UUID{}
	}
	return status, true
}

// Set stores the status for the owner; failures are dropped because the
// cache is best-effort.
func (c *Cache) Set(ctx context.Context, ownerID uuid.UUID, status FreezeStatus) {
	if c == nil || c.store == nil {
		return
	}
	raw, err := json.Marshal(status)
	if err != nil {
		return
	}
	_ = c.store.Set(ctx, c.store.CacheKey(cacheScope, ownerID.String()), string(raw), c.ttl)
}

package resilience

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/praiz001/notifab/internal/apperr"
	"github.com/praiz001/notifab/internal/delivery"
)

// PreferenceCache fronts the user-service call with a TTL'd snapshot, per spec §4.4. Cache
// writes are best-effort; cache read failures degrade to the underlying call rather than
// propagating — a miss must never cause a wrong result, only a slower one (invariant 6).
type PreferenceCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPreferenceCache(client *redis.Client, ttl time.Duration) *PreferenceCache {
	return &PreferenceCache{client: client, ttl: ttl}
}

func cacheKey(userID string) string {
	return "pref:" + userID
}

// Get returns the cached snapshot, or (nil, nil) on a clean miss. A Redis error is returned as
// a cache error, which the orchestrator treats as a miss — it never surfaces as a pipeline failure.
func (c *PreferenceCache) Get(ctx context.Context, userID string) (*delivery.PreferenceSnapshot, error) {
	raw, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, apperr.NewCacheError("get", err)
	}
	var snap delivery.PreferenceSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// A corrupt cache entry is treated the same as a miss, not a hard failure.
		return nil, nil
	}
	return &snap, nil
}

// Set writes the snapshot with the configured TTL. Errors are returned for logging but are
// never fatal to the caller's pipeline.
func (c *PreferenceCache) Set(ctx context.Context, userID string, snap delivery.PreferenceSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, cacheKey(userID), raw, c.ttl).Err(); err != nil {
		return apperr.NewCacheError("set", err)
	}
	return nil
}

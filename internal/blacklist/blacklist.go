package blacklist

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smartconnect/auth-service/pkg/logging"
)

const keyPrefix = "blacklist:token:"

// Cache records access tokens that must be rejected before their natural
// expiry. Entries carry a TTL equal to the token's remaining lifetime, so
// Redis evicts them the moment the token would have expired anyway.
//
// Every operation is best effort: a Redis failure is logged and treated as
// "not blacklisted". Losing the cache re-admits logged-out tokens until
// their own expiry, which is the accepted trade-off.
type Cache struct {
	RDB *redis.Client
}

func (c *Cache) Set(ctx context.Context, token string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.RDB.Set(ctx, keyPrefix+token, "blacklisted", ttl).Err(); err != nil {
		logging.FromContext(ctx).Error("blacklist_set_failed", "error", err)
	}
}

func (c *Cache) Contains(ctx context.Context, token string) bool {
	n, err := c.RDB.Exists(ctx, keyPrefix+token).Result()
	if err != nil {
		logging.FromContext(ctx).Error("blacklist_check_failed", "error", err)
		return false
	}
	return n > 0
}

func (c *Cache) Delete(ctx context.Context, token string) {
	if err := c.RDB.Del(ctx, keyPrefix+token).Err(); err != nil {
		logging.FromContext(ctx).Error("blacklist_delete_failed", "error", err)
	}
}

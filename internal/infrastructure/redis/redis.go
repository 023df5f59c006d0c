package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Wizard verification markers expire quickly: the setup page polls while the
// user clicks "send test", stale hits must not count.
const testMarkerTTL = 60 * time.Second

type Cache struct {
	Client *redis.Client
}

func New(addr, pass string, db int) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr, Password: pass, DB: db,
	})
	return &Cache{Client: rdb}
}

// AllowRequest: Simple Fixed Window Rate Limit
func (c *Cache) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	key := "ratelimit:" + ip
	count, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		return true, nil // fail open
	}
	if count == 1 {
		_ = c.Client.Expire(ctx, key, window).Err()
	}
	return count <= int64(limit), nil
}

func (c *Cache) MarkWebhookTest(ctx context.Context, pixelID string) error {
	return c.Client.Set(ctx, "wizard:webhook:"+pixelID, time.Now().Unix(), testMarkerTTL).Err()
}

func (c *Cache) MarkScriptTest(ctx context.Context, pixelID string) error {
	return c.Client.Set(ctx, "wizard:script:"+pixelID, time.Now().Unix(), testMarkerTTL).Err()
}

func (c *Cache) WebhookTestSeen(ctx context.Context, pixelID string) (bool, error) {
	return c.seen(ctx, "wizard:webhook:"+pixelID)
}

func (c *Cache) ScriptTestSeen(ctx context.Context, pixelID string) (bool, error) {
	return c.seen(ctx, "wizard:script:"+pixelID)
}

func (c *Cache) seen(ctx context.Context, key string) (bool, error) {
	if err := c.Client.Get(ctx, key).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

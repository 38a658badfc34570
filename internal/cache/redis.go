package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/blinddate/internal/config"
)

const (
	likeCountTTL  = time.Hour
	userStatusTTL = time.Minute
)

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.Client.Del(ctx, key).Err()
}

// KeyForLikeCount is the "liked you" counter of a user.
func (c *RedisCache) KeyForLikeCount(userID string) string {
	return fmt.Sprintf("likes:count:%s", userID)
}

// GetLikeCount returns the cached count and whether it was present.
// A hit refreshes the TTL since the user is active.
func (c *RedisCache) GetLikeCount(ctx context.Context, userID string) (int64, bool, error) {
	key := c.KeyForLikeCount(userID)
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	_ = c.Client.Expire(ctx, key, likeCountTTL).Err()
	return n, true, nil
}

// SetLikeCount stores the authoritative count with a fresh TTL.
func (c *RedisCache) SetLikeCount(ctx context.Context, userID string, count int64) error {
	return c.Client.Set(ctx, c.KeyForLikeCount(userID), count, likeCountTTL).Err()
}

// incrIfCached bumps a counter and refreshes its TTL only when the key is
// present, in one step, so a cold key is never seeded with a partial value.
var incrIfCached = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	redis.call("INCR", KEYS[1])
	redis.call("EXPIRE", KEYS[1], ARGV[1])
	return 1
end
return 0
`)

// IncrLikeCount bumps the counter only when it is already cached.
func (c *RedisCache) IncrLikeCount(ctx context.Context, userID string) error {
	key := c.KeyForLikeCount(userID)
	return incrIfCached.Run(ctx, c.Client, []string{key}, int(likeCountTTL.Seconds())).Err()
}

// KeyForUserStatus caches the live account status and role checked on
// every authenticated request, stored as "STATUS|ROLE".
func (c *RedisCache) KeyForUserStatus(userID string) string {
	return fmt.Sprintf("user:status:%s", userID)
}

// GetUserStatus returns empty strings on a cache miss.
func (c *RedisCache) GetUserStatus(ctx context.Context, userID string) (status, role string, err error) {
	val, err := c.Client.Get(ctx, c.KeyForUserStatus(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", "", nil
	} else if err != nil {
		return "", "", err
	}
	status, role, ok := strings.Cut(val, "|")
	if !ok {
		return "", "", nil
	}
	return status, role, nil
}

func (c *RedisCache) SetUserStatus(ctx context.Context, userID, status, role string) error {
	return c.Client.Set(ctx, c.KeyForUserStatus(userID), status+"|"+role, userStatusTTL).Err()
}

func (c *RedisCache) InvalidateUserStatus(ctx context.Context, userID string) error {
	return c.Del(ctx, c.KeyForUserStatus(userID))
}

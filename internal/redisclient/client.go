package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes a lock only when it still carries the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewFromRedis wraps an existing go-redis client
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks Redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SetInventoryLevel caches the latest stock snapshot of a variant
func (c *Client) SetInventoryLevel(ctx context.Context, variantID, inStock, inReserve int64) error {
	key := fmt.Sprintf("inventory:%d", variantID)

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "in_stock", inStock)
	pipe.HSet(ctx, key, "in_reserve", inReserve)
	pipe.HSet(ctx, key, "updated_at", time.Now().UTC().Format(time.RFC3339))

	_, err := pipe.Exec(ctx)
	return err
}

// GetInventory retrieves the cached stock snapshot of a variant
func (c *Client) GetInventory(ctx context.Context, variantID int64) (inStock, inReserve int64, err error) {
	key := fmt.Sprintf("inventory:%d", variantID)

	result, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}

	if len(result) == 0 {
		return 0, 0, fmt.Errorf("inventory not found for variant %d", variantID)
	}

	inStock, _ = strconv.ParseInt(result["in_stock"], 10, 64)
	inReserve, _ = strconv.ParseInt(result["in_reserve"], 10, 64)

	return inStock, inReserve, nil
}

// RememberDelivery caches the digest of a committed delivery for ttl
func (c *Client) RememberDelivery(ctx context.Context, digest string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", digest), "1", ttl).Err()
}

// SeenDelivery reports whether a digest is cached as committed
func (c *Client) SeenDelivery(ctx context.Context, digest string) (bool, error) {
	n, err := c.rdb.Exists(ctx, fmt.Sprintf("idempotency:%s", digest)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AcquireLock acquires a distributed lock. The returned token must be passed
// to ReleaseLock.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleaseLock releases a distributed lock if it is still held with token
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	return releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Err()
}

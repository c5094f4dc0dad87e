package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Migyaba/external-settlement-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// AccountMap maps ledger account ids to their owning participant.
type AccountMap map[string]domain.ParticipantIdentity

// AccountCache stores the most recent account map for a bounded time.
type AccountCache interface {
	Load(ctx context.Context) (AccountMap, bool, error)
	Store(ctx context.Context, accounts AccountMap, ttl time.Duration) error
}

// ======================================================================================
// In-process cache
// ======================================================================================

// MemoryCache keeps the account map in process memory.
type MemoryCache struct {
	mu       sync.RWMutex
	accounts AccountMap
	expires  time.Time
	now      func() time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{now: time.Now}
}

func (c *MemoryCache) Load(_ context.Context) (AccountMap, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.accounts == nil || !c.now().Before(c.expires) {
		return nil, false, nil
	}
	return c.accounts, true, nil
}

func (c *MemoryCache) Store(_ context.Context, accounts AccountMap, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts = accounts
	c.expires = c.now().Add(ttl)
	return nil
}

// ======================================================================================
// Redis cache
// ======================================================================================

const redisAccountsKey = "settlement:directory:accounts"

// RedisCache shares the account map between service instances.
type RedisCache struct {
	rdb *redis.Client
	key string
}

// NewRedisCache connects to addr and verifies the connection.
func NewRedisCache(ctx context.Context, addr string, db int) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisCache{rdb: rdb, key: redisAccountsKey}, nil
}

func (c *RedisCache) Load(ctx context.Context) (AccountMap, bool, error) {
	fields, err := c.rdb.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	accounts := make(AccountMap, len(fields))
	for id, raw := range fields {
		var identity domain.ParticipantIdentity
		if err := json.Unmarshal([]byte(raw), &identity); err != nil {
			return nil, false, fmt.Errorf("decode cached account %s: %w", id, err)
		}
		accounts[id] = identity
	}
	return accounts, true, nil
}

func (c *RedisCache) Store(ctx context.Context, accounts AccountMap, ttl time.Duration) error {
	values := make(map[string]any, len(accounts))
	for id, identity := range accounts {
		raw, err := json.Marshal(identity)
		if err != nil {
			return err
		}
		values[id] = raw
	}

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.key)
		if len(values) > 0 {
			pipe.HSet(ctx, c.key, values)
			pipe.Expire(ctx, c.key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store accounts: %w", err)
	}
	return nil
}

// Close releases the redis connection pool.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

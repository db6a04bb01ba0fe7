package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores JSON read models in Redis. Keys are versioned per scope so a
// single INCR invalidates every cached entry of that scope.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// New constructs a cache helper. A nil client disables caching.
func New(client *redis.Client, ttl time.Duration, prefix string) *Cache {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "billing"
	}
	return &Cache{client: client, ttl: ttl, prefix: prefix}
}

// Enabled reports whether reads and writes reach Redis.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Key builds a versioned key for the scope from the request signature parts.
func (c *Cache) Key(ctx context.Context, scope string, parts ...string) (string, error) {
	if !c.Enabled() {
		return "", nil
	}
	gen, err := c.generation(ctx, scope)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return c.prefix + ":" + scope + ":v" + strconv.FormatInt(gen, 10) + ":" + hex.EncodeToString(sum[:8]), nil
}

// Invalidate bumps the scope generation; entries written under older
// generations are never read again and age out with their TTL.
func (c *Cache) Invalidate(ctx context.Context, scopes ...string) error {
	if !c.Enabled() {
		return nil
	}
	var joined error
	for _, scope := range scopes {
		if err := c.client.Incr(ctx, c.genKey(scope)).Err(); err != nil {
			joined = errors.Join(joined, err)
		}
	}
	return joined
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if !c.Enabled() || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if !c.Enabled() || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) generation(ctx context.Context, scope string) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey(scope)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *Cache) genKey(scope string) string {
	return c.prefix + ":gen:" + scope
}

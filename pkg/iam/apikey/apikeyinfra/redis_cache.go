package apikeyinfra

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gridworks/gridcore/pkg/iam/apikey"
)

const cacheKeyPrefix = "apikey:meta:"

// RedisMetadataCache fronts hash lookups on the request validation path.
// Entries expire at the configured TTL, so a revocation that misses the
// explicit Invalidate still stops validating within that bound.
type RedisMetadataCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisMetadataCache(client *redis.Client, ttl time.Duration) *RedisMetadataCache {
	if ttl == 0 {
		ttl = 5 * time.Second
	}
	return &RedisMetadataCache{client: client, ttl: ttl}
}

type cachedKey struct {
	Key        apikey.APIKey `json:"key"`
	SecretHash string        `json:"secret_hash"`
}

func (c *RedisMetadataCache) Get(ctx context.Context, secretHash string) (*apikey.APIKey, bool, error) {
	raw, err := c.client.Get(ctx, cacheKeyPrefix+secretHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var cached cachedKey
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false, nil
	}
	cached.Key.SecretHash = cached.SecretHash
	return &cached.Key, true, nil
}

func (c *RedisMetadataCache) Set(ctx context.Context, secretHash string, key *apikey.APIKey) error {
	// SecretHash has json:"-" on the model, so it rides alongside.
	raw, err := json.Marshal(cachedKey{Key: *key, SecretHash: secretHash})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKeyPrefix+secretHash, raw, c.ttl).Err()
}

func (c *RedisMetadataCache) Invalidate(ctx context.Context, secretHash string) error {
	return c.client.Del(ctx, cacheKeyPrefix+secretHash).Err()
}

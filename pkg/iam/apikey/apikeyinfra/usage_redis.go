package apikeyinfra

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/iam/apikey"
	"github.com/gridworks/gridcore/pkg/kernel"
)

const usageKeyPrefix = "apikey:usage:"

// incrementScript performs the window reset, the limit check, and the
// increment as one atomic step on the Redis side. KEYS[1] is the counter
// key; ARGV are n, limit, window seconds, and current unix time. Returns
// {-1, reset_at} when the increment would exceed the limit, otherwise
// {new_count, reset_at}.
var incrementScript = redis.NewScript(`
local key = KEYS[1]
local n = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local count = tonumber(redis.call('HGET', key, 'count') or '0')
local reset_at = tonumber(redis.call('HGET', key, 'reset_at') or '0')

if reset_at == 0 or now >= reset_at then
	count = 0
	reset_at = now + window
end

if count + n > limit then
	redis.call('HSET', key, 'count', count, 'reset_at', reset_at)
	redis.call('EXPIREAT', key, reset_at)
	return {-1, reset_at}
end

count = count + n
redis.call('HSET', key, 'count', count, 'reset_at', reset_at)
redis.call('EXPIREAT', key, reset_at)
return {count, reset_at}
`)

// RedisUsageStore is the shared apikey.UsageStore. All instances hitting the
// same Redis observe one counter per key, and the Lua script keeps the
// check-and-increment atomic across them.
type RedisUsageStore struct {
	client *redis.Client
}

func NewRedisUsageStore(client *redis.Client) *RedisUsageStore {
	return &RedisUsageStore{client: client}
}

func (s *RedisUsageStore) Increment(ctx context.Context, keyID kernel.KeyID, n int64, limit int64, window time.Duration) (*apikey.Usage, error) {
	now := time.Now().UTC()

	result, err := incrementScript.Run(ctx, s.client,
		[]string{usageKeyPrefix + keyID.String()},
		n, limit, int64(window.Seconds()), now.Unix(),
	).Int64Slice()
	if err != nil {
		return nil, errx.Wrap(err, "failed to increment usage counter", errx.TypeInternal).
			WithDetail("key_id", keyID.String())
	}
	if len(result) != 2 {
		return nil, errx.Internal("unexpected usage script reply").
			WithDetail("key_id", keyID.String())
	}

	resetAt := time.Unix(result[1], 0).UTC()
	if result[0] < 0 {
		return nil, apikey.ErrQuotaExceeded(keyID).
			WithDetail("limit", limit).
			WithDetail("window_reset_at", resetAt)
	}

	return &apikey.Usage{
		Count:         result[0],
		Limit:         limit,
		WindowResetAt: resetAt,
	}, nil
}

func (s *RedisUsageStore) Get(ctx context.Context, keyID kernel.KeyID, limit int64, window time.Duration) (*apikey.Usage, error) {
	vals, err := s.client.HGetAll(ctx, usageKeyPrefix+keyID.String()).Result()
	if err != nil {
		return nil, errx.Wrap(err, "failed to read usage counter", errx.TypeInternal).
			WithDetail("key_id", keyID.String())
	}

	now := time.Now().UTC()
	usage := &apikey.Usage{
		Count:         0,
		Limit:         limit,
		WindowResetAt: now.Add(window),
	}

	if raw, ok := vals["reset_at"]; ok {
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			resetAt := time.Unix(ts, 0).UTC()
			if now.Before(resetAt) {
				usage.WindowResetAt = resetAt
				if c, ok := vals["count"]; ok {
					usage.Count, _ = strconv.ParseInt(c, 10, 64)
				}
			}
		}
	}

	return usage, nil
}

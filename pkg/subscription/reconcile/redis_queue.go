package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gridworks/gridcore/pkg/errx"
)

const (
	readyKey     = "reconcile:ready"
	scheduledKey = "reconcile:scheduled"
)

// RedisQueue is a Redis-backed reconcile.Queue. Ready tasks sit on a list
// consumed with BRPOP; delayed tasks wait in a sorted set scored by their
// due time and are promoted by PromoteDue.
type RedisQueue struct {
	rdb *redis.Client
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func (q *RedisQueue) Enqueue(ctx context.Context, task Task, delay time.Duration) error {
	data, err := json.Marshal(task)
	if err != nil {
		return errx.Wrap(err, "failed to encode reconcile task", errx.TypeInternal)
	}

	if delay <= 0 {
		if err := q.rdb.LPush(ctx, readyKey, data).Err(); err != nil {
			return errx.Wrap(err, "failed to enqueue reconcile task", errx.TypeExternal)
		}
		return nil
	}

	score := float64(time.Now().UTC().Add(delay).Unix())
	if err := q.rdb.ZAdd(ctx, scheduledKey, redis.Z{Score: score, Member: data}).Err(); err != nil {
		return errx.Wrap(err, "failed to schedule reconcile task", errx.TypeExternal).
			WithDetail("delay", delay.String())
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	result, err := q.rdb.BRPop(ctx, timeout, readyKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to dequeue reconcile task", errx.TypeExternal)
	}
	if len(result) != 2 {
		return nil, nil
	}

	var task Task
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, errx.Wrap(err, "failed to decode reconcile task", errx.TypeInternal)
	}
	return &task, nil
}

// PromoteDue moves scheduled tasks whose due time has passed onto the ready
// list.
func (q *RedisQueue) PromoteDue(ctx context.Context) error {
	now := float64(time.Now().UTC().Unix())

	members, err := q.rdb.ZRangeByScore(ctx, scheduledKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatFloat(now, 'f', 0, 64),
	}).Result()
	if err != nil {
		return errx.Wrap(err, "failed to read scheduled reconcile tasks", errx.TypeExternal)
	}

	for _, member := range members {
		// ZREM before LPUSH so a concurrent promoter cannot double-deliver.
		removed, err := q.rdb.ZRem(ctx, scheduledKey, member).Result()
		if err != nil {
			return errx.Wrap(err, "failed to promote reconcile task", errx.TypeExternal)
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, readyKey, member).Err(); err != nil {
			return errx.Wrap(err, "failed to promote reconcile task", errx.TypeExternal)
		}
	}
	return nil
}

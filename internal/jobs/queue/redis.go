package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

const DefaultKey = "intellimix:mix_chat_runs"

// promoteScript moves due delayed items onto the ready list atomically.
var promoteScript = goredis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, v in ipairs(due) do
  redis.call('ZREM', KEYS[1], v)
  redis.call('RPUSH', KEYS[2], v)
end
return #due
`)

type redisQueue struct {
	log     *logger.Logger
	rdb     *goredis.Client
	key     string
	delayed string
}

// NewRedis builds a list-backed queue on key. Delayed items wait in a
// sorted set next to it. The client is borrowed; Close does not close it.
func NewRedis(log *logger.Logger, rdb *goredis.Client, key string) (Queue, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if key == "" {
		key = DefaultKey
	}
	return &redisQueue{
		log:     log.With("service", "RedisRunQueue"),
		rdb:     rdb,
		key:     key,
		delayed: key + ":delayed",
	}, nil
}

func (q *redisQueue) Enqueue(ctx context.Context, item Item) error {
	raw, err := encodeItem(item)
	if err != nil {
		return err
	}
	if err := q.rdb.RPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("enqueue run %s: %w", item.RunID, err)
	}
	return nil
}

func (q *redisQueue) EnqueueAfter(ctx context.Context, item Item, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, item)
	}
	raw, err := encodeItem(item)
	if err != nil {
		return err
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.rdb.ZAdd(ctx, q.delayed, goredis.Z{Score: due, Member: raw}).Err(); err != nil {
		return fmt.Errorf("schedule run %s: %w", item.RunID, err)
	}
	return nil
}

func (q *redisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Item, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := promoteScript.Run(ctx, q.rdb, []string{q.delayed, q.key}, now).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		q.log.Warn("promote delayed runs failed", "error", err)
	}
	if timeout < time.Second {
		timeout = time.Second
	}
	res, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) != 2 {
		return nil, nil
	}
	return decodeItem(res[1])
}

func (q *redisQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, err
	}
	d, err := q.rdb.ZCard(ctx, q.delayed).Result()
	if err != nil {
		return 0, err
	}
	return n + d, nil
}

func (q *redisQueue) Close() error { return nil }

package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/therapy-booking/internal/jobs"
)

const defaultQueuePrefix = "jobs"

// Queue is a delayed task queue on three keys:
//
//	<prefix>:delayed   sorted set of task ids scored by due time (unix ms)
//	<prefix>:inflight  sorted set of claimed task ids scored by redelivery time
//	<prefix>:payload   hash of task id to body
//
// A claimed task that is not acked before its visibility timeout becomes
// due again, which gives at-least-once delivery.
type Queue struct {
	client     *redis.Client
	visibility time.Duration
	delayed    string
	inflight   string
	payload    string
}

func NewQueue(client *redis.Client, prefix string, visibility time.Duration) *Queue {
	if prefix == "" {
		prefix = defaultQueuePrefix
	}
	if visibility <= 0 {
		visibility = time.Minute
	}
	return &Queue{
		client:     client,
		visibility: visibility,
		delayed:    prefix + ":delayed",
		inflight:   prefix + ":inflight",
		payload:    prefix + ":payload",
	}
}

func (q *Queue) Enqueue(ctx context.Context, runAt time.Time, body []byte) (string, error) {
	id := uuid.NewString()
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.payload, id, body)
		p.ZAdd(ctx, q.delayed, redis.Z{Score: float64(runAt.UnixMilli()), Member: id})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("enqueue task: %w", err)
	}
	return id, nil
}

// Delete removes tasks whether they are waiting or in flight. Unknown ids
// are ignored.
func (q *Queue) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, q.delayed, members...)
		p.ZRem(ctx, q.inflight, members...)
		p.HDel(ctx, q.payload, ids...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete tasks: %w", err)
	}
	return nil
}

func (q *Queue) Ack(ctx context.Context, id string) error {
	return q.Delete(ctx, id)
}

var claimScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local redeliver = tonumber(ARGV[3])

local stale = redis.call("ZRANGEBYSCORE", KEYS[2], "-inf", now, "LIMIT", 0, limit)
for _, id in ipairs(stale) do
  redis.call("ZREM", KEYS[2], id)
  redis.call("ZADD", KEYS[1], now, id)
end

local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", now, "LIMIT", 0, limit)
local out = {}
for _, id in ipairs(due) do
  redis.call("ZREM", KEYS[1], id)
  local body = redis.call("HGET", KEYS[3], id)
  if body then
    redis.call("ZADD", KEYS[2], redeliver, id)
    table.insert(out, id)
    table.insert(out, body)
  end
end
return out
`)

// Claim atomically moves up to limit due tasks into flight and returns them.
func (q *Queue) Claim(ctx context.Context, now time.Time, limit int) ([]jobs.Task, error) {
	if limit <= 0 {
		return nil, nil
	}
	res, err := claimScript.Run(ctx, q.client,
		[]string{q.delayed, q.inflight, q.payload},
		now.UnixMilli(), limit, now.Add(q.visibility).UnixMilli(),
	).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim tasks: %w", err)
	}

	tasks := make([]jobs.Task, 0, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		tasks = append(tasks, jobs.Task{ID: res[i], Body: []byte(res[i+1])})
	}
	return tasks, nil
}

// Depth reports how many tasks are waiting and in flight.
func (q *Queue) Depth(ctx context.Context) (waiting, inflight int64, err error) {
	pipe := q.client.Pipeline()
	w := pipe.ZCard(ctx, q.delayed)
	f := pipe.ZCard(ctx, q.inflight)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("queue depth: %w", err)
	}
	return w.Val(), f.Val(), nil
}

package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var redisStoreTracer = otel.Tracer("coverage.internal.jobqueue.redis_store")

const (
	scheduleKey = "jobs:schedule"
	payloadKey  = "jobs:payload"
)

// claimScript atomically pops one due job: the earliest member whose score is
// at or before now, removing both the schedule entry and the payload field.
var claimScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #due == 0 then
	return false
end
local key = due[1]
redis.call('ZREM', KEYS[1], key)
local payload = redis.call('HGET', KEYS[2], key)
redis.call('HDEL', KEYS[2], key)
return {key, payload}
`)

// RedisStore keeps scheduled jobs in a Redis sorted set keyed by deadline.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a store on the provided client.
func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("jobqueue: redis client required")
	}
	return &RedisStore{redis: client}
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) Add(ctx context.Context, job Job, keepEarliest bool) error {
	ctx, span := redisStoreTracer.Start(ctx, "jobqueue.redis.add")
	defer span.End()
	span.SetAttributes(attribute.String("coverage.job_key", job.Key))

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobqueue: marshal job: %w", err)
	}
	score := float64(job.RunAt.UnixMilli())
	member := redis.Z{Score: score, Member: job.Key}

	pipe := s.redis.TxPipeline()
	if keepEarliest {
		pipe.ZAddNX(ctx, scheduleKey, member)
		pipe.HSetNX(ctx, payloadKey, job.Key, data)
	} else {
		pipe.ZAdd(ctx, scheduleKey, member)
		pipe.HSet(ctx, payloadKey, job.Key, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobqueue: schedule job: %w", err)
	}
	return nil
}

func (s *RedisStore) Cancel(ctx context.Context, prefix string) (int, error) {
	ctx, span := redisStoreTracer.Start(ctx, "jobqueue.redis.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("coverage.key_prefix", prefix))

	var removed int
	var cursor uint64
	match := prefix + "*"
	for {
		members, next, err := s.redis.ZScan(ctx, scheduleKey, cursor, match, 100).Result()
		if err != nil {
			return removed, fmt.Errorf("jobqueue: scan pending: %w", err)
		}
		// ZScan yields member, score pairs; keep the members only.
		keys := make([]string, 0, len(members)/2)
		for i := 0; i < len(members); i += 2 {
			keys = append(keys, members[i])
		}
		if len(keys) > 0 {
			zrem := make([]interface{}, len(keys))
			for i, k := range keys {
				zrem[i] = k
			}
			pipe := s.redis.TxPipeline()
			pipe.ZRem(ctx, scheduleKey, zrem...)
			pipe.HDel(ctx, payloadKey, keys...)
			if _, err := pipe.Exec(ctx); err != nil {
				return removed, fmt.Errorf("jobqueue: remove pending: %w", err)
			}
			removed += len(keys)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (s *RedisStore) PendingKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		members, next, err := s.redis.ZScan(ctx, scheduleKey, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("jobqueue: scan pending: %w", err)
		}
		for i := 0; i < len(members); i += 2 {
			keys = append(keys, members[i])
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (s *RedisStore) Claim(ctx context.Context, now time.Time) (*Job, error) {
	res, err := claimScript.Run(ctx, s.redis, []string{scheduleKey, payloadKey},
		now.UnixMilli()).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("jobqueue: claim: %w", err)
	}
	pair, ok := res.([]interface{})
	if !ok || len(pair) != 2 {
		return nil, fmt.Errorf("jobqueue: unexpected claim result %T", res)
	}
	raw, ok := pair[1].(string)
	if !ok {
		// payload missing; treat the stray schedule entry as consumed
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("jobqueue: decode job: %w", err)
	}
	return &job, nil
}

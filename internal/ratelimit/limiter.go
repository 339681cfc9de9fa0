package ratelimit

import (
	"context"
	"fmt"
	"time"

	"server/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store records request timestamps for a key and reports how many fall inside
// the rolling window ending at now. Implementations must be visible across
// concurrent executions; an in-process map cannot satisfy the contract.
type Store interface {
	// Take counts the key's requests in [now-window, now] and records this one
	// unless the cap is already reached. It returns the count after the call
	// and whether the request was admitted.
	Take(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (int64, bool, error)
}

// Limiter enforces "at most N requests per user per rolling window".
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
}

func New(store Store, limit int, window time.Duration) *Limiter {
	return &Limiter{store: store, limit: limit, window: window}
}

func (l *Limiter) Allow(ctx context.Context, userID string) error {
	count, admitted, err := l.store.Take(ctx, userID, time.Now(), l.window, l.limit)
	if err != nil {
		return fmt.Errorf("rate limit store: %w", err)
	}
	if !admitted {
		return fmt.Errorf("%w: %d requests in the last %s", domain.ErrRateLimited, count, l.window)
	}
	return nil
}

// RetryAfter is the hint reported to rejected callers.
func (l *Limiter) RetryAfter() time.Duration {
	return l.window
}

// takeScript trims entries older than the window floor, counts the remainder
// and admits the request in one atomic round trip. The floor comparison is
// exclusive so a request exactly at the boundary still counts (closed interval).
var takeScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
local n = redis.call('ZCARD', KEYS[1])
if n >= tonumber(ARGV[2]) then
  return {n, 0}
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return {n + 1, 1}
`)

// RedisStore keeps one sorted set of request timestamps per user.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Take(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (int64, bool, error) {
	floor := now.Add(-window).UnixMilli()
	res, err := takeScript.Run(ctx, s.client, []string{"ratelimit:" + key},
		floor, limit, now.UnixMilli(), uuid.NewString(), window.Milliseconds()).Slice()
	if err != nil {
		return 0, false, err
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("unexpected script reply: %v", res)
	}
	count, _ := res[0].(int64)
	admitted, _ := res[1].(int64)
	return count, admitted == 1, nil
}

var _ Store = (*RedisStore)(nil)

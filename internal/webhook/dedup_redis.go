package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// markSeenScript marks an event id and bumps the tracked-count atomically.
//
// KEYS[1] = event key
// KEYS[2] = counter key
// ARGV[1] = ttl_ms
//
// Returns 1 if the id was already marked, 0 on first sight.
var markSeenScript = redis.NewScript(`
if redis.call('SET', KEYS[1], 1, 'NX', 'PX', ARGV[1]) then
  redis.call('INCR', KEYS[2])
  if redis.call('PTTL', KEYS[2]) < 0 then
    redis.call('PEXPIRE', KEYS[2], ARGV[1])
  end
  return 0
end
return 1
`)

// RedisDeduplicator shares processed-event ids across instances, with TTL
// expiry bounding memory. Use it whenever more than one replica receives
// webhooks.
type RedisDeduplicator struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisDeduplicator(rdb *redis.Client, ttl time.Duration) *RedisDeduplicator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduplicator{rdb: rdb, prefix: "webhook:event:", ttl: ttl}
}

func (d *RedisDeduplicator) Seen(ctx context.Context, eventID string) (bool, error) {
	if d.rdb == nil {
		return false, fmt.Errorf("webhook: redis client is nil")
	}
	res, err := markSeenScript.Run(ctx, d.rdb,
		[]string{d.prefix + eventID, d.prefix + "count"},
		d.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("webhook: dedup mark: %w", err)
	}
	return res == 1, nil
}

func (d *RedisDeduplicator) Size(ctx context.Context) (int64, error) {
	if d.rdb == nil {
		return 0, fmt.Errorf("webhook: redis client is nil")
	}
	n, err := d.rdb.Get(ctx, d.prefix+"count").Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

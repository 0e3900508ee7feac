// Package idempotency holds the Redis-backed idempotency key store used when
// several API instances share one Redis.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const inFlight = "-"

// RedisStore keeps one string per (scope, key). The value is the reservation
// id once the request completed, or a marker while it is still running.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) redisKey(scope, key string) string {
	return fmt.Sprintf("%sidem:%s:%s", s.prefix, scope, key)
}

func (s *RedisStore) Begin(ctx context.Context, scope, key string, ttl time.Duration) (string, bool, error) {
	k := s.redisKey(scope, key)
	ok, err := s.client.SetNX(ctx, k, inFlight, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis setnx: %w", err)
	}
	if ok {
		return "", true, nil
	}

	val, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; treat as in flight and let the client retry
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	if val == inFlight {
		return "", false, nil
	}
	return val, false, nil
}

func (s *RedisStore) Complete(ctx context.Context, scope, key, reservationID string) error {
	// KEEPTTL keeps the expiry set by Begin.
	return s.client.SetArgs(ctx, s.redisKey(scope, key), reservationID, redis.SetArgs{KeepTTL: true}).Err()
}

var abortScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (s *RedisStore) Abort(ctx context.Context, scope, key string) error {
	return abortScript.Run(ctx, s.client, []string{s.redisKey(scope, key)}, inFlight).Err()
}

// NewClient builds a client from an address such as "localhost:6379" and pings it.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return c, nil
}

package counter

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// decrIfAtLeast atomically applies a conditional decrement. Returning
// the value in both branches lets callers report the untouched balance
// on a refused debit without a second round trip.
var decrIfAtLeast = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
if current >= amount then
	return {redis.call('DECRBY', KEYS[1], amount), 1}
end
return {current, 0}
`)

// RedisStore is the production counter store. Atomicity of Incr, SetNX
// and the conditional decrement script is delegated to Redis; the store
// adds no client-side locking.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s *RedisStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return s.client.IncrBy(ctx, key, delta).Result()
}

func (s *RedisStore) DecrIfAtLeast(ctx context.Context, key string, amount int64) (int64, bool, error) {
	res, err := decrIfAtLeast.Run(ctx, s.client, []string{key}, amount).Result()
	if err != nil {
		return 0, false, err
	}
	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return 0, false, errors.New("unexpected conditional decrement reply shape")
	}
	value, _ := values[0].(int64)
	applied, _ := values[1].(int64)
	return value, applied == 1, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string) (bool, error) {
	return s.client.SetNX(ctx, key, value, 0).Result()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	// go-redis returns -2 for a missing key and -1 for no expiry.
	if ttl < 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const redisKeyPrefix = "tekrar:ratelimit:"

// RedisStore shares counters between instances. Each key is a string counter
// whose TTL is the rest of its window.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(host string, port int, password string, db int, timeout time.Duration) (*RedisStore, error) {
	log.Info().
		Str("host", host).
		Int("port", port).
		Int("db", db).
		Dur("timeout", timeout).
		Msg("Connecting rate limiter to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Password:     password,
		DB:           db,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (int, time.Time, error) {
	key = redisKeyPrefix + key

	pipe := s.client.Pipeline()
	countCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, time.Now(), err
	}

	count := 0
	if val, err := countCmd.Result(); err == nil {
		count, _ = strconv.Atoi(val)
	}
	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = 0
	}
	return count, time.Now().Add(ttl), nil
}

func (s *RedisStore) Increment(ctx context.Context, key string, resetTime time.Time) (int, error) {
	key = redisKeyPrefix + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// resetTime comes from Get, so a live window keeps its end.
	pipe.PExpire(ctx, key, time.Until(resetTime))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisKeyPrefix+key).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

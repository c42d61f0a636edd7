package cookies

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/tuncerburak97/tekrar/internal/model"
)

const redisKeyPrefix = "tekrar:cookies:"

// RedisStore keeps one hash per cookie domain, field = cookie name. It lets
// several tekrar instances, or an external cookie sync job, share a jar.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(host string, port int, password string, db int, timeout time.Duration) (*RedisStore, error) {
	log.Info().
		Str("host", host).
		Int("port", port).
		Int("db", db).
		Dur("timeout", timeout).
		Msg("Connecting cookie store to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Password:     password,
		DB:           db,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		MaxRetries:   3,
		PoolSize:     10,
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

func (s *RedisStore) key(domain string) string {
	return redisKeyPrefix + domain
}

func (s *RedisStore) Cookies(ctx context.Context, host string) ([]model.Cookie, error) {
	domains := candidateDomains(host)
	if len(domains) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringStringMapCmd, len(domains))
	for i, domain := range domains {
		cmds[i] = pipe.HGetAll(ctx, s.key(domain))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	var out []model.Cookie
	for i, cmd := range cmds {
		values := cmd.Val()
		names := make([]string, 0, len(values))
		for name := range values {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, model.Cookie{Name: name, Value: values[name], Domain: domains[i]})
		}
	}

	log.Debug().
		Str("host", host).
		Int("count", len(out)).
		Msg("Loaded cookies from Redis")
	return out, nil
}

func (s *RedisStore) Set(ctx context.Context, cookie model.Cookie) error {
	return s.client.HSet(ctx, s.key(NormalizeDomain(cookie.Domain)), cookie.Name, cookie.Value).Err()
}

func (s *RedisStore) Replace(ctx context.Context, domain string, cookies []model.Cookie) error {
	key := s.key(NormalizeDomain(domain))

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(cookies) == 0 {
			return nil
		}
		values := make([]interface{}, 0, len(cookies)*2)
		for _, c := range cookies {
			values = append(values, c.Name, c.Value)
		}
		pipe.HSet(ctx, key, values...)
		return nil
	})
	return err
}

func (s *RedisStore) Close() error {
	log.Info().Msg("Closing Redis cookie store")
	return s.client.Close()
}

package leasestore

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

const DefaultRedisPrefix = "lease-lock:"

var (
	// Взятие блокировки: значение и TTL ставятся одной командой
	acquireScript = redis.NewScript(`return redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) and 1 or 0`)

	// Снятие блокировки только владельцем
	releaseScript = redis.NewScript(`if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`)

	// Продление блокировки только владельцем
	refreshScript = redis.NewScript(`if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) else return 0 end`)
)

type RedisConfigs struct {
	// Prefix добавляется ко всем ключам аренды. Пустая строка означает DefaultRedisPrefix.
	Prefix string
}

type RedisStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisStore(c redis.Cmdable, cfg RedisConfigs) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		client: c,
		prefix: cfg.Prefix,
	}
}

// BackendKey возвращает ключ, под которым аренда лежит в Redis.
func (s *RedisStore) BackendKey(key string) string {
	return s.prefix + key
}

func (s *RedisStore) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	result, err := acquireScript.Run(ctx, s.client, []string{s.BackendKey(key)}, token, millis(ttl)).Int()
	if err != nil {
		return false, unavailable("redis", "acquire", err)
	}
	return result == 1, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	token, err := s.client.Get(ctx, s.BackendKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("redis", "get", err)
	}
	return token, true, nil
}

func (s *RedisStore) ReleaseIfOwned(ctx context.Context, key, token string) (bool, error) {
	result, err := releaseScript.Run(ctx, s.client, []string{s.BackendKey(key)}, token).Int()
	if err != nil {
		return false, unavailable("redis", "release", err)
	}
	return result == 1, nil
}

func (s *RedisStore) RefreshIfOwned(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	result, err := refreshScript.Run(ctx, s.client, []string{s.BackendKey(key)}, token, millis(ttl)).Int()
	if err != nil {
		return false, unavailable("redis", "refresh", err)
	}
	return result == 1, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("redis", "ping", err)
	}
	return nil
}

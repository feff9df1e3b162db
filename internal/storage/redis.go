package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"expensio/internal/session"
)

const redisKeyPrefix = "expensio:session:"

// RedisProvider stores each client's session as one hash that expires ttl
// after its last write.
type RedisProvider struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisProvider(rdb redis.UniversalClient, ttl time.Duration) *RedisProvider {
	return &RedisProvider{rdb: rdb, ttl: ttl}
}

func (p *RedisProvider) Open(clientID string) session.Storage {
	return &redisSession{p: p, key: redisKeyPrefix + clientID}
}

func (p *RedisProvider) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

type redisSession struct {
	p   *RedisProvider
	key string
}

func (s *redisSession) Read(ctx context.Context) (map[string]string, error) {
	values, err := s.p.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read session hash: %w", err)
	}
	return values, nil
}

// Write sets every field and refreshes the expiry in one MULTI/EXEC.
func (s *redisSession) Write(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(values)*2)
	for k, v := range values {
		args = append(args, k, v)
	}
	_, err := s.p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key, args...)
		if s.p.ttl > 0 {
			pipe.Expire(ctx, s.key, s.p.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write session hash: %w", err)
	}
	return nil
}

// Touch restarts the key's expiry.
func (s *redisSession) Touch(ctx context.Context) error {
	if s.p.ttl <= 0 {
		return nil
	}
	if err := s.p.rdb.Expire(ctx, s.key, s.p.ttl).Err(); err != nil {
		return fmt.Errorf("touch session hash: %w", err)
	}
	return nil
}

func (s *redisSession) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.p.rdb.HDel(ctx, s.key, keys...).Err(); err != nil {
		return fmt.Errorf("remove session fields: %w", err)
	}
	return nil
}

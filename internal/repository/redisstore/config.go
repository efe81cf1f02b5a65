// Package redisstore implements repository.ConfigStore on a Redis hash, for
// deployments that run several service instances against one plugin state.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ingeweb/contactws/internal/repository"
)

var _ repository.ConfigStore = (*ConfigStore)(nil)

// ConfigStore keeps every key of one plugin in the hash "<prefix>:config:<plugin>".
type ConfigStore struct {
	rdb *redis.Client
	key string
}

func NewConfigStore(rdb *redis.Client, prefix, plugin string) *ConfigStore {
	return &ConfigStore{rdb: rdb, key: fmt.Sprintf("%s:config:%s", prefix, plugin)}
}

func (s *ConfigStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.HGet(ctx, s.key, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis: reading config %s: %w", key, err)
	}
	return v, true, nil
}

func (s *ConfigStore) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.HSet(ctx, s.key, key, value).Err(); err != nil {
		return fmt.Errorf("redis: writing config %s: %w", key, err)
	}
	return nil
}

// SetMany writes every pair in a single MULTI/EXEC.
func (s *ConfigStore) SetMany(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.HSet(ctx, s.key, k, v)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: writing %d config values: %w", len(values), err)
	}
	return nil
}

// Ping checks connectivity at startup.
func (s *ConfigStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

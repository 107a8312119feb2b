package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/BuzzLyutic/task-sync-client/internal/model"
)

// RedisSnapshots keeps the last good page of every filter in Redis so a
// restarted client can show something before its first fetch lands.
type RedisSnapshots struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSnapshots stores pages under prefix for ttl. A zero ttl keeps them
// until overwritten.
func NewRedisSnapshots(client *redis.Client, prefix string, ttl time.Duration) *RedisSnapshots {
	if client == nil {
		panic("storage.NewRedisSnapshots: redis client is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisSnapshots{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisSnapshots) Load(ctx context.Context, filter model.TaskFilter) (model.Page, bool, error) {
	data, err := s.redis.Get(ctx, s.key(filter)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Page{}, false, nil
	}
	if err != nil {
		return model.Page{}, false, fmt.Errorf("load snapshot: %w", err)
	}

	var page model.Page
	if err := sonic.Unmarshal(data, &page); err != nil {
		// Corrupt entries are dropped rather than surfaced.
		_ = s.redis.Del(ctx, s.key(filter)).Err()
		return model.Page{}, false, nil
	}
	return page, true, nil
}

func (s *RedisSnapshots) Save(ctx context.Context, filter model.TaskFilter, page model.Page) error {
	data, err := sonic.Marshal(page)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(filter), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Purge removes every snapshot under the prefix. The bridge calls it on
// logout.
func (s *RedisSnapshots) Purge(ctx context.Context) error {
	iter := s.redis.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan snapshots: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.redis.Del(ctx, keys...).Err()
}

func (s *RedisSnapshots) key(f model.TaskFilter) string {
	return fmt.Sprintf("%s%s:%d:%d:%s:%s:%s",
		s.prefix, f.Scope(), f.Page, f.PageSize, f.Status, f.Priority, f.Search)
}

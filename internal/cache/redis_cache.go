// Package cache хранит финальные результаты send task'ов в Redis.
//
// Воркер пишет task после завершения, API читает через кэш,
// прежде чем идти в PostgreSQL. Незавершённые task'и не кэшируются:
// их состояние ещё меняется.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shaiso/Courier/internal/domain"
)

// ErrNotFinished — попытка закэшировать незавершённый task.
var ErrNotFinished = errors.New("task is not finished")

// RedisCache — кэш результатов task'ов.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache создаёт кэш с заданным TTL.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func taskKey(id uuid.UUID) string {
	return fmt.Sprintf("task:%s", id)
}

// StoreTask сохраняет завершённый task.
func (c *RedisCache) StoreTask(ctx context.Context, task *domain.SendTask) error {
	if !task.IsFinished() {
		return fmt.Errorf("%w: %s is %s", ErrNotFinished, task.ID, task.State)
	}

	b, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, taskKey(task.ID), b, c.ttl).Err()
}

// GetTask возвращает task из кэша. Второе значение false, если записи нет.
func (c *RedisCache) GetTask(ctx context.Context, id uuid.UUID) (*domain.SendTask, bool, error) {
	raw, err := c.rdb.Get(ctx, taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var task domain.SendTask
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, false, fmt.Errorf("decode cached task %s: %w", id, err)
	}
	return &task, true, nil
}

// Ping проверяет соединение с Redis.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

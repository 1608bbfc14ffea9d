package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// TaskStateRepository 保存文档索引任务的临时协调状态（处理锁与重试计数）。
type TaskStateRepository interface {
	// TryLock 以 SETNX 方式获取文档处理锁，返回是否成功。
	TryLock(ctx context.Context, documentID string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, documentID string) error
	// IncrRetry 递增并返回该文档的重试次数。
	IncrRetry(ctx context.Context, documentID string) (int64, error)
	ClearRetry(ctx context.Context, documentID string) error
}

type redisTaskStateRepository struct {
	redisClient *redis.Client
}

// NewTaskStateRepository 创建一个新的 TaskStateRepository 实例。
func NewTaskStateRepository(redisClient *redis.Client) TaskStateRepository {
	return &redisTaskStateRepository{redisClient: redisClient}
}

func lockKey(documentID string) string  { return fmt.Sprintf("indexing:lock:%s", documentID) }
func retryKey(documentID string) string { return fmt.Sprintf("indexing:retry:%s", documentID) }

func (r *redisTaskStateRepository) TryLock(ctx context.Context, documentID string, ttl time.Duration) (bool, error) {
	ok, err := r.redisClient.SetNX(ctx, lockKey(documentID), time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire indexing lock: %w", err)
	}
	return ok, nil
}

func (r *redisTaskStateRepository) Unlock(ctx context.Context, documentID string) error {
	if err := r.redisClient.Del(ctx, lockKey(documentID)).Err(); err != nil {
		return fmt.Errorf("failed to release indexing lock: %w", err)
	}
	return nil
}

func (r *redisTaskStateRepository) IncrRetry(ctx context.Context, documentID string) (int64, error) {
	key := retryKey(documentID)
	n, err := r.redisClient.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment retry counter: %w", err)
	}
	// 计数只需存活到任务结束
	r.redisClient.Expire(ctx, key, 24*time.Hour)
	return n, nil
}

func (r *redisTaskStateRepository) ClearRetry(ctx context.Context, documentID string) error {
	return r.redisClient.Del(ctx, retryKey(documentID)).Err()
}

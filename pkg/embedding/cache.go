package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"

	"smart-notebook-go/pkg/log"
	"smart-notebook-go/pkg/metrics"
)

const cacheKeyPrefix = "emb_cache:"

// cacheStore 是缓存装饰器依赖的最小 KV 接口。
type cacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedClient 以 "模型 + 文本" 的 sha256 为键缓存向量，主要用于重复的查询问句。
type CachedClient struct {
	inner Client
	store cacheStore
	model string
	ttl   time.Duration
}

// NewCachedClient 使用 Redis 作为缓存创建装饰器。
func NewCachedClient(inner Client, rdb *redis.Client, modelName string, ttl time.Duration) *CachedClient {
	return &CachedClient{inner: inner, store: redisStore{rdb: rdb}, model: modelName, ttl: ttl}
}

// CreateEmbedding 命中缓存时直接返回，否则调用下游并写回缓存。缓存读写失败只记录日志。
func (c *CachedClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if data, ok, err := c.store.Get(ctx, key); err != nil {
		log.Warnf("[EmbeddingCache] 读取缓存失败, key: %s, error: %v", key, err)
	} else if ok {
		if vec, err := bytesToVector(data); err == nil && len(vec) > 0 {
			metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
			return vec, nil
		}
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()

	vec, err := c.inner.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, key, vectorToBytes(vec), c.ttl); err != nil {
		log.Warnf("[EmbeddingCache] 写入缓存失败, key: %s, error: %v", key, err)
	}
	return vec, nil
}

func (c *CachedClient) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.model + "\x00" + text))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

type redisStore struct {
	rdb *redis.Client
}

func (s redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

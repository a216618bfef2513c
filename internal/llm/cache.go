package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"clause_lens/internal/config"
	"clause_lens/internal/logger"
)

// Cache хранит ответы сервиса по ключу запроса
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// RedisCache - кеш ответов в Redis с TTL
type RedisCache struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedisCache подключается к Redis и проверяет соединение
func NewRedisCache(ctx context.Context, cfg config.RedisConfig) (*RedisCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisCache{rdb: rdb, ttl: cfg.TTL}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string) error {
	return c.rdb.Set(ctx, key, value, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// Cached - декоратор сервиса: одинаковые батчи не отправляются повторно.
// Ошибки кеша не ломают сегментацию, только логируются
type Cached struct {
	next  Service
	cache Cache
	log   *logger.Logger
}

// WithCache оборачивает сервис кешем
func WithCache(next Service, cache Cache, log *logger.Logger) *Cached {
	return &Cached{next: next, cache: cache, log: log}
}

func (c *Cached) Name() string {
	return c.next.Name() + "+cache"
}

func (c *Cached) Segment(ctx context.Context, req Request) (string, error) {
	key, err := CacheKey(c.next.Name(), req)
	if err != nil {
		return "", err
	}

	if val, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warn("segment cache read failed", "error", err)
	} else if ok {
		c.log.Debug("segment cache hit", "blocks", len(req.Blocks))
		return val, nil
	}

	val, err := c.next.Segment(ctx, req)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, key, val); err != nil {
		c.log.Warn("segment cache write failed", "error", err)
	}
	return val, nil
}

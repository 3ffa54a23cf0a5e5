package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LJTian/InsightHub/internal/pipeline"
	"github.com/LJTian/InsightHub/internal/processor"
)

// RunCache 把整次运行的排序结果以 JSON 写入 Redis，过期交给 TTL
type RunCache struct {
	Redis *redis.Client
}

var _ pipeline.ResultCache = (*RunCache)(nil)

func NewRunCache(addr string) (*RunCache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RunCache{Redis: rdb}, nil
}

func (c *RunCache) Get(ctx context.Context, key string) ([]processor.Article, bool, error) {
	bs, err := c.Redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var articles []processor.Article
	if err := json.Unmarshal(bs, &articles); err != nil {
		return nil, false, fmt.Errorf("decode cached run: %w", err)
	}
	return articles, true, nil
}

func (c *RunCache) Set(ctx context.Context, key string, articles []processor.Article, ttl time.Duration) error {
	if articles == nil {
		articles = []processor.Article{}
	}
	bs, err := json.Marshal(articles)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	if err := c.Redis.Set(ctx, key, bs, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RunCache) Close() error {
	return c.Redis.Close()
}

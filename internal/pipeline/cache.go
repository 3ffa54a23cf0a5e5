package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/LJTian/InsightHub/internal/collector"
	"github.com/LJTian/InsightHub/internal/logger"
	"github.com/LJTian/InsightHub/internal/processor"
)

const (
	DefaultCacheTTL = 4 * time.Hour
	cacheKeyPrefix  = "insighthub:articles:"
)

// ResultCache 保存一次完整运行的排序结果；miss 时返回 ok=false
type ResultCache interface {
	Get(ctx context.Context, key string) ([]processor.Article, bool, error)
	Set(ctx context.Context, key string, articles []processor.Article, ttl time.Duration) error
}

// Runner 由 Aggregator 实现
type Runner interface {
	Run(ctx context.Context, sources []collector.Source) ([]processor.Article, error)
}

// SourceLoader 每次运行前重新读取数据源，CSV 修改无需重启
type SourceLoader func() ([]collector.Source, error)

// StaticSources 固定数据源列表
func StaticSources(sources []collector.Source) SourceLoader {
	return func() ([]collector.Source, error) { return sources, nil }
}

// CacheKey 由数据源列表决定，数据源变化后旧缓存自然失效
func CacheKey(sources []collector.Source) string {
	parts := make([]string, 0, len(sources))
	for _, s := range sources {
		parts = append(parts, s.Name+"|"+s.Region+"|"+s.Query+"|"+string(s.Strategy))
	}
	return cacheKeyPrefix + processor.HashKey(parts...)
}

// CachedRunner 在 TTL 内复用上次结果；同一缓存键的刷新合并为一次运行，
// 刷新进行中读取仍然命中旧缓存
type CachedRunner struct {
	runner Runner
	cache  ResultCache
	load   SourceLoader
	ttl    time.Duration
	log    *logrus.Entry

	runs singleflight.Group
}

func NewCachedRunner(runner Runner, cache ResultCache, load SourceLoader, ttl time.Duration) *CachedRunner {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &CachedRunner{
		runner: runner,
		cache:  cache,
		load:   load,
		ttl:    ttl,
		log:    logger.Component("cache"),
	}
}

func (c *CachedRunner) Latest(ctx context.Context) ([]processor.Article, error) {
	sources := c.sources()
	key := CacheKey(sources)

	articles, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.WithError(err).Warn("cache read failed, running live")
	} else if ok {
		return articles, nil
	}
	return c.refresh(ctx, sources, key)
}

// Refresh 忽略缓存强制重跑，用于 Sync 按钮与定时任务
func (c *CachedRunner) Refresh(ctx context.Context) ([]processor.Article, error) {
	sources := c.sources()
	return c.refresh(ctx, sources, CacheKey(sources))
}

// refresh 以发起方的 ctx 运行；后加入的调用方只等待结果，自己的 ctx 到期即返回
func (c *CachedRunner) refresh(ctx context.Context, sources []collector.Source, key string) ([]processor.Article, error) {
	ch := c.runs.DoChan(key, func() (interface{}, error) {
		articles, err := c.runner.Run(ctx, sources)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(ctx, key, articles, c.ttl); err != nil {
			c.log.WithError(err).Warn("cache write failed")
		}
		return articles, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		articles := res.Val.([]processor.Article)
		if res.Shared {
			articles = cloneArticles(articles)
		}
		return articles, nil
	}
}

func (c *CachedRunner) sources() []collector.Source {
	if c.load == nil {
		return nil
	}
	sources, err := c.load()
	if err != nil {
		c.log.WithError(err).Warn("load sources failed, running with empty source list")
		return nil
	}
	return sources
}

type memoryEntry struct {
	articles []processor.Article
	expires  time.Time
}

// MemoryCache 进程内缓存，默认后端
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

var _ ResultCache = (*MemoryCache)(nil)

func (m *MemoryCache) Get(_ context.Context, key string) ([]processor.Article, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || !m.now().Before(e.expires) {
		return nil, false, nil
	}
	return cloneArticles(e.articles), true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, articles []processor.Article, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{articles: cloneArticles(articles), expires: m.now().Add(ttl)}
	return nil
}

func cloneArticles(in []processor.Article) []processor.Article {
	out := make([]processor.Article, len(in))
	copy(out, in)
	return out
}

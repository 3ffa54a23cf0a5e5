package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LJTian/InsightHub/internal/collector"
	"github.com/LJTian/InsightHub/internal/processor"
)

type countingRunner struct {
	mu    sync.Mutex
	calls int
	err   error
	got   [][]collector.Source
}

func (r *countingRunner) Run(_ context.Context, sources []collector.Source) ([]processor.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.got = append(r.got, sources)
	if r.err != nil {
		return nil, r.err
	}
	return []processor.Article{{Link: "https://x.test/1", Impact: 50}}, nil
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]processor.Article, bool, error) {
	return nil, false, errors.New("cache down")
}

func (brokenCache) Set(context.Context, string, []processor.Article, time.Duration) error {
	return errors.New("cache down")
}

func TestCachedRunnerReusesWithinTTL(t *testing.T) {
	runner := &countingRunner{}
	mem := NewMemoryCache()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	mem.now = func() time.Time { return now }

	c := NewCachedRunner(runner, mem, StaticSources(testSources()), 4*time.Hour)
	c.log = discardEntry()

	for i := 0; i < 3; i++ {
		got, err := c.Latest(context.Background())
		require.NoError(t, err)
		require.Len(t, got, 1)
	}
	assert.Equal(t, 1, runner.calls)

	now = now.Add(4*time.Hour + time.Second)
	_, err := c.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, runner.calls)
}

func TestCachedRunnerRefreshAlwaysRuns(t *testing.T) {
	runner := &countingRunner{}
	c := NewCachedRunner(runner, nil, StaticSources(testSources()), time.Hour)
	c.log = discardEntry()

	_, err := c.Latest(context.Background())
	require.NoError(t, err)
	_, err = c.Refresh(context.Background())
	require.NoError(t, err)
	_, err = c.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, runner.calls)
}

func TestCachedRunnerFallsBackOnCacheErrors(t *testing.T) {
	runner := &countingRunner{}
	c := NewCachedRunner(runner, brokenCache{}, StaticSources(testSources()), time.Hour)
	c.log = discardEntry()

	got, err := c.Latest(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
	_, err = c.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, runner.calls)
}

func TestCachedRunnerPropagatesAbortAndSkipsCache(t *testing.T) {
	runner := &countingRunner{err: context.Canceled}
	mem := NewMemoryCache()
	c := NewCachedRunner(runner, mem, StaticSources(testSources()), time.Hour)
	c.log = discardEntry()

	_, err := c.Latest(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, mem.entries)
}

func TestCachedRunnerLoaderErrorRunsEmpty(t *testing.T) {
	runner := &countingRunner{}
	c := NewCachedRunner(runner, nil, func() ([]collector.Source, error) {
		return nil, errors.New("missing file")
	}, time.Hour)
	c.log = discardEntry()

	_, err := c.Latest(context.Background())
	require.NoError(t, err)
	require.Len(t, runner.got, 1)
	assert.Empty(t, runner.got[0])
}

func TestCacheKeyDependsOnSources(t *testing.T) {
	a := testSources()
	b := testSources()
	assert.Equal(t, CacheKey(a), CacheKey(b))
	assert.Contains(t, CacheKey(a), cacheKeyPrefix)

	b[1].Query = "changed"
	assert.NotEqual(t, CacheKey(a), CacheKey(b))
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	mem := NewMemoryCache()
	in := []processor.Article{{Link: "a", Impact: 10}}
	require.NoError(t, mem.Set(context.Background(), "k", in, time.Minute))
	in[0].Impact = 99

	got, ok, err := mem.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	got[0].Impact = 77

	again, _, _ := mem.Get(context.Background(), "k")
	assert.Equal(t, 10, again[0].Impact)
}

// gateRunner 在 release 关闭前阻塞，模拟一次慢刷新
type gateRunner struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGateRunner() *gateRunner {
	return &gateRunner{started: make(chan struct{}), release: make(chan struct{})}
}

func (r *gateRunner) Run(ctx context.Context, _ []collector.Source) ([]processor.Article, error) {
	r.once.Do(func() { close(r.started) })
	select {
	case <-r.release:
		return []processor.Article{{Link: "https://x.test/fresh", Impact: 90}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCachedRunnerServesCacheDuringRefresh(t *testing.T) {
	runner := newGateRunner()
	mem := NewMemoryCache()
	c := NewCachedRunner(runner, mem, StaticSources(testSources()), time.Hour)
	c.log = discardEntry()

	key := CacheKey(testSources())
	stale := []processor.Article{{Link: "https://x.test/stale", Impact: 60}}
	require.NoError(t, mem.Set(context.Background(), key, stale, time.Hour))

	done := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background())
		done <- err
	}()
	<-runner.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	got, err := c.Latest(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	require.Len(t, got, 1)
	assert.Equal(t, "https://x.test/stale", got[0].Link)

	close(runner.release)
	require.NoError(t, <-done)

	got, err = c.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://x.test/fresh", got[0].Link)
}

func TestCachedRunnerWaiterHonoursOwnDeadline(t *testing.T) {
	runner := newGateRunner()
	c := NewCachedRunner(runner, nil, StaticSources(testSources()), time.Hour)
	c.log = discardEntry()

	done := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background())
		done <- err
	}()
	<-runner.started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.Latest(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(runner.release)
	require.NoError(t, <-done)
}

func TestCachedRunnerCoalescesConcurrentRefreshes(t *testing.T) {
	runner := &countingRunner{}
	gate := newGateRunner()
	calls := 0
	var mu sync.Mutex
	c := NewCachedRunner(runnerFunc(func(ctx context.Context, s []collector.Source) ([]processor.Article, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		if _, err := gate.Run(ctx, s); err != nil {
			return nil, err
		}
		return runner.Run(ctx, s)
	}), nil, StaticSources(testSources()), time.Hour)
	c.log = discardEntry()

	var wg sync.WaitGroup
	results := make([][]processor.Article, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := c.Refresh(context.Background())
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}
	<-gate.started
	time.Sleep(20 * time.Millisecond)
	close(gate.release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
	for _, got := range results {
		require.Len(t, got, 1)
	}
	// 共享结果各自持有副本
	results[0][0].Impact = 1
	assert.Equal(t, 50, results[1][0].Impact)
}

type runnerFunc func(ctx context.Context, sources []collector.Source) ([]processor.Article, error)

func (f runnerFunc) Run(ctx context.Context, sources []collector.Source) ([]processor.Article, error) {
	return f(ctx, sources)
}

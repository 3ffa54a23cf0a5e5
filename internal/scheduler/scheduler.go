package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/LJTian/InsightHub/internal/logger"
	"github.com/LJTian/InsightHub/internal/processor"
)

const (
	defaultStartupDelay = 15 * time.Second
	defaultRunTimeout   = 10 * time.Minute
)

// Refresher 强制重跑整条流水线，pipeline.CachedRunner 实现
type Refresher interface {
	Refresh(ctx context.Context) ([]processor.Article, error)
}

// SyncMarker 刷新成功后记录同步时间，storage.Repository 实现
type SyncMarker interface {
	MarkSynced(ctx context.Context, at time.Time) error
}

type Scheduler struct {
	cron         *cron.Cron
	refresher    Refresher
	marker       SyncMarker
	startupDelay time.Duration
	runTimeout   time.Duration
	log          *logrus.Entry

	// job 经过 SkipIfStillRunning 包装，定时任务与启动首轮共用
	job cron.Job

	mu      sync.Mutex
	timer   *time.Timer
	startup sync.WaitGroup
}

type Option func(*Scheduler)

func WithSyncMarker(m SyncMarker) Option {
	return func(s *Scheduler) { s.marker = m }
}

// WithStartupDelay 0 表示启动时不跑首轮
func WithStartupDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.startupDelay = d }
}

func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.runTimeout = d
		}
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

func New(spec string, r Refresher, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		refresher:    r,
		startupDelay: defaultStartupDelay,
		runTimeout:   defaultRunTimeout,
		log:          logger.Component("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}

	// 上一轮没跑完时跳过本轮
	s.job = cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(s.runJob))
	s.cron = cron.New()
	if _, err := s.cron.AddJob(spec, s.job); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	if s.startupDelay <= 0 {
		return
	}
	// 延迟执行首轮采集，避免与首屏请求争抢资源
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startup.Add(1)
	s.timer = time.AfterFunc(s.startupDelay, func() {
		defer s.startup.Done()
		s.job.Run()
	})
}

// Stop 停止调度，返回的 ctx 在定时任务与启动首轮都结束后 Done
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	if s.timer != nil && s.timer.Stop() {
		s.startup.Done()
	}
	s.timer = nil
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		s.startup.Wait()
		cancel()
	}()
	return ctx
}

// Entries 已注册的定时任务数量
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// RunOnce 对外暴露的单次执行入口，方便手动触发
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	s.log.Info("start refresh job...")

	articles, err := s.refresher.Refresh(ctx)
	if err != nil {
		s.log.WithError(err).Error("refresh job failed")
		return 0, err
	}
	if s.marker != nil {
		if err := s.marker.MarkSynced(ctx, time.Now()); err != nil {
			s.log.WithError(err).Warn("mark sources synced failed")
		}
	}
	s.log.WithFields(logrus.Fields{
		"articles": len(articles),
		"duration": time.Since(start).String(),
	}).Info("refresh job done")
	return len(articles), nil
}

func (s *Scheduler) runJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()
	_, _ = s.RunOnce(ctx)
}

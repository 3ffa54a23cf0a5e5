package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/LJTian/InsightHub/internal/api"
	"github.com/LJTian/InsightHub/internal/collector"
	"github.com/LJTian/InsightHub/internal/config"
	"github.com/LJTian/InsightHub/internal/logger"
	"github.com/LJTian/InsightHub/internal/metrics"
	"github.com/LJTian/InsightHub/internal/pipeline"
	"github.com/LJTian/InsightHub/internal/processor"
	"github.com/LJTian/InsightHub/internal/scheduler"
	"github.com/LJTian/InsightHub/internal/storage"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	cfg := config.Load()
	log := logger.Component("main")

	rules, err := cfg.Rules()
	if err != nil {
		log.WithError(err).Fatal("load rules failed")
	}

	repo, err := openRepository(cfg)
	if err != nil {
		log.WithError(err).Fatal("init store failed")
	}
	defer repo.Close()

	cache, closeCache := openCache(cfg, log)
	defer closeCache()

	rec := metrics.New()
	proc := processor.NewProcessor(rules, processor.WithLocation(cfg.Location()))
	agg := pipeline.New(
		collector.NewFeedFetcher(cfg.FetchLimit, cfg.FetchTimeout),
		proc,
		pipeline.WithWorkers(cfg.FetchWorkers),
		pipeline.WithFetchTimeout(cfg.FetchTimeout),
		pipeline.WithRecorder(rec),
	)
	// 每次刷新重新读取 CSV，修改数据源无需重启
	loadSources := func() ([]collector.Source, error) {
		return collector.LoadSources(cfg.SourcesPath)
	}
	runner := pipeline.NewCachedRunner(agg, cache, loadSources, cfg.CacheTTL)

	s, err := scheduler.New(cfg.CronSpec, runner, scheduler.WithSyncMarker(repo))
	if err != nil {
		log.WithError(err).Fatal("init scheduler failed")
	}
	s.Start()

	// API
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger(logger.Component("http")))
	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass, "/health"))
	}

	apiServer := api.NewServer(runner, s, repo,
		api.WithMetrics(rec.Handler()),
		api.WithLocation(cfg.Location()),
		api.WithRules(rules),
	)
	apiServer.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infof("starting api server at %s ...", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server exit")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down ...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	select {
	case <-s.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("refresh job still running at shutdown")
	}
}

// openRepository 配置了 POSTGRES_DSN 时使用 PostgreSQL，否则落到本地 SQLite
func openRepository(cfg *config.Config) (storage.Repository, error) {
	if cfg.PostgresDSN != "" {
		return storage.NewStore(cfg.PostgresDSN)
	}
	return storage.NewLocalStore(cfg.SQLitePath)
}

// openCache Redis 不可用时退回进程内缓存
func openCache(cfg *config.Config, log *logrus.Entry) (pipeline.ResultCache, func()) {
	if cfg.RedisAddr == "" {
		return pipeline.NewMemoryCache(), func() {}
	}
	rc, err := storage.NewRunCache(cfg.RedisAddr)
	if err != nil {
		log.WithError(err).Warn("redis unavailable, using in-memory cache")
		return pipeline.NewMemoryCache(), func() {}
	}
	return rc, func() { _ = rc.Close() }
}

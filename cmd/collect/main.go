package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/LJTian/InsightHub/internal/collector"
	"github.com/LJTian/InsightHub/internal/config"
	"github.com/LJTian/InsightHub/internal/export"
	"github.com/LJTian/InsightHub/internal/logger"
	"github.com/LJTian/InsightHub/internal/pipeline"
	"github.com/LJTian/InsightHub/internal/processor"
)

// 一个仅执行一次采集任务的命令行入口：适合手动触发采集并导出 CSV
func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	// 日志走 stderr，stdout 留给 --stdout 的 CSV
	logger.Log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(config.Load()).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type options struct {
	sources  string
	rules    string
	out      string
	stdout   bool
	timeout  time.Duration
	deadline time.Duration
	workers  int
	limit    int
	minScore int
	timezone string
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	opts := options{
		sources:  cfg.SourcesPath,
		rules:    cfg.RulesPath,
		out:      ".",
		timeout:  cfg.FetchTimeout,
		workers:  cfg.FetchWorkers,
		limit:    cfg.FetchLimit,
		minScore: cfg.MinImpact,
		timezone: cfg.Timezone,
	}

	cmd := &cobra.Command{
		Use:           "collect",
		Short:         "Fetch every configured source once and export the ranked articles as CSV",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			run := *cfg
			run.SourcesPath = opts.sources
			run.RulesPath = opts.rules
			run.FetchTimeout = opts.timeout
			run.FetchWorkers = opts.workers
			run.FetchLimit = opts.limit
			run.MinImpact = opts.minScore
			run.Timezone = opts.timezone
			return collect(cmd.Context(), &run, opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.sources, "sources", opts.sources, "source list CSV (name,region,query,strategy)")
	f.StringVar(&opts.rules, "rules", opts.rules, "ruleset YAML; built-in rules when empty")
	f.StringVar(&opts.out, "out", opts.out, "directory for the export file")
	f.BoolVar(&opts.stdout, "stdout", false, "write the CSV to stdout instead of a file")
	f.DurationVar(&opts.timeout, "timeout", opts.timeout, "per-source fetch timeout")
	f.DurationVar(&opts.deadline, "deadline", 0, "abort the whole run after this long (0 = no limit)")
	f.IntVar(&opts.workers, "workers", opts.workers, "concurrent source fetches")
	f.IntVar(&opts.limit, "limit", opts.limit, "max entries kept per source")
	f.IntVar(&opts.minScore, "min-impact", opts.minScore, "drop entries scoring below this (-1 = ruleset default)")
	f.StringVar(&opts.timezone, "timezone", opts.timezone, "IANA zone used for article dates")
	return cmd
}

func collect(ctx context.Context, cfg *config.Config, opts options, stdout io.Writer) error {
	log := logger.Component("collect")

	rules, err := cfg.Rules()
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	sources, err := collector.LoadSources(cfg.SourcesPath)
	if err != nil {
		// 数据源不可读按空列表处理，结果为空但不算失败
		log.WithError(err).Warn("source list unreadable, running with no sources")
		sources = nil
	}

	if opts.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.deadline)
		defer cancel()
	}

	loc := cfg.Location()
	agg := pipeline.New(
		collector.NewFeedFetcher(cfg.FetchLimit, cfg.FetchTimeout),
		processor.NewProcessor(rules, processor.WithLocation(loc)),
		pipeline.WithWorkers(cfg.FetchWorkers),
		pipeline.WithFetchTimeout(cfg.FetchTimeout),
		pipeline.WithLogger(log),
	)

	articles, report, err := agg.RunWithReport(ctx, sources)
	if err != nil {
		return fmt.Errorf("run aborted: %w", err)
	}
	for _, res := range report.Sources {
		if !res.OK() {
			log.WithFields(logrus.Fields{"source": res.Source.Name, "error": res.Err.Error()}).Warn("source skipped")
		}
	}

	if opts.stdout {
		return export.WriteCSV(stdout, articles)
	}
	path, err := export.WriteFile(opts.out, config.Now().In(loc), articles)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"articles": len(articles),
		"failed":   report.Failed(),
		"file":     path,
	}).Info("export written")
	return nil
}

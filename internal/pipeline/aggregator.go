package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/LJTian/InsightHub/internal/collector"
	"github.com/LJTian/InsightHub/internal/logger"
	"github.com/LJTian/InsightHub/internal/processor"
)

const (
	DefaultWorkers      = 8
	DefaultFetchTimeout = 15 * time.Second
)

// Recorder 接收运行与数据源级别的统计，metrics.Recorder 实现该接口
type Recorder interface {
	ObserveSource(source string, st processor.Stats, err error)
	ObserveRun(d time.Duration, articles int, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSource(string, processor.Stats, error) {}
func (nopRecorder) ObserveRun(time.Duration, int, error)         {}

// SourceResult 单个数据源的结果：成功时带统计，失败时带原因
type SourceResult struct {
	Source   collector.Source `json:"source"`
	Fetched  int              `json:"fetched"`
	Stats    processor.Stats  `json:"stats"`
	Err      error            `json:"-"`
	Duration time.Duration    `json:"duration"`
}

func (r SourceResult) OK() bool { return r.Err == nil }

// Report 一次运行的诊断信息
type Report struct {
	RunID     string         `json:"run_id"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Sources   []SourceResult `json:"sources"`
	Articles  int            `json:"articles"`
}

func (r Report) Failed() int {
	n := 0
	for _, s := range r.Sources {
		if !s.OK() {
			n++
		}
	}
	return n
}

// Totals 汇总所有成功数据源的处理统计
func (r Report) Totals() processor.Stats {
	var st processor.Stats
	for _, s := range r.Sources {
		st.Add(s.Stats)
	}
	return st
}

// Aggregator 并发抓取所有数据源，全部结束后统一合并、排序、去重
type Aggregator struct {
	fetcher collector.Fetcher
	proc    *processor.Processor
	workers int
	timeout time.Duration
	log     *logrus.Entry
	metrics Recorder
	now     func() time.Time
}

type Option func(*Aggregator)

func WithWorkers(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.workers = n
		}
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.log = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(a *Aggregator) {
		if r != nil {
			a.metrics = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

func New(f collector.Fetcher, p *processor.Processor, opts ...Option) *Aggregator {
	a := &Aggregator{
		fetcher: f,
		proc:    p,
		workers: DefaultWorkers,
		timeout: DefaultFetchTimeout,
		log:     logger.Component("pipeline"),
		metrics: nopRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run 返回排好序的文章列表；只有调用方取消时才返回错误，且不会返回部分结果
func (a *Aggregator) Run(ctx context.Context, sources []collector.Source) ([]processor.Article, error) {
	articles, _, err := a.RunWithReport(ctx, sources)
	return articles, err
}

func (a *Aggregator) RunWithReport(ctx context.Context, sources []collector.Source) ([]processor.Article, Report, error) {
	start := a.now()
	report := Report{RunID: uuid.NewString(), StartedAt: start}
	log := a.log.WithField("run_id", report.RunID)

	if len(sources) == 0 {
		log.Warn("no sources configured, nothing to fetch")
		a.metrics.ObserveRun(0, 0, nil)
		return []processor.Article{}, report, nil
	}

	results := make([]SourceResult, len(sources))
	batches := make([][]processor.Article, len(sources))

	var g errgroup.Group
	g.SetLimit(a.workers)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			batches[i], results[i] = a.runSource(ctx, log, src)
			return nil
		})
	}
	// worker 不返回错误，失败记录在 results 中
	_ = g.Wait()

	report.Sources = results
	report.Duration = a.now().Sub(start)

	if err := ctx.Err(); err != nil {
		log.WithError(err).Warn("run aborted, discarding partial results")
		a.metrics.ObserveRun(report.Duration, 0, err)
		return nil, report, err
	}

	// 按数据源顺序合并，与完成顺序无关
	total := 0
	for _, b := range batches {
		total += len(b)
	}
	merged := make([]processor.Article, 0, total)
	for _, b := range batches {
		merged = append(merged, b...)
	}
	ranked := processor.Rank(merged)
	report.Articles = len(ranked)

	totals := report.Totals()
	log.WithFields(logrus.Fields{
		"sources":     len(sources),
		"failed":      report.Failed(),
		"merged":      len(merged),
		"articles":    len(ranked),
		"blacklisted": totals.Blacklisted,
		"low_impact":  totals.LowImpact,
		"malformed":   totals.Malformed,
		"duration":    report.Duration.String(),
	}).Info("run finished")
	if len(ranked) == 0 {
		log.Info("all entries were filtered or no source returned data")
	}

	a.metrics.ObserveRun(report.Duration, len(ranked), nil)
	return ranked, report, nil
}

func (a *Aggregator) runSource(ctx context.Context, log *logrus.Entry, src collector.Source) ([]processor.Article, SourceResult) {
	res := SourceResult{Source: src}
	srcLog := log.WithFields(logrus.Fields{"source": src.Name, "strategy": src.Strategy})

	if err := ctx.Err(); err != nil {
		res.Err = err
		return nil, res
	}

	started := a.now()
	fctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	entries, err := a.fetcher.Fetch(fctx, src)
	if err == nil && fctx.Err() != nil {
		err = fmt.Errorf("fetch %s: %w", src.Name, fctx.Err())
	}
	res.Duration = a.now().Sub(started)
	if err != nil {
		res.Err = err
		srcLog.WithError(err).Warn("source failed, skipping")
		a.metrics.ObserveSource(src.Name, processor.Stats{}, err)
		return nil, res
	}

	articles, st := a.proc.Process(src, entries)
	res.Fetched = len(entries)
	res.Stats = st
	srcLog.WithFields(logrus.Fields{
		"fetched": len(entries),
		"kept":    st.Kept,
		"dropped": st.Dropped(),
	}).Debug("source processed")
	a.metrics.ObserveSource(src.Name, st, nil)
	return articles, res
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LJTian/InsightHub/internal/processor"
)

const namespace = "insighthub"

// Recorder 持有独立的 registry，避免测试之间互相污染全局指标
type Recorder struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	articles      prometheus.Gauge
	sourceFetches *prometheus.CounterVec
	entries       *prometheus.CounterVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Wall time of a full pipeline run.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		articles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "articles_published",
			Help:      "Number of ranked articles in the last completed run.",
		}),
		sourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Source fetches by source and result.",
		}, []string{"source", "result"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_total",
			Help:      "Feed entries by processing outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		r.runs, r.runDuration, r.articles, r.sourceFetches, r.entries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler 暴露给 /metrics
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) ObserveSource(source string, st processor.Stats, err error) {
	if err != nil {
		r.sourceFetches.WithLabelValues(source, "error").Inc()
		return
	}
	r.sourceFetches.WithLabelValues(source, "ok").Inc()
	r.entries.WithLabelValues("kept").Add(float64(st.Kept))
	r.entries.WithLabelValues("malformed").Add(float64(st.Malformed))
	r.entries.WithLabelValues("blacklisted").Add(float64(st.Blacklisted))
	r.entries.WithLabelValues("low_impact").Add(float64(st.LowImpact))
}

func (r *Recorder) ObserveRun(d time.Duration, articles int, err error) {
	if err != nil {
		r.runs.WithLabelValues("aborted").Inc()
		return
	}
	r.runs.WithLabelValues("ok").Inc()
	r.runDuration.Observe(d.Seconds())
	r.articles.Set(float64(articles))
}

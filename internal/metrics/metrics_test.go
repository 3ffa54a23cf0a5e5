package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LJTian/InsightHub/internal/processor"
)

func TestObserveSource(t *testing.T) {
	r := New()
	r.ObserveSource("acme", processor.Stats{Kept: 3, Blacklisted: 2, LowImpact: 1}, nil)
	r.ObserveSource("acme", processor.Stats{}, errors.New("boom"))
	r.ObserveSource("other", processor.Stats{Kept: 1, Malformed: 4}, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.sourceFetches.WithLabelValues("acme", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sourceFetches.WithLabelValues("acme", "error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.entries.WithLabelValues("kept")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.entries.WithLabelValues("malformed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.entries.WithLabelValues("blacklisted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.entries.WithLabelValues("low_impact")))
}

func TestObserveRun(t *testing.T) {
	r := New()
	r.ObserveRun(2*time.Second, 17, nil)
	r.ObserveRun(time.Second, 0, context.Canceled)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("aborted")))
	assert.Equal(t, 17.0, testutil.ToFloat64(r.articles), "aborted run must not overwrite the gauge")
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.ObserveRun(time.Second, 5, nil)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "insighthub_articles_published 5")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rssFeed(n int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>t</title>`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<item><title>Headline %d - Publisher</title><link>https://example.com/%d</link>`+
			`<description>&lt;b&gt;Global&lt;/b&gt; outlook %d </description>`+
			`<pubDate>Mon, 02 Mar 2026 10:00:00 GMT</pubDate></item>`, i, i, i)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

const atomFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom</title>
  <entry>
    <title>Only updated</title>
    <link href="https://example.com/atom/1"/>
    <updated>2026-01-15T08:30:00Z</updated>
    <summary>plain</summary>
  </entry>
  <entry>
    <title>No dates</title>
    <link href="https://example.com/atom/2"/>
  </entry>
</feed>`

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFeedFetcherCapsEntriesAndStripsBold(t *testing.T) {
	srv := serve(t, http.StatusOK, rssFeed(15))
	f := NewFeedFetcher(10, 5*time.Second)

	entries, err := f.Fetch(context.Background(), Source{Name: "acme", Query: srv.URL, Strategy: StrategyDirect})
	require.NoError(t, err)
	require.Len(t, entries, 10)

	first := entries[0]
	assert.Equal(t, "Headline 0 - Publisher", first.Title)
	assert.Equal(t, "https://example.com/0", first.Link)
	assert.Equal(t, "Global outlook 0", first.Summary)
	require.NotNil(t, first.PublishedAt)
	assert.Equal(t, 2026, first.PublishedAt.Year())
	assert.Equal(t, "https://example.com/9", entries[9].Link)
}

func TestFeedFetcherAtomUpdatedFallback(t *testing.T) {
	srv := serve(t, http.StatusOK, atomFeed)
	f := NewFeedFetcher(0, 0)

	entries, err := f.Fetch(context.Background(), Source{Name: "atom", Query: srv.URL, Strategy: "rss"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NotNil(t, entries[0].PublishedAt)
	assert.Equal(t, time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC), entries[0].PublishedAt.UTC())
	assert.Nil(t, entries[1].PublishedAt)
}

func TestFeedFetcherErrors(t *testing.T) {
	t.Run("http status", func(t *testing.T) {
		srv := serve(t, http.StatusNotFound, "nope")
		_, err := NewFeedFetcher(10, time.Second).Fetch(context.Background(), Source{Name: "gone", Query: srv.URL})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "gone")
	})

	t.Run("unparseable body", func(t *testing.T) {
		srv := serve(t, http.StatusOK, "this is not a feed")
		_, err := NewFeedFetcher(10, time.Second).Fetch(context.Background(), Source{Name: "junk", Query: srv.URL})
		require.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewFeedFetcher(10, time.Second).Fetch(ctx, Source{Name: "x", Query: "https://example.invalid"})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestFeedFetcherDeadlineAbortsInFlightRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
			_, _ = w.Write([]byte(rssFeed(1)))
		}
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewFeedFetcher(10, 10*time.Second).Fetch(ctx, Source{Name: "slow", Query: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFeedFetcherBodyReadAfterRoundTrip(t *testing.T) {
	// 正常完成的请求不受 transport 包装影响
	srv := serve(t, http.StatusOK, rssFeed(3))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entries, err := NewFeedFetcher(10, time.Second).Fetch(ctx, Source{Name: "ok", Query: srv.URL})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestStripBold(t *testing.T) {
	assert.Equal(t, "AI outlook", stripBold("  <b>AI</b> outlook "))
	assert.Equal(t, "", stripBold(""))
}

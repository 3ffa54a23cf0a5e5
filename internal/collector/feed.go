package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/mmcdole/gofeed"
)

const (
	DefaultFetchLimit   = 10
	DefaultFetchTimeout = 15 * time.Second
	feedUserAgent       = "InsightHubBot/1.0"
)

var errEmptyFeed = errors.New("empty response body")

var boldStripper = strings.NewReplacer("<b>", "", "</b>", "", "<B>", "", "</B>", "")

// FeedFetcher 通过 colly 下载 feed，再交给 gofeed 解析 RSS / Atom
type FeedFetcher struct {
	limit   int
	timeout time.Duration
}

// NewFeedFetcher limit / timeout 非正数时使用默认值
func NewFeedFetcher(limit int, timeout time.Duration) *FeedFetcher {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &FeedFetcher{limit: limit, timeout: timeout}
}

var _ Fetcher = (*FeedFetcher)(nil)

// Fetch 抓取并解析一个数据源，只保留 feed 顺序中的前 limit 条；不做重试
func (f *FeedFetcher) Fetch(ctx context.Context, src Source) ([]RawEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	feedURL := BuildFeedURL(src.Strategy, src.Query)
	body, err := f.download(ctx, feedURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("fetch %s: %w", src.Name, err)
	}
	// 超时或上层取消后，结果直接丢弃
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// gofeed.Parser 内部带状态，每次新建
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src.Name, err)
	}

	items := feed.Items
	if len(items) > f.limit {
		items = items[:f.limit]
	}

	entries := make([]RawEntry, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		entries = append(entries, toRawEntry(it))
	}
	return entries, nil
}

func (f *FeedFetcher) download(ctx context.Context, feedURL string) ([]byte, error) {
	c := colly.NewCollector(
		colly.UserAgent(feedUserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(f.timeout)
	// colly 的请求不接收 ctx，由 transport 把取消传给底层连接
	c.WithTransport(&ctxTransport{ctx: ctx, base: http.DefaultTransport})

	var body []byte
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	if err := c.Visit(feedURL); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errEmptyFeed
	}
	return body, nil
}

func toRawEntry(it *gofeed.Item) RawEntry {
	e := RawEntry{
		Title:   strings.TrimSpace(it.Title),
		Link:    strings.TrimSpace(it.Link),
		Summary: stripBold(it.Description),
	}
	switch {
	case it.PublishedParsed != nil:
		t := *it.PublishedParsed
		e.PublishedAt = &t
	case it.UpdatedParsed != nil:
		t := *it.UpdatedParsed
		e.PublishedAt = &t
	}
	return e
}

func stripBold(s string) string {
	return strings.TrimSpace(boldStripper.Replace(s))
}

// ctxTransport 在 ctx 结束时取消进行中的请求，包括读取响应体
type ctxTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t *ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqCtx, cancel := context.WithCancel(req.Context())
	stop := context.AfterFunc(t.ctx, cancel)
	release := func() {
		stop()
		cancel()
	}

	resp, err := t.base.RoundTrip(req.WithContext(reqCtx))
	if err != nil {
		release()
		return nil, err
	}
	resp.Body = &releaseOnClose{ReadCloser: resp.Body, release: release}
	return resp, nil
}

type releaseOnClose struct {
	io.ReadCloser
	release func()
}

func (b *releaseOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.release()
	return err
}

package collector

import (
	"context"
	"strings"
	"time"
)

// Strategy 决定 query 如何转换成可抓取的 feed 地址
type Strategy string

const (
	StrategyGoogleNews Strategy = "google_news"
	StrategyBingRSS    Strategy = "bing_rss"
	StrategyDirect     Strategy = "direct"
)

// ParseStrategy 规范化 CSV 中的 strategy 字段；bing 视为 bing_rss，未知值原样保留（按 direct 处理）
func ParseStrategy(s string) Strategy {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "bing":
		return StrategyBingRSS
	case "":
		return StrategyDirect
	default:
		return Strategy(v)
	}
}

// Source 一个配置好的数据源，单次运行内不可变
type Source struct {
	Name     string   `json:"name"`
	Region   string   `json:"region"`
	Query    string   `json:"query"`
	Strategy Strategy `json:"strategy"`
}

// RawEntry feed 中解析出的一条原始记录，只在一次处理流程中存在
type RawEntry struct {
	Title       string
	Link        string
	Summary     string
	PublishedAt *time.Time
}

// Fetcher 抽象每一个数据源的抓取
type Fetcher interface {
	Fetch(ctx context.Context, src Source) ([]RawEntry, error)
}

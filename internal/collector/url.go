package collector

import "net/url"

const (
	googleNewsSearchURL = "https://news.google.com/rss/search"
	bingSearchURL       = "https://www.bing.com/search"
	// 最近 30 天，英文 / 美国区
	googleNewsWindow = "+when:30d&hl=en-US&gl=US&ceid=US:en"
)

// BuildFeedURL 把 (strategy, query) 映射为具体的 feed 地址；未知策略直接把 query 当作 feed URL
func BuildFeedURL(strategy Strategy, query string) string {
	switch strategy {
	case StrategyGoogleNews:
		return googleNewsSearchURL + "?q=" + url.QueryEscape(query) + googleNewsWindow
	case StrategyBingRSS, "bing":
		return bingSearchURL + "?q=" + url.QueryEscape(query) + "&format=rss"
	default:
		return query
	}
}

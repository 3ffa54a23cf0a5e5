package processor

import (
	"sort"
	"strings"
)

// Rank 先按 impact 降序、再按日期降序稳定排序，然后按 link 去重保留首条；返回新切片
func Rank(articles []Article) []Article {
	sorted := make([]Article, len(articles))
	copy(sorted, articles)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Impact != b.Impact {
			return a.Impact > b.Impact
		}
		return a.Date.After(b.Date)
	})

	out := make([]Article, 0, len(sorted))
	seen := make(map[string]struct{}, len(sorted))
	for _, a := range sorted {
		if _, ok := seen[a.Link]; ok {
			continue
		}
		seen[a.Link] = struct{}{}
		out = append(out, a)
	}
	return out
}

const FilterAll = "All"

// Filter 按地区与主题筛选，空值或 All 表示不限
func Filter(articles []Article, region, topic string) []Article {
	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		if !matches(region, a.Region) || !matches(topic, string(a.Topic)) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func matches(want, got string) bool {
	want = strings.TrimSpace(want)
	return want == "" || strings.EqualFold(want, FilterAll) || want == got
}

func Regions(articles []Article) []string {
	return distinct(articles, func(a Article) string { return a.Region })
}

func Topics(articles []Article) []string {
	return distinct(articles, func(a Article) string { return string(a.Topic) })
}

func distinct(articles []Article, key func(Article) string) []string {
	set := make(map[string]struct{})
	for _, a := range articles {
		if k := key(a); k != "" {
			set[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

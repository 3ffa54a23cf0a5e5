package processor

import "strings"

// NoiseFilter 两段式过滤：链接黑名单（打分前）与低分截断（打分后）
type NoiseFilter struct {
	blacklist []string
	minImpact int
}

func NewNoiseFilter(r Rules) *NoiseFilter {
	n := r.normalized()
	return &NoiseFilter{blacklist: n.Blacklist, minImpact: n.MinImpact}
}

func (f *NoiseFilter) Blocked(link string) bool {
	l := strings.ToLower(link)
	for _, domain := range f.blacklist {
		if strings.Contains(l, domain) {
			return true
		}
	}
	return false
}

func (f *NoiseFilter) BelowCutoff(score int) bool {
	return score < f.minImpact
}

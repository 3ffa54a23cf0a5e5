package processor

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/LJTian/InsightHub/internal/collector"
)

const DateLayout = "2006-01-02"

// Article 是经过过滤、打分、分类后的统一结构
type Article struct {
	Headline string
	Link     string
	Firm     string
	Region   string
	Topic    Topic
	Impact   int
	Date     time.Time
}

const (
	StatusNew    = "New"
	StatusActive = "Active"
)

func (a Article) Status() string {
	if a.Impact > NewStatusThreshold {
		return StatusNew
	}
	return StatusActive
}

type articleJSON struct {
	Firm     string `json:"firm"`
	Region   string `json:"region"`
	Topic    Topic  `json:"topic"`
	Headline string `json:"headline"`
	Impact   int    `json:"impact"`
	Date     string `json:"date"`
	Link     string `json:"link"`
}

func (a Article) MarshalJSON() ([]byte, error) {
	return json.Marshal(articleJSON{
		Firm:     a.Firm,
		Region:   a.Region,
		Topic:    a.Topic,
		Headline: a.Headline,
		Impact:   a.Impact,
		Date:     a.Date.Format(DateLayout),
		Link:     a.Link,
	})
}

func (a *Article) UnmarshalJSON(data []byte) error {
	var v articleJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	// 日期可缺省，由调用方决定如何补齐
	var d time.Time
	if v.Date != "" {
		parsed, err := time.Parse(DateLayout, v.Date)
		if err != nil {
			return err
		}
		d = parsed
	}
	*a = Article{
		Headline: v.Headline,
		Link:     v.Link,
		Firm:     v.Firm,
		Region:   v.Region,
		Topic:    v.Topic,
		Impact:   v.Impact,
		Date:     d,
	}
	return nil
}

// Stats 单个数据源的处理统计，用于日志与指标
type Stats struct {
	Kept        int `json:"kept"`
	Malformed   int `json:"malformed"`
	Blacklisted int `json:"blacklisted"`
	LowImpact   int `json:"low_impact"`
}

func (s Stats) Dropped() int {
	return s.Malformed + s.Blacklisted + s.LowImpact
}

func (s *Stats) Add(o Stats) {
	s.Kept += o.Kept
	s.Malformed += o.Malformed
	s.Blacklisted += o.Blacklisted
	s.LowImpact += o.LowImpact
}

// Processor 把 RawEntry 转换为 Article；无共享可变状态，可被多个 worker 同时使用
type Processor struct {
	filter     *NoiseFilter
	scorer     *Scorer
	classifier *Classifier
	loc        *time.Location
	now        func() time.Time
}

type Option func(*Processor)

// WithLocation 日期按该时区落到自然日
func WithLocation(loc *time.Location) Option {
	return func(p *Processor) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// WithClock 无发布时间的条目使用该时钟的“今天”
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

func NewProcessor(r Rules, opts ...Option) *Processor {
	p := &Processor{
		filter:     NewNoiseFilter(r),
		scorer:     NewScorer(r),
		classifier: NewClassifier(r),
		loc:        time.UTC,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) Process(src collector.Source, entries []collector.RawEntry) ([]Article, Stats) {
	out := make([]Article, 0, len(entries))
	var st Stats

	for _, e := range entries {
		link := strings.TrimSpace(e.Link)
		title := strings.TrimSpace(e.Title)
		if link == "" || title == "" {
			st.Malformed++
			continue
		}
		if p.filter.Blocked(link) {
			st.Blacklisted++
			continue
		}

		headline := CleanTitle(title)
		score := p.scorer.Score(headline, e.Summary)
		if p.filter.BelowCutoff(score) {
			st.LowImpact++
			continue
		}

		out = append(out, Article{
			Headline: headline,
			Link:     link,
			Firm:     src.Name,
			Region:   src.Region,
			Topic:    p.classifier.Classify(headline, e.Summary),
			Impact:   score,
			Date:     p.resolveDate(e.PublishedAt),
		})
		st.Kept++
	}

	return out, st
}

func (p *Processor) resolveDate(ts *time.Time) time.Time {
	t := p.now()
	if ts != nil {
		t = *ts
	}
	return truncateDay(t.In(p.loc))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// CleanTitle 去掉聚合源追加的 " - 发布方" 后缀，只处理最后一个
func CleanTitle(title string) string {
	t := strings.TrimSpace(title)
	if i := strings.LastIndex(t, " - "); i > 0 {
		if head := strings.TrimSpace(t[:i]); head != "" {
			return head
		}
	}
	return t
}

// HashKey 对一组字符串生成稳定摘要，用作缓存键
func HashKey(parts ...string) string {
	return hashURL(strings.Join(parts, "\n"))
}

func hashURL(url string) string {
	h := sha1.New()
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}

package processor

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseScore    = 40
	DefaultNoisePenalty = 60
	DefaultMinImpact    = 20
	// 高于该分数的条目在看板上标记为 New
	NewStatusThreshold = 82
)

// WeightedTerm 命中一次即加权，重复出现不累加
type WeightedTerm struct {
	Term   string `yaml:"term"`
	Weight int    `yaml:"weight"`
}

// TopicRule 主题及其关键词，Rules.Topics 中的顺序即匹配优先级
type TopicRule struct {
	Topic    Topic    `yaml:"topic"`
	Keywords []string `yaml:"keywords"`
}

// Rules 打分、过滤、分类共用的关键词表；启动时加载一次，之后只读
type Rules struct {
	BaseScore    int            `yaml:"base_score"`
	NoisePenalty int            `yaml:"noise_penalty"`
	MinImpact    int            `yaml:"min_impact"`
	Weights      []WeightedTerm `yaml:"weights"`
	NoiseTerms   []string       `yaml:"noise_terms"`
	Blacklist    []string       `yaml:"blacklist"`
	Topics       []TopicRule    `yaml:"topics"`
}

// DefaultRules 内置规则，每次调用返回新的副本
func DefaultRules() Rules {
	return Rules{
		BaseScore:    DefaultBaseScore,
		NoisePenalty: DefaultNoisePenalty,
		MinImpact:    DefaultMinImpact,
		Weights: []WeightedTerm{
			{"outlook", 25},
			{"forecast", 25},
			{"2026", 30},
			{"2025", 20},
			{"global", 15},
			{"strategic", 20},
			{"report", 20},
			{"white paper", 30},
			{"perspective", 10},
			{"transformation", 15},
			{"executive", 15},
		},
		NoiseTerms: []string{
			"career", "hiring", "webinar", "register", "podcast", "account",
			"sign in", "login", "meaning", "definition", "synonym", "pronunciation",
		},
		Blacklist: []string{
			"account.microsoft.com", "login.", "dictionary.", "cambridge.org",
			"merriam-webster.com", "wikipedia.org", "thefreedictionary.com",
			"collinsdictionary.com", "britannica.com", "wiktionary.org",
			"microsoft.com/en-us/account",
		},
		Topics: []TopicRule{
			{TopicAITech, []string{"ai", "generative ai", "llm", "automation", "digital", "technology", "quantum", "software", "data", "robotics"}},
			{TopicMacro, []string{"gdp", "inflation", "interest rates", "macro", "economy", "growth", "recession", "markets", "fiscal"}},
			{TopicESG, []string{"esg", "climate", "carbon", "net zero", "sustainability", "energy", "green", "renewables", "decarbonization"}},
			{TopicHealthcare, []string{"biopharma", "clinical", "health", "patient", "medical", "biotech", "pharmaceutical", "life sciences"}},
			{TopicStrategyOps, []string{"transformation", "supply chain", "operations", "strategic", "leadership", "ma", "merger", "procurement"}},
			{TopicGeopolitics, []string{"global", "trade", "policy", "government", "regulation", "international", "sanctions", "compliance"}},
		},
	}
}

// LoadRules 读取 YAML 规则文件；文件中缺省的字段沿用内置默认值
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) (Rules, error) {
	r := DefaultRules()
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, fmt.Errorf("parse rules: %w", err)
	}
	r = r.normalized()
	if err := r.Validate(); err != nil {
		return Rules{}, err
	}
	return r, nil
}

// Validate 拒绝会破坏分数区间或分类完备性的规则
func (r Rules) Validate() error {
	var errs []error
	if r.BaseScore < 0 || r.BaseScore > 100 {
		errs = append(errs, fmt.Errorf("base_score %d out of [0,100]", r.BaseScore))
	}
	if r.NoisePenalty < 0 {
		errs = append(errs, fmt.Errorf("noise_penalty must be >= 0, got %d", r.NoisePenalty))
	}
	if r.MinImpact < 0 || r.MinImpact > 100 {
		errs = append(errs, fmt.Errorf("min_impact %d out of [0,100]", r.MinImpact))
	}
	for _, w := range r.Weights {
		if w.Term == "" {
			errs = append(errs, errors.New("weight with empty term"))
		}
		if w.Weight < 0 {
			errs = append(errs, fmt.Errorf("weight for %q must be >= 0", w.Term))
		}
	}
	for _, t := range r.Topics {
		if t.Topic == "" || t.Topic == TopicOthers {
			errs = append(errs, fmt.Errorf("invalid topic name %q", t.Topic))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}
	return nil
}

// normalized 关键词统一小写、去空白，匹配时不再重复处理
func (r Rules) normalized() Rules {
	out := r
	out.Weights = make([]WeightedTerm, 0, len(r.Weights))
	for _, w := range r.Weights {
		out.Weights = append(out.Weights, WeightedTerm{Term: lowerTrim(w.Term), Weight: w.Weight})
	}
	out.NoiseTerms = lowerAll(r.NoiseTerms)
	out.Blacklist = lowerAll(r.Blacklist)
	out.Topics = make([]TopicRule, 0, len(r.Topics))
	for _, t := range r.Topics {
		out.Topics = append(out.Topics, TopicRule{Topic: Topic(strings.TrimSpace(string(t.Topic))), Keywords: lowerAll(t.Keywords)})
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if v := lowerTrim(s); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

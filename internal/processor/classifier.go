package processor

import "strings"

type Topic string

const (
	TopicAITech      Topic = "AI & Tech"
	TopicMacro       Topic = "Macro & Economy"
	TopicESG         Topic = "ESG & Sustainability"
	TopicHealthcare  Topic = "Healthcare"
	TopicStrategyOps Topic = "Strategy & Ops"
	TopicGeopolitics Topic = "Geopolitics & Policy"
	TopicOthers      Topic = "Others"
)

var knownTopics = map[Topic]struct{}{
	TopicAITech:      {},
	TopicMacro:       {},
	TopicESG:         {},
	TopicHealthcare:  {},
	TopicStrategyOps: {},
	TopicGeopolitics: {},
	TopicOthers:      {},
}

// ValidTopic 仅接受内置主题（含 Others）
func ValidTopic(t Topic) bool {
	_, ok := knownTopics[t]
	return ok
}

// HasTopic 在内置主题之外还接受规则文件里自定义的主题
func (r Rules) HasTopic(t Topic) bool {
	if ValidTopic(t) {
		return true
	}
	for _, tr := range r.normalized().Topics {
		if tr.Topic == t {
			return true
		}
	}
	return false
}

// Classifier 按规则顺序返回第一个命中的主题，未命中则为 Others
type Classifier struct {
	topics []TopicRule
}

func NewClassifier(r Rules) *Classifier {
	return &Classifier{topics: r.normalized().Topics}
}

func (c *Classifier) Classify(title, summary string) Topic {
	text := matchText(title, summary)
	for _, t := range c.topics {
		for _, kw := range t.Keywords {
			if strings.Contains(text, kw) {
				return t.Topic
			}
		}
	}
	return TopicOthers
}

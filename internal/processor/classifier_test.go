package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(DefaultRules())
	cases := []struct {
		title, summary string
		want           Topic
	}{
		{"AI Outlook 2026: Strategic Report", "", TopicAITech},
		{"Inflation and GDP", "", TopicMacro},
		{"Net zero pathways", "", TopicESG},
		{"Clinical trials", "", TopicHealthcare},
		{"Procurement review", "", TopicStrategyOps},
		{"Sanctions update", "", TopicGeopolitics},
		{"Quarterly update", "", TopicOthers},
		{"", "", TopicOthers},
		// 同时命中多个主题时按顺序取第一个
		{"Digital health", "", TopicAITech},
		{"Carbon policy", "", TopicESG},
		{"Nothing here", "new SOFTWARE release", TopicAITech},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, c.Classify(tc.title, tc.summary), "%q / %q", tc.title, tc.summary)
	}
}

func TestClassifyIsTotal(t *testing.T) {
	c := NewClassifier(DefaultRules())
	valid := map[Topic]bool{TopicOthers: true}
	for _, tr := range DefaultRules().Topics {
		valid[tr.Topic] = true
	}
	for _, s := range []string{"", "x", "zzz", "ESG", "Trade", "123", "Ünïcödé"} {
		assert.True(t, valid[c.Classify(s, s)], s)
	}
}

func TestValidTopic(t *testing.T) {
	for _, tp := range []Topic{TopicAITech, TopicMacro, TopicESG, TopicHealthcare, TopicStrategyOps, TopicGeopolitics, TopicOthers} {
		assert.True(t, ValidTopic(tp), tp)
	}
	assert.False(t, ValidTopic("Cooking"))
	assert.False(t, ValidTopic(""))
	assert.False(t, ValidTopic("ai & tech"))

	r := DefaultRules()
	r.Topics = append(r.Topics, TopicRule{Topic: " Energy ", Keywords: []string{"oil"}})
	assert.True(t, r.HasTopic("Energy"))
	assert.True(t, r.HasTopic(TopicOthers))
	assert.False(t, r.HasTopic("Cooking"))
}

package processor

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRankDedupeKeepsHighestImpact(t *testing.T) {
	in := []Article{
		{Link: "https://x.test/dup", Impact: 70, Date: day(2024, 1, 1), Firm: "A"},
		{Link: "https://x.test/dup", Impact: 90, Date: day(2023, 1, 1), Firm: "B"},
	}
	got := Rank(in)
	want := []Article{{Link: "https://x.test/dup", Impact: 90, Date: day(2023, 1, 1), Firm: "B"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Rank mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, in, 2, "input must not be modified")
}

func TestRankOrderingInvariant(t *testing.T) {
	in := []Article{
		{Link: "1", Impact: 50, Date: day(2026, 1, 1)},
		{Link: "2", Impact: 80, Date: day(2025, 6, 1)},
		{Link: "3", Impact: 50, Date: day(2026, 2, 1)},
		{Link: "4", Impact: 80, Date: day(2026, 6, 1)},
		{Link: "2", Impact: 40, Date: day(2026, 9, 1)},
		{Link: "5", Impact: 50, Date: day(2026, 2, 1)},
	}
	got := Rank(in)

	links := make([]string, 0, len(got))
	seen := map[string]bool{}
	for i, a := range got {
		links = append(links, a.Link)
		assert.False(t, seen[a.Link], "duplicate link %s", a.Link)
		seen[a.Link] = true
		if i == 0 {
			continue
		}
		prev := got[i-1]
		ok := prev.Impact > a.Impact || (prev.Impact == a.Impact && !prev.Date.Before(a.Date))
		assert.True(t, ok, "pair %d/%d out of order", i-1, i)
	}
	// 同分同日保持合并顺序
	assert.Equal(t, []string{"4", "2", "3", "5", "1"}, links)
}

func TestRankEmpty(t *testing.T) {
	got := Rank(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFilterRegionsTopics(t *testing.T) {
	in := []Article{
		{Link: "1", Region: "EU", Topic: TopicESG},
		{Link: "2", Region: "US", Topic: TopicAITech},
		{Link: "3", Region: "EU", Topic: TopicAITech},
	}

	assert.Len(t, Filter(in, "", ""), 3)
	assert.Len(t, Filter(in, "All", "all"), 3)
	assert.Len(t, Filter(in, "EU", ""), 2)
	got := Filter(in, "EU", string(TopicAITech))
	if assert.Len(t, got, 1) {
		assert.Equal(t, "3", got[0].Link)
	}

	assert.Equal(t, []string{"EU", "US"}, Regions(in))
	assert.Equal(t, []string{string(TopicAITech), string(TopicESG)}, Topics(in))
}

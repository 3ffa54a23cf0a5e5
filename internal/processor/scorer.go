package processor

import "strings"

// Scorer 基于关键词权重的静态打分，结果落在 [0,100]
type Scorer struct {
	base    int
	penalty int
	weights []WeightedTerm
	noise   []string
}

func NewScorer(r Rules) *Scorer {
	n := r.normalized()
	return &Scorer{base: n.BaseScore, penalty: n.NoisePenalty, weights: n.Weights, noise: n.NoiseTerms}
}

func (s *Scorer) Score(title, summary string) int {
	text := matchText(title, summary)

	score := s.base
	for _, w := range s.weights {
		if strings.Contains(text, w.Term) {
			score += w.Weight
		}
	}
	for _, term := range s.noise {
		if strings.Contains(text, term) {
			score -= s.penalty
		}
	}
	return clamp(score, 0, 100)
}

func matchText(title, summary string) string {
	return strings.ToLower(title + " " + summary)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

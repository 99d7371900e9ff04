package skills

import (
	"math"
	"strings"
	"unicode"
)

// Scorer rates how well a skill matches a task description. Scoring
// must be deterministic: the same query and skill always yield the
// same score. The comparison heuristic is pluggable behind this
// interface; two implementations ship below.
type Scorer interface {
	Name() string
	Score(query string, sk Skill) float64
}

// DefaultAutoThreshold is the minimum score for automatic activation.
const DefaultAutoThreshold = 0.65

// Matcher selects the best-matching skill for a task description.
type Matcher struct {
	scorer    Scorer
	threshold float64
}

// NewMatcher creates a matcher. A nil scorer falls back to keyword
// overlap; a non-positive threshold falls back to the default.
func NewMatcher(scorer Scorer, threshold float64) *Matcher {
	if scorer == nil {
		scorer = OverlapScorer{}
	}
	if threshold <= 0 {
		threshold = DefaultAutoThreshold
	}
	return &Matcher{scorer: scorer, threshold: threshold}
}

// Match scores every candidate and returns the top scorer if it
// clears the activation threshold. Ties are broken by registration
// order, so matching is deterministic across runs.
func (m *Matcher) Match(query string, candidates []Skill) (Skill, float64, bool) {
	var (
		best      Skill
		bestScore float64
		found     bool
	)
	for _, sk := range candidates {
		score := m.scorer.Score(query, sk)
		if score <= 0 {
			continue
		}
		if !found || score > bestScore || (score == bestScore && sk.Order < best.Order) {
			best, bestScore, found = sk, score, true
		}
	}
	if !found || bestScore < m.threshold {
		return Skill{}, bestScore, false
	}
	return best, bestScore, true
}

// --- keyword overlap scorer ---

// OverlapScorer scores by the fraction of query tokens that appear in
// the skill's name, description, or tags.
type OverlapScorer struct{}

func (OverlapScorer) Name() string { return "overlap" }

func (OverlapScorer) Score(query string, sk Skill) float64 {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return 0
	}
	haystack := make(map[string]bool)
	for _, t := range tokenize(sk.Name + " " + sk.Description + " " + strings.Join(sk.Tags, " ")) {
		haystack[t] = true
	}

	seen := make(map[string]bool)
	overlap := 0
	total := 0
	for _, t := range queryTokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		total++
		if haystack[t] {
			overlap++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(overlap) / float64(total)
}

// --- BM25 index scorer ---

// BM25Scorer is an in-memory BM25 index over a skill set. Build must
// be called before Score; scores are normalized to [0,1) with
// s/(1+s) so they are comparable against the activation threshold.
type BM25Scorer struct {
	docs  map[string][]string // skill name → tokens
	df    map[string]int      // term → number of docs containing it
	avgDL float64
	k1    float64
	b     float64
}

// NewBM25Scorer builds a BM25 index over the given skills with the
// usual parameters (k1=1.2, b=0.75).
func NewBM25Scorer(candidates []Skill) *BM25Scorer {
	s := &BM25Scorer{
		docs: make(map[string][]string, len(candidates)),
		df:   make(map[string]int),
		k1:   1.2,
		b:    0.75,
	}
	totalTokens := 0
	for _, sk := range candidates {
		tokens := tokenize(sk.Name + " " + sk.Description + " " + strings.Join(sk.Tags, " "))
		s.docs[sk.Name] = tokens
		totalTokens += len(tokens)

		seen := make(map[string]bool)
		for _, t := range tokens {
			if !seen[t] {
				s.df[t]++
				seen[t] = true
			}
		}
	}
	if len(s.docs) > 0 {
		s.avgDL = float64(totalTokens) / float64(len(s.docs))
	}
	return s
}

func (s *BM25Scorer) Name() string { return "bm25" }

func (s *BM25Scorer) Score(query string, sk Skill) float64 {
	tokens, ok := s.docs[sk.Name]
	if !ok || s.avgDL == 0 {
		return 0
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return 0
	}

	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	n := float64(len(s.docs))
	dl := float64(len(tokens))

	score := 0.0
	for _, qt := range queryTokens {
		termFreq := float64(tf[qt])
		if termFreq == 0 {
			continue
		}
		dfTerm := float64(s.df[qt])
		idf := math.Log((n-dfTerm+0.5)/(dfTerm+0.5) + 1)
		score += idf * termFreq * (s.k1 + 1) / (termFreq + s.k1*(1-s.b+s.b*dl/s.avgDL))
	}
	return score / (1 + score)
}

// tokenize splits text into lowercase alphanumeric tokens.
// Single-character tokens are kept so short queries score the same as
// long ones.
func tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return strings.Fields(cleaned)
}

package query

import "github.com/sahilm/fuzzy"

// DefaultFuzzyMinScore is the lowest fuzzy score still counted as a match.
const DefaultFuzzyMinScore = -20

type wordSource []string

func (w wordSource) String(i int) string { return w[i] }
func (w wordSource) Len() int            { return len(w) }

// FuzzyScore returns the best subsequence match score of term over words.
// Higher is better. It reports false when no word contains the term as a
// subsequence.
func FuzzyScore(term string, words []string) (int64, bool) {
	if term == "" || len(words) == 0 {
		return 0, false
	}
	matches := fuzzy.FindFrom(term, wordSource(words))
	if len(matches) == 0 {
		return 0, false
	}
	// matches come back best first
	return int64(matches[0].Score), true
}

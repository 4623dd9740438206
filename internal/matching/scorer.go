package matching

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Scorer rates how alike two normalized strings are, from 0 to 1, and splits
// them into tokens.
type Scorer interface {
	Score(a, b string) float64
	Tokens(s string) []string
}

// SequenceScorer uses the Ratcliff/Obershelp ratio over characters.
type SequenceScorer struct{}

func (SequenceScorer) Score(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	return difflib.NewMatcher(chars(a), chars(b)).Ratio()
}

func (SequenceScorer) Tokens(s string) []string {
	return strings.Fields(s)
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

package matching

import (
	"sort"
	"strings"
	"unicode/utf8"

	"cafe_inventory/internal/models"
)

// Stage records which matcher stage produced a match.
type Stage string

const (
	StageAlias        Stage = "alias"
	StageExact        Stage = "exact"
	StageExactCombo   Stage = "exact_combo"
	StagePartial      Stage = "partial"
	StageFuzzy        Stage = "fuzzy"
	StageShellVariant Stage = "shell_variant"
)

// Reason explains an unmatched result.
type Reason string

const (
	ReasonNoCandidate   Reason = "no_candidate"
	ReasonAmbiguousTie  Reason = "ambiguous_tie"
	ReasonTokenMismatch Reason = "token_mismatch"
	ReasonShellItem     Reason = "shell_item"
)

const DefaultFuzzyThreshold = 0.7

// Candidate is a catalog entity the matcher can resolve to.
type Candidate struct {
	Ref  models.EntityRef
	Name string
}

// Alias maps a raw label straight onto an entity.
type Alias struct {
	Label  string
	Target models.EntityRef
	Name   string
}

// Rules is the configurable part of matching.
type Rules struct {
	ShellItems     []string // generic menu shells, matched as prefixes of the label
	StopWords      []string
	FuzzyThreshold float64
	// PartialKinds restricts the composed-line stage; empty means every kind.
	PartialKinds []models.EntityKind
}

// Result is either matched (Matched true, Ref set) or unmatched (Reason set).
type Result struct {
	Matched bool             `json:"matched"`
	Ref     models.EntityRef `json:"ref"`
	Name    string           `json:"name,omitempty"`
	Stage   Stage            `json:"stage,omitempty"`
	Score   float64          `json:"score,omitempty"`
	Reason  Reason           `json:"reason,omitempty"`
	Detail  string           `json:"detail,omitempty"`
	Source  models.Source    `json:"source,omitempty"`
}

func matched(c *indexed, stage Stage, score float64) Result {
	return Result{Matched: true, Ref: c.Ref, Name: c.Name, Stage: stage, Score: score}
}

func unmatched(reason Reason, detail string) Result {
	return Result{Reason: reason, Detail: detail}
}

type indexed struct {
	Candidate
	norm   string
	tokens []string
	length int
}

// Matcher resolves raw sold-item labels to catalog entities. It is read-only
// after construction and safe for concurrent use.
type Matcher struct {
	rules      Rules
	scorer     Scorer
	candidates []*indexed
	byNorm     map[string][]*indexed
	aliases    map[string]Alias
	shells     []string
	stop       map[string]bool
	partial    map[models.EntityKind]bool
}

// New indexes candidates and aliases. A nil scorer means SequenceScorer.
func New(candidates []Candidate, aliases []Alias, rules Rules, scorer Scorer) *Matcher {
	if scorer == nil {
		scorer = SequenceScorer{}
	}
	if rules.FuzzyThreshold <= 0 {
		rules.FuzzyThreshold = DefaultFuzzyThreshold
	}
	m := &Matcher{
		rules:   rules,
		scorer:  scorer,
		byNorm:  make(map[string][]*indexed),
		aliases: make(map[string]Alias),
		stop:    make(map[string]bool),
		partial: make(map[models.EntityKind]bool),
	}
	for _, w := range rules.StopWords {
		m.stop[Normalize(w)] = true
	}
	for _, k := range rules.PartialKinds {
		m.partial[k] = true
	}
	for _, s := range rules.ShellItems {
		if n := Normalize(s); n != "" {
			m.shells = append(m.shells, n)
		}
	}
	for _, c := range candidates {
		n := Normalize(c.Name)
		if n == "" {
			continue
		}
		ic := &indexed{Candidate: c, norm: n, tokens: scorer.Tokens(n), length: utf8.RuneCountInString(n)}
		m.candidates = append(m.candidates, ic)
		m.byNorm[n] = append(m.byNorm[n], ic)
	}
	for _, a := range aliases {
		if n := Normalize(a.Label); n != "" {
			m.aliases[n] = a
		}
	}
	return m
}

// Match runs the stages in order: shell guard, alias/exact, composed line,
// token-aware fuzzy. The first stage with an answer wins.
func (m *Matcher) Match(label, pricePoint string, source models.Source) Result {
	res := m.match(label, pricePoint)
	res.Source = source
	return res
}

func (m *Matcher) match(label, pricePoint string) Result {
	input := Normalize(label)
	if input == "" {
		return unmatched(ReasonNoCandidate, "empty label")
	}
	pp := Normalize(pricePoint)

	if shell := m.shellFor(input); shell != "" {
		if pp != "" {
			if res, ok := m.variant(pp); ok {
				return res
			}
		}
		return unmatched(ReasonShellItem, shell)
	}

	if a, ok := m.aliases[input]; ok {
		return Result{Matched: true, Ref: a.Target, Name: a.Name, Stage: StageAlias, Score: 1}
	}
	if res, ok := m.exact(input, StageExact); ok {
		return res
	}
	if pp != "" {
		if res, ok := m.exact(input+" "+pp, StageExactCombo); ok {
			return res
		}
		if res, ok := m.exact(pp+" "+input, StageExactCombo); ok {
			return res
		}
	}

	inputTokens := m.scorer.Tokens(input)
	if res, ok := m.composed(inputTokens); ok {
		return res
	}
	return m.fuzzy(input, inputTokens)
}

func (m *Matcher) shellFor(input string) string {
	for _, s := range m.shells {
		if input == s || strings.HasPrefix(input, s+" ") {
			return s
		}
	}
	return ""
}

// variant resolves a shell item through its price point: exact name first,
// then the shortest product name contained in the price point.
func (m *Matcher) variant(pp string) (Result, bool) {
	if res, ok := m.exact(pp, StageShellVariant); ok {
		return res, true
	}
	res, ok := m.composed(m.scorer.Tokens(pp))
	if ok && res.Matched {
		res.Stage = StageShellVariant
		return res, true
	}
	return Result{}, false
}

var kindPrecedence = map[models.EntityKind]int{
	models.KindProduct:    0,
	models.KindModifier:   1,
	models.KindIngredient: 2,
}

func (m *Matcher) exact(key string, stage Stage) (Result, bool) {
	hits := m.byNorm[key]
	switch len(hits) {
	case 0:
		return Result{}, false
	case 1:
		return matched(hits[0], stage, 1), true
	}
	best := append([]*indexed(nil), hits...)
	sort.SliceStable(best, func(i, j int) bool {
		return kindPrecedence[best[i].Ref.Kind] < kindPrecedence[best[j].Ref.Kind]
	})
	if best[0].Ref.Kind == best[1].Ref.Kind {
		return unmatched(ReasonAmbiguousTie, names(best[:2])), true
	}
	return matched(best[0], stage, 1), true
}

// composed anchors on the shortest candidate whose tokens all occur in the line.
func (m *Matcher) composed(inputTokens []string) (Result, bool) {
	have := tokenSet(inputTokens)
	var hits []*indexed
	for _, c := range m.candidates {
		if len(m.partial) > 0 && !m.partial[c.Ref.Kind] {
			continue
		}
		sig := m.significant(c.tokens)
		if len(sig) == 0 {
			continue
		}
		all := true
		for _, t := range sig {
			if !present(t, have, inputTokens) {
				all = false
				break
			}
		}
		if all {
			hits = append(hits, c)
		}
	}
	if len(hits) == 0 {
		return Result{}, false
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].length < hits[j].length })
	if len(hits) > 1 && hits[0].length == hits[1].length && hits[0].Ref != hits[1].Ref {
		return unmatched(ReasonAmbiguousTie, names(tied(hits))), true
	}
	return matched(hits[0], StagePartial, 1), true
}

func (m *Matcher) fuzzy(input string, inputTokens []string) Result {
	var best *indexed
	bestScore := 0.0
	for _, c := range m.candidates {
		s := m.scorer.Score(input, c.norm)
		if s < m.rules.FuzzyThreshold {
			continue
		}
		if best == nil || s > bestScore || (s == bestScore && c.norm < best.norm) {
			best, bestScore = c, s
		}
	}
	if best == nil {
		return unmatched(ReasonNoCandidate, "")
	}
	if novel := m.novelTokens(best.tokens, inputTokens); len(novel) > 0 {
		res := unmatched(ReasonTokenMismatch, best.Name+": "+strings.Join(novel, ","))
		res.Score = bestScore
		return res
	}
	return matched(best, StageFuzzy, bestScore)
}

// novelTokens lists significant candidate tokens that the input does not carry,
// allowing plurals and split compounds ("oat milk" for "oatmilk" and the reverse).
func (m *Matcher) novelTokens(candidateTokens, inputTokens []string) []string {
	have := tokenSet(inputTokens)
	var novel []string
	for i := 0; i < len(candidateTokens); i++ {
		t := candidateTokens[i]
		if m.stop[t] || present(t, have, inputTokens) {
			continue
		}
		if i+1 < len(candidateTokens) && have[t+candidateTokens[i+1]] {
			i++
			continue
		}
		novel = append(novel, t)
	}
	return novel
}

func (m *Matcher) significant(tokens []string) []string {
	out := tokens[:0:0]
	for _, t := range tokens {
		if !m.stop[t] {
			out = append(out, t)
		}
	}
	return out
}

// present checks a token against the input allowing a trailing plural "s" and
// two adjacent input tokens written as one word.
func present(t string, have map[string]bool, inputTokens []string) bool {
	if have[t] || have[t+"s"] || (strings.HasSuffix(t, "s") && have[strings.TrimSuffix(t, "s")]) {
		return true
	}
	for i := 0; i+1 < len(inputTokens); i++ {
		if inputTokens[i]+inputTokens[i+1] == t {
			return true
		}
	}
	return false
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

func tied(sorted []*indexed) []*indexed {
	n := 1
	for n < len(sorted) && sorted[n].length == sorted[0].length {
		n++
	}
	return sorted[:n]
}

func names(cs []*indexed) string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return strings.Join(out, " / ")
}

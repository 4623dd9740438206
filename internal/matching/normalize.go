package matching

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// trailing "$4.50", "- 4.50", "(€3)" and the like
var priceSuffix = regexp.MustCompile(`\s*[-–—(@]*\s*(?:[$€£]\s*\d+(?:[.,]\d{1,2})?|\d+[.,]\d{2})\s*\)?\s*$`)

var apostrophes = strings.NewReplacer("'", "", "’", "", "‘", "", "`", "")

// Normalize produces the key shared by the matcher and the unmapped-item
// ledger: accents folded, lowercase, price suffix removed, punctuation turned
// into spaces, whitespace collapsed.
func Normalize(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(strings.TrimSpace(folded))
	folded = priceSuffix.ReplaceAllString(folded, "")
	folded = apostrophes.Replace(folded)

	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}

// ComboKey canonicalises a set of modifier labels: normalized, de-duplicated,
// sorted and joined with "|". An empty set yields "".
func ComboKey(labels []string) string {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		if n := Normalize(l); n != "" {
			set[n] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, "|")
}

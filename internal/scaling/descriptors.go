package scaling

import (
	"sort"
	"strings"
	"unicode"
)

// Keywords drives temperature and size detection on sold-item labels.
type Keywords struct {
	Cold  []string
	Hot   []string
	Sizes map[string]string // keyword -> size label
}

// Descriptors are the temperature and size read off a sold item.
type Descriptors struct {
	Temperature Temperature
	Size        string
	SizeFound   bool
}

// Infer reads temperature and size from the given texts (label, price point, ...).
// fallback is the product's own temperature; an empty fallback means hot.
func Infer(kw Keywords, table *SizeTable, fallback Temperature, texts ...string) Descriptors {
	haystack := " " + foldWords(strings.Join(texts, " ")) + " "

	d := Descriptors{Temperature: fallback}
	if d.Temperature == "" {
		d.Temperature = Hot
	}
	switch {
	case containsAny(haystack, kw.Cold):
		d.Temperature = Cold
	case containsAny(haystack, kw.Hot):
		d.Temperature = Hot
	}

	// longest keyword first so "extra large" wins over "large"
	keys := make([]string, 0, len(kw.Sizes))
	for k := range kw.Sizes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) == len(keys[j]) {
			return keys[i] < keys[j]
		}
		return len(keys[i]) > len(keys[j])
	})
	for _, k := range keys {
		if !strings.Contains(haystack, " "+foldWords(k)+" ") {
			continue
		}
		label := strings.ToLower(kw.Sizes[k])
		if _, err := table.Ratio(d.Temperature, label); err == nil {
			d.Size = label
			d.SizeFound = true
			break
		}
	}
	if !d.SizeFound {
		d.Size = table.DefaultSize(d.Temperature)
	}
	return d
}

func containsAny(haystack string, words []string) bool {
	for _, w := range words {
		if f := foldWords(w); f != "" && strings.Contains(haystack, " "+f+" ") {
			return true
		}
	}
	return false
}

func foldWords(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

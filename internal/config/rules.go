package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"cafe_inventory/internal/matching"
	"cafe_inventory/internal/models"
	"cafe_inventory/internal/scaling"

	"gopkg.in/yaml.v2"
)

//go:embed rules.yaml
var defaultRules []byte

// Rules is the matching and sizing rule file.
type Rules struct {
	ShellItems     []string                      `yaml:"shell_items"`
	StopWords      []string                      `yaml:"stop_words"`
	FuzzyThreshold float64                       `yaml:"fuzzy_threshold"`
	Sizes          map[string]map[string]float64 `yaml:"sizes"`
	DefaultSizes   map[string]string             `yaml:"default_sizes"`
	RecipeBase     SizeRule                      `yaml:"recipe_base"`
	ColdKeywords   []string                      `yaml:"cold_keywords"`
	HotKeywords    []string                      `yaml:"hot_keywords"`
	SizeKeywords   map[string]string             `yaml:"size_keywords"`
	Cups           map[string]map[string]string  `yaml:"cups"`
}

// SizeRule names one size of one temperature.
type SizeRule struct {
	Temperature string `yaml:"temperature"`
	Size        string `yaml:"size"`
}

// LoadRules reads a rules file; an empty path returns the built-in rules.
func LoadRules(path string) (*Rules, error) {
	data := defaultRules
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("reading rules file %s: %w", path, err)
		}
	}
	return ParseRules(data)
}

func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.UnmarshalStrict(data, &r); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}
	if r.FuzzyThreshold < 0 || r.FuzzyThreshold > 1 {
		return nil, fmt.Errorf("fuzzy_threshold must be within [0,1], got %v", r.FuzzyThreshold)
	}
	if len(r.Sizes) == 0 {
		return nil, errors.New("rules define no sizes")
	}
	if _, err := r.SizeTable(); err != nil {
		return nil, err
	}
	return &r, nil
}

// LineRules configures the matcher used for sold-item labels. Composed lines
// anchor on products only.
func (r *Rules) LineRules() matching.Rules {
	return matching.Rules{
		ShellItems:     r.ShellItems,
		StopWords:      r.StopWords,
		FuzzyThreshold: r.FuzzyThreshold,
		PartialKinds:   []models.EntityKind{models.KindProduct},
	}
}

// ModifierRules configures the matcher used for modifier labels.
func (r *Rules) ModifierRules() matching.Rules {
	return matching.Rules{
		StopWords:      r.StopWords,
		FuzzyThreshold: r.FuzzyThreshold,
	}
}

func (r *Rules) SizeTable() (*scaling.SizeTable, error) {
	base := scaling.SizeRef{Temperature: scaling.Temperature(r.RecipeBase.Temperature), Size: r.RecipeBase.Size}
	return scaling.NewSizeTable(r.Sizes, r.DefaultSizes, base)
}

func (r *Rules) Keywords() scaling.Keywords {
	return scaling.Keywords{Cold: r.ColdKeywords, Hot: r.HotKeywords, Sizes: r.SizeKeywords}
}

// CupFor names the cup ingredient for a drink, if one is configured.
func (r *Rules) CupFor(temp scaling.Temperature, size string) (string, bool) {
	name, ok := r.Cups[string(temp)][size]
	return name, ok && name != ""
}

package scaling

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Temperature of a drink; size ratios differ between hot and cold cups.
type Temperature string

const (
	Hot  Temperature = "hot"
	Cold Temperature = "cold"
)

var ErrUnknownSize = errors.New("unknown size label")

// SizeRef names one size of one temperature's table.
type SizeRef struct {
	Temperature Temperature
	Size        string
}

// DefaultRecipeBase is the size recipes are written for unless configured otherwise.
var DefaultRecipeBase = SizeRef{Temperature: Hot, Size: "small"}

// SizeTable holds the configured ratio of every size label per temperature,
// the size assumed when a sold item names none, and the size recipes are
// written for. Every ratio is relative to that recipe base.
type SizeTable struct {
	ratios     map[Temperature]map[string]decimal.Decimal
	defaults   map[Temperature]string
	recipeBase SizeRef
}

// NewSizeTable builds a table from plain ratio maps. Labels are lowercased.
// A zero recipeBase means DefaultRecipeBase.
func NewSizeTable(ratios map[string]map[string]float64, defaults map[string]string, recipeBase SizeRef) (*SizeTable, error) {
	t := &SizeTable{
		ratios:   make(map[Temperature]map[string]decimal.Decimal, len(ratios)),
		defaults: make(map[Temperature]string, len(defaults)),
	}
	for temp, sizes := range ratios {
		tt := Temperature(strings.ToLower(temp))
		t.ratios[tt] = make(map[string]decimal.Decimal, len(sizes))
		for label, ratio := range sizes {
			r := decimal.NewFromFloat(ratio)
			if !r.IsPositive() {
				return nil, fmt.Errorf("%w: size %s/%s", ErrInvalidRatio, temp, label)
			}
			t.ratios[tt][strings.ToLower(label)] = r
		}
	}
	for temp, label := range defaults {
		tt := Temperature(strings.ToLower(temp))
		label = strings.ToLower(label)
		if _, ok := t.ratios[tt][label]; !ok {
			return nil, fmt.Errorf("%w: default size %s for %s", ErrUnknownSize, label, temp)
		}
		t.defaults[tt] = label
	}
	if recipeBase == (SizeRef{}) {
		recipeBase = DefaultRecipeBase
	}
	recipeBase = SizeRef{Temperature: Temperature(strings.ToLower(string(recipeBase.Temperature))), Size: strings.ToLower(recipeBase.Size)}
	if _, err := t.Ratio(recipeBase.Temperature, recipeBase.Size); err != nil {
		return nil, fmt.Errorf("recipe base: %w", err)
	}
	t.recipeBase = recipeBase
	return t, nil
}

// Ratio returns the configured ratio of a size label.
func (t *SizeTable) Ratio(temp Temperature, label string) (decimal.Decimal, error) {
	r, ok := t.ratios[temp][strings.ToLower(label)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s (%s)", ErrUnknownSize, label, temp)
	}
	return r, nil
}

// DefaultSize is the size assumed for a sold item that names none.
func (t *SizeTable) DefaultSize(temp Temperature) string {
	return t.defaults[temp]
}

// RecipeBase is the size recipe quantities are written for.
func (t *SizeTable) RecipeBase() SizeRef {
	return t.recipeBase
}

// Between is to_ratio / from_ratio; the two sizes may belong to different
// temperatures, so an iced small scales a hot-small recipe by the cold ratio.
func (t *SizeTable) Between(from, to SizeRef) (decimal.Decimal, error) {
	fromRatio, err := t.Ratio(from.Temperature, from.Size)
	if err != nil {
		return decimal.Zero, err
	}
	toRatio, err := t.Ratio(to.Temperature, to.Size)
	if err != nil {
		return decimal.Zero, err
	}
	return toRatio.Div(fromRatio), nil
}

// Factor is target_ratio / base_ratio for two sizes of one temperature.
func (t *SizeTable) Factor(temp Temperature, baseLabel, targetLabel string) (decimal.Decimal, error) {
	return t.Between(SizeRef{temp, baseLabel}, SizeRef{temp, targetLabel})
}

// ScaleQuantity computes base × (targetRatio / baseRatio) without rounding.
func ScaleQuantity(base, baseRatio, targetRatio decimal.Decimal) (decimal.Decimal, error) {
	if !baseRatio.IsPositive() || !targetRatio.IsPositive() {
		return decimal.Zero, ErrInvalidRatio
	}
	return base.Mul(targetRatio).Div(baseRatio), nil
}

// Scale looks the ratios up in the table and scales qty from baseLabel to targetLabel.
func (t *SizeTable) Scale(qty decimal.Decimal, temp Temperature, baseLabel, targetLabel string) (decimal.Decimal, error) {
	baseRatio, err := t.Ratio(temp, baseLabel)
	if err != nil {
		return decimal.Zero, err
	}
	targetRatio, err := t.Ratio(temp, targetLabel)
	if err != nil {
		return decimal.Zero, err
	}
	return ScaleQuantity(qty, baseRatio, targetRatio)
}

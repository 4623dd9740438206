package modifiers

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Item is one ingredient line of an effective recipe.
type Item struct {
	IngredientID int64           `json:"ingredient_id"`
	Name         string          `json:"name"`
	Type         string          `json:"type,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit"`
}

// Selector picks recipe lines by ingredient id, ingredient name or ingredient type.
// Names and types compare case-insensitively.
type Selector struct {
	IngredientIDs []int64  `json:"ingredient_ids,omitempty"`
	Names         []string `json:"by_name,omitempty"`
	Types         []string `json:"by_type,omitempty"`
}

func (s Selector) Empty() bool {
	return len(s.IngredientIDs) == 0 && len(s.Names) == 0 && len(s.Types) == 0
}

func (s Selector) Matches(it Item) bool {
	for _, id := range s.IngredientIDs {
		if it.IngredientID != 0 && it.IngredientID == id {
			return true
		}
	}
	for _, n := range s.Names {
		if strings.EqualFold(strings.TrimSpace(n), strings.TrimSpace(it.Name)) {
			return true
		}
	}
	for _, t := range s.Types {
		if it.Type != "" && strings.EqualFold(strings.TrimSpace(t), strings.TrimSpace(it.Type)) {
			return true
		}
	}
	return false
}

// Kind names a behavior variant.
type Kind string

const (
	KindAdd     Kind = "add"
	KindReplace Kind = "replace"
	KindScale   Kind = "scale"
	KindExpand  Kind = "expand"
)

// Behavior is the closed set {Add, Replace, Scale, Expand}.
type Behavior interface {
	Kind() Kind
	behavior()
}

// Add appends an ingredient line.
type Add struct {
	Item Item
}

// Replace swaps the first line matching Target for With. A zero With.Quantity
// keeps the quantity of the replaced line. When nothing matches, With is added.
type Replace struct {
	Target Selector
	With   Item
}

// Scale multiplies every line matching Target by Factor.
type Scale struct {
	Target Selector
	Factor decimal.Decimal
}

// Expand substitutes Into for the first line matching Placeholder, or appends
// Into when the placeholder is absent or unset.
type Expand struct {
	Placeholder Selector
	Into        []Item
}

func (Add) Kind() Kind     { return KindAdd }
func (Replace) Kind() Kind { return KindReplace }
func (Scale) Kind() Kind   { return KindScale }
func (Expand) Kind() Kind  { return KindExpand }

func (Add) behavior()     {}
func (Replace) behavior() {}
func (Scale) behavior()   {}
func (Expand) behavior()  {}

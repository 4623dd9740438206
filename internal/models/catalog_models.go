package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityKind identifies which catalog table an EntityRef points at.
type EntityKind string

const (
	KindProduct    EntityKind = "product"
	KindIngredient EntityKind = "ingredient"
	KindModifier   EntityKind = "modifier"
)

func (k EntityKind) Valid() bool {
	switch k {
	case KindProduct, KindIngredient, KindModifier:
		return true
	}
	return false
}

// EntityRef is a tagged reference to a Product, Ingredient or RecipeModifier.
type EntityRef struct {
	Kind EntityKind `json:"kind" binding:"required,oneof=product ingredient modifier"`
	ID   int64      `json:"id" binding:"required,gt=0"`
}

// UnitType is a measurement unit with its multiplier to the base unit of its family.
type UnitType struct {
	ID     int64           `json:"id" db:"id"`
	Name   string          `json:"name" db:"name"`
	Family string          `json:"family" db:"family"` // mass, volume, count
	ToBase decimal.Decimal `json:"to_base" db:"to_base"`
}

// RoastProfile is packaging metadata carried by coffee ingredients.
type RoastProfile struct {
	Roast     *string          `json:"roast,omitempty" db:"roast"`
	Origin    *string          `json:"origin,omitempty" db:"origin"`
	BagSizeG  *decimal.Decimal `json:"bag_size_g,omitempty" db:"bag_size_g"`
	Packaging *string          `json:"packaging,omitempty" db:"packaging"`
}

type Ingredient struct {
	ID           int64           `json:"id" db:"id"`
	Name         string          `json:"name" db:"name" binding:"required"`
	Type         string          `json:"type" db:"type"` // MILK, SYRUP, COFFEE, CUP ...
	UnitTypeID   *int64          `json:"unit_type_id,omitempty" db:"unit_type_id"`
	Unit         *UnitType       `json:"unit,omitempty"`
	CostPerUnit  decimal.Decimal `json:"cost_per_unit" db:"cost_per_unit"`
	ReorderPoint decimal.Decimal `json:"reorder_point" db:"reorder_point"`
	LeadTimeDays int             `json:"lead_time_days" db:"lead_time_days"`
	Active       bool            `json:"active" db:"active"`
	Roast        *RoastProfile   `json:"roast_profile,omitempty"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// UnitName returns the ingredient's unit or "unit" when none is set.
func (i *Ingredient) UnitName() string {
	if i.Unit == nil || i.Unit.Name == "" {
		return "unit"
	}
	return i.Unit.Name
}

type Product struct {
	ID          int64        `json:"id" db:"id"`
	Name        string       `json:"name" db:"name" binding:"required"`
	SKU         *string      `json:"sku,omitempty" db:"sku"`
	Category    *string      `json:"category,omitempty" db:"category"`
	Temperature string       `json:"temperature" db:"temperature"` // hot, cold or empty
	Active      bool         `json:"active" db:"active"`
	Recipe      []RecipeItem `json:"recipe,omitempty"`
	ModifierIDs []int64      `json:"modifier_ids,omitempty"`

	// Size the recipe quantities are written for; nil means the configured recipe base.
	BaseTemperature *string   `json:"base_temperature,omitempty" db:"base_temperature"`
	BaseSize        *string   `json:"base_size,omitempty" db:"base_size"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// RecipeItem is one ingredient line of a product's base recipe.
type RecipeItem struct {
	ID           int64           `json:"id" db:"id"`
	ProductID    int64           `json:"product_id" db:"product_id"`
	IngredientID int64           `json:"ingredient_id" db:"ingredient_id"`
	Quantity     decimal.Decimal `json:"quantity" db:"quantity"`
	Unit         string          `json:"unit" db:"unit"`
}

// Modifier behaviors as stored.
const (
	BehaviorAdd     = "add"
	BehaviorReplace = "replace"
	BehaviorScale   = "scale"
	BehaviorExpand  = "expand"
)

// TargetSelector selects recipe lines by ingredient type or ingredient name.
type TargetSelector struct {
	ByType []string `json:"by_type,omitempty"`
	ByName []string `json:"by_name,omitempty"`
}

// RecipeModifier is a sellable add-on. Behavior decides how IngredientID,
// BaseQuantity, QuantityFactor, TargetSelector and ExpandsTo are read.
type RecipeModifier struct {
	ID             int64            `json:"id" db:"id"`
	Name           string           `json:"name" db:"name" binding:"required"`
	Type           string           `json:"type" db:"type"` // MILK, FLAVOR, SYRUP, EXTRA ...
	Behavior       string           `json:"behavior" db:"behavior"`
	IngredientID   *int64           `json:"ingredient_id,omitempty" db:"ingredient_id"`
	BaseQuantity   decimal.Decimal  `json:"base_quantity" db:"base_quantity"`
	Unit           string           `json:"unit" db:"unit"`
	QuantityFactor decimal.Decimal  `json:"quantity_factor" db:"quantity_factor"`
	TargetSelector TargetSelector   `json:"target_selector" db:"target_selector"`
	CostPerUnit    *decimal.Decimal `json:"cost_per_unit,omitempty" db:"cost_per_unit"`
	PricePerUnit   *decimal.Decimal `json:"price_per_unit,omitempty" db:"price_per_unit"`
	ExpandsTo      []int64          `json:"expands_to,omitempty"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}

// RecipeModifierAlias maps a raw external modifier label onto a modifier.
type RecipeModifierAlias struct {
	ID              int64     `json:"id" db:"id"`
	ModifierID      int64     `json:"modifier_id" db:"modifier_id"`
	RawLabel        string    `json:"raw_label" db:"raw_label"`
	NormalizedLabel string    `json:"normalized_label" db:"normalized_label"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Catalog is the snapshot of products, ingredients and modifiers an import
// run matches against.
type Catalog struct {
	Units       map[string]*UnitType // by lowercase name
	Products    map[int64]*Product
	Ingredients map[int64]*Ingredient
	Modifiers   map[int64]*RecipeModifier
	Aliases     []RecipeModifierAlias
}

func NewCatalog() *Catalog {
	return &Catalog{
		Units:       map[string]*UnitType{},
		Products:    map[int64]*Product{},
		Ingredients: map[int64]*Ingredient{},
		Modifiers:   map[int64]*RecipeModifier{},
	}
}

// Has reports whether ref points at a known entity.
func (c *Catalog) Has(ref EntityRef) bool {
	switch ref.Kind {
	case KindProduct:
		_, ok := c.Products[ref.ID]
		return ok
	case KindIngredient:
		_, ok := c.Ingredients[ref.ID]
		return ok
	case KindModifier:
		_, ok := c.Modifiers[ref.ID]
		return ok
	}
	return false
}

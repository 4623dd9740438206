package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is an imported sales record, unique on (ExternalID, Source).
type Order struct {
	ID         int64     `json:"id" db:"id"`
	ExternalID string    `json:"external_id" db:"external_id"`
	Source     Source    `json:"source" db:"source"`
	OrderedAt  time.Time `json:"ordered_at" db:"ordered_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`

	Items []OrderItem `json:"items,omitempty"`
}

// UsageLine is one ingredient of an order item's effective recipe.
type UsageLine struct {
	IngredientID int64           `json:"ingredient_id"`
	Name         string          `json:"name"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit"`
}

// OrderItem is unique on (OrderID, LineKey).
type OrderItem struct {
	ID           int64           `json:"id" db:"id"`
	OrderID      int64           `json:"order_id" db:"order_id"`
	LineKey      string          `json:"line_key" db:"line_key"`
	ProductID    *int64          `json:"product_id,omitempty" db:"product_id"`
	IngredientID *int64          `json:"ingredient_id,omitempty" db:"ingredient_id"`
	ModifierID   *int64          `json:"modifier_id,omitempty" db:"modifier_id"`
	RawLabel     string          `json:"raw_label" db:"raw_label"`
	PricePoint   *string         `json:"price_point,omitempty" db:"price_point"`
	Modifiers    []string        `json:"modifiers" db:"modifiers"`
	Quantity     decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price" db:"unit_price"`
	Usage        []UsageLine     `json:"usage" db:"usage"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// OrderFilters defines the available filters for querying imported orders.
type OrderFilters struct {
	Source   *string `form:"source"`
	Date     *string `form:"date"` // Expected format YYYY-MM-DD
	Page     int     `form:"page"`
	PageSize int     `form:"page_size"`
}

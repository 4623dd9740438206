package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UsageTotal is the summed usage of one ingredient in one unit.
type UsageTotal struct {
	IngredientID int64           `json:"ingredient_id" db:"ingredient_id"`
	Unit         string          `json:"unit" db:"unit"`
	Quantity     decimal.Decimal `json:"quantity" db:"quantity"`
}

// UsageReportFilters selects the orders whose usage is summed. To is exclusive.
type UsageReportFilters struct {
	From   time.Time
	To     time.Time
	Source *string
}

// UsageReportRow is one ingredient of a usage report. Cost is nil when the
// ingredient has no cost per unit. DisplayQuantity is Quantity rounded for
// people: whole counts, half units otherwise.
type UsageReportRow struct {
	IngredientID    int64            `json:"ingredient_id"`
	Name            string           `json:"name"`
	Unit            string           `json:"unit"`
	Quantity        decimal.Decimal  `json:"quantity"`
	DisplayQuantity decimal.Decimal  `json:"display_quantity"`
	UnitCost        *decimal.Decimal `json:"unit_cost,omitempty"`
	Cost            *decimal.Decimal `json:"cost,omitempty"`
}

// UsageReport is ingredient usage and cost of goods for a date range.
type UsageReport struct {
	StartDate   string           `json:"start_date"` // YYYY-MM-DD
	EndDate     string           `json:"end_date"`   // YYYY-MM-DD, inclusive
	Rows        []UsageReportRow `json:"rows"`
	TotalCost   decimal.Decimal  `json:"total_cost"`
	MissingCost []string         `json:"missing_cost"` // ingredients used without a cost
}

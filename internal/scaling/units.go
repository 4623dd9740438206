package scaling

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Family groups units that can be converted into each other.
type Family string

const (
	FamilyMass   Family = "mass"
	FamilyVolume Family = "volume"
	FamilyCount  Family = "count"
)

// ErrInvalidRatio is returned when a unit carries a non-positive conversion ratio.
var ErrInvalidRatio = errors.New("unit conversion ratio must be positive")

// Unit is a measurement unit with its multiplier to the base unit of its family.
type Unit struct {
	Name   string
	Family Family
	ToBase decimal.Decimal
}

// Quantity is an amount expressed in a unit. Amounts keep full precision;
// rounding happens only in RoundForDisplay.
type Quantity struct {
	Amount decimal.Decimal
	Unit   Unit
}

// UnitMismatchError reports an attempt to combine quantities from different families.
type UnitMismatchError struct {
	From Unit
	To   Unit
}

func (e *UnitMismatchError) Error() string {
	return fmt.Sprintf("unit mismatch: cannot convert %s (%s) to %s (%s)", e.From.Name, e.From.Family, e.To.Name, e.To.Family)
}

// Validate checks that the unit can take part in conversions.
func (u Unit) Validate() error {
	if !u.ToBase.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidRatio, u.Name)
	}
	return nil
}

// Convert expresses q in the target unit.
func Convert(q Quantity, to Unit) (Quantity, error) {
	if q.Unit.Name == to.Name && q.Unit.Family == to.Family {
		return Quantity{Amount: q.Amount, Unit: to}, nil
	}
	if q.Unit.Family != to.Family {
		return Quantity{}, &UnitMismatchError{From: q.Unit, To: to}
	}
	if err := q.Unit.Validate(); err != nil {
		return Quantity{}, err
	}
	if err := to.Validate(); err != nil {
		return Quantity{}, err
	}
	amount := q.Amount.Mul(q.Unit.ToBase).Div(to.ToBase)
	return Quantity{Amount: amount, Unit: to}, nil
}

var half = decimal.NewFromFloat(0.5)

// RoundForDisplay rounds a quantity for presentation: whole units for countable
// items, nearest half unit for everything else.
func RoundForDisplay(amount decimal.Decimal, family Family) decimal.Decimal {
	if family == FamilyCount {
		return amount.Round(0)
	}
	return amount.Div(half).Round(0).Mul(half)
}

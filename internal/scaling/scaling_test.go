package scaling

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ounce = Unit{Name: "oz", Family: FamilyVolume, ToBase: decimal.RequireFromString("29.5735")}
	ml    = Unit{Name: "ml", Family: FamilyVolume, ToBase: decimal.NewFromInt(1)}
	gram  = Unit{Name: "g", Family: FamilyMass, ToBase: decimal.NewFromInt(1)}
	unit  = Unit{Name: "unit", Family: FamilyCount, ToBase: decimal.NewFromInt(1)}
)

func testTable(t *testing.T) *SizeTable {
	t.Helper()
	table, err := NewSizeTable(
		map[string]map[string]float64{
			"hot":  {"small": 1.0, "large": 1.66},
			"cold": {"small": 1.34, "xl": 2.0, "growler": 4.0},
		},
		map[string]string{"hot": "small", "cold": "small"},
		SizeRef{},
	)
	require.NoError(t, err)
	return table
}

func TestScaleSmallToLarge(t *testing.T) {
	table := testTable(t)

	got, err := table.Scale(decimal.NewFromInt(8), Hot, "Small", "Large")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("13.28")), "got %s", got)
}

func TestScaleKeepsPrecisionUntilDisplay(t *testing.T) {
	table := testTable(t)

	got, err := table.Scale(decimal.NewFromInt(3), Cold, "small", "xl")
	require.NoError(t, err)
	// 3 * 2.0 / 1.34 is not representable in two places
	assert.True(t, got.GreaterThan(decimal.RequireFromString("4.477")))
	assert.True(t, got.LessThan(decimal.RequireFromString("4.478")))
	assert.True(t, RoundForDisplay(got, FamilyVolume).Equal(decimal.RequireFromString("4.5")))
}

func TestScaleUnknownSize(t *testing.T) {
	table := testTable(t)

	_, err := table.Scale(decimal.NewFromInt(8), Hot, "small", "growler")
	assert.ErrorIs(t, err, ErrUnknownSize)
}

func TestNewSizeTableRejectsBadRatio(t *testing.T) {
	_, err := NewSizeTable(map[string]map[string]float64{"hot": {"small": 0}}, nil, SizeRef{})
	assert.ErrorIs(t, err, ErrInvalidRatio)

	_, err = NewSizeTable(map[string]map[string]float64{"hot": {"small": 1}}, map[string]string{"hot": "venti"}, SizeRef{})
	assert.ErrorIs(t, err, ErrUnknownSize)

	_, err = NewSizeTable(map[string]map[string]float64{"cold": {"small": 1.34}}, nil, SizeRef{})
	assert.ErrorIs(t, err, ErrUnknownSize)
}

func TestBetweenScalesColdFromHotRecipeBase(t *testing.T) {
	table := testTable(t)
	base := table.RecipeBase()
	assert.Equal(t, SizeRef{Temperature: Hot, Size: "small"}, base)

	factor, err := table.Between(base, SizeRef{Temperature: Cold, Size: "small"})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(8).Mul(factor).Equal(decimal.RequireFromString("10.72")))

	factor, err = table.Between(base, SizeRef{Temperature: Cold, Size: "xl"})
	require.NoError(t, err)
	assert.True(t, factor.Equal(decimal.NewFromInt(2)), factor.String())

	factor, err = table.Between(SizeRef{Temperature: Cold, Size: "small"}, SizeRef{Temperature: Hot, Size: "small"})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("13.4").Mul(factor).Round(6).Equal(decimal.NewFromInt(10)))
}

func TestConvertWithinFamily(t *testing.T) {
	q, err := Convert(Quantity{Amount: decimal.NewFromInt(2), Unit: ounce}, ml)
	require.NoError(t, err)
	assert.True(t, q.Amount.Equal(decimal.RequireFromString("59.147")))
	assert.Equal(t, "ml", q.Unit.Name)
}

func TestConvertAcrossFamiliesFails(t *testing.T) {
	_, err := Convert(Quantity{Amount: decimal.NewFromInt(2), Unit: ounce}, gram)

	var mismatch *UnitMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "oz", mismatch.From.Name)
	assert.Equal(t, "g", mismatch.To.Name)
}

func TestRoundForDisplay(t *testing.T) {
	cases := []struct {
		in     string
		family Family
		want   string
	}{
		{"13.28", FamilyVolume, "13.5"},
		{"13.2", FamilyVolume, "13"},
		{"13.25", FamilyVolume, "13.5"},
		{"2.4", FamilyCount, "2"},
		{"2.5", FamilyCount, "3"},
	}
	for _, tc := range cases {
		got := RoundForDisplay(decimal.RequireFromString(tc.in), tc.family)
		assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "%s -> %s", tc.in, got)
	}
}

func TestInfer(t *testing.T) {
	table := testTable(t)
	kw := Keywords{
		Cold:  []string{"iced", "cold brew", "frappe"},
		Hot:   []string{"hot"},
		Sizes: map[string]string{"small": "small", "large": "large", "xl": "xl", "extra large": "xl", "16oz": "large"},
	}

	d := Infer(kw, table, "", "Small Iced Latte", "")
	assert.Equal(t, Cold, d.Temperature)
	assert.Equal(t, "small", d.Size)

	d = Infer(kw, table, "", "Latte", "16oz")
	assert.Equal(t, Hot, d.Temperature)
	assert.Equal(t, "large", d.Size)
	assert.True(t, d.SizeFound)

	d = Infer(kw, table, Cold, "Cold Brew", "Extra Large")
	assert.Equal(t, Cold, d.Temperature)
	assert.Equal(t, "xl", d.Size)

	// large has no cold ratio, fall back to the cold base size
	d = Infer(kw, table, "", "Iced Mocha", "Large")
	assert.Equal(t, "small", d.Size)
	assert.False(t, d.SizeFound)
}

package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cafe_inventory/internal/config"
	"cafe_inventory/internal/models"
	"cafe_inventory/internal/scaling"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderedAt = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func sampleRows() []RawRow {
	return []RawRow{
		{Line: 2, Label: "Latte", Quantity: "2", Price: "$4.50", Modifiers: []string{"Oat Milk", "Vanilla"}, OrderID: "T-1", OrderedAt: orderedAt},
		{Line: 3, Label: "Latte", PricePoint: "Large", Quantity: "1", Price: "5.25", Modifiers: []string{"Vanilla", "Half Sweet", "Caramel Drizzle"}, OrderID: "T-1", OrderedAt: orderedAt},
		{Line: 4, Label: "Lavender Fog", Quantity: "1", Price: "5.00", OrderID: "T-2", OrderedAt: orderedAt},
		{Line: 5, Label: "Latte", Quantity: "-1", Price: "-4.50", OrderID: "T-2", OrderedAt: orderedAt},
		{Line: 6, Label: "Latte", Quantity: "two", OrderID: "T-2", OrderedAt: orderedAt},
	}
}

func usageOf(t *testing.T, f *fixture, lineKey string, orderExternalID string) map[int64]decimal.Decimal {
	t.Helper()
	orders, _, err := f.store.Orders().GetOrders(models.OrderFilters{})
	require.NoError(t, err)
	for _, o := range orders {
		if o.ExternalID != orderExternalID {
			continue
		}
		items, err := f.store.Orders().GetOrderItemsByOrderID(o.ID)
		require.NoError(t, err)
		for _, it := range items {
			if it.LineKey == lineKey {
				out := map[int64]decimal.Decimal{}
				for _, u := range it.Usage {
					out[u.IngredientID] = u.Quantity
				}
				return out
			}
		}
	}
	t.Fatalf("order item %s/%s not found", orderExternalID, lineKey)
	return nil
}

func TestLiveRunCounts(t *testing.T) {
	f := newFixture(t)

	summary, err := f.imports.Run(context.Background(), RunRequest{Rows: sampleRows(), Source: models.SourceSquare})
	require.NoError(t, err)

	assert.Equal(t, 5, summary.RowsProcessed)
	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Unmapped)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.ModifiersUnmapped)
	require.Len(t, summary.RowErrors, 1)
	assert.Equal(t, 6, summary.RowErrors[0].Line)

	assert.Equal(t, 1, f.store.OrderCount())
	assert.Equal(t, 2, f.store.OrderItemCount())
	// Lavender Fog and the Caramel Drizzle modifier
	assert.Equal(t, 2, f.store.UnmappedCount())
	assert.Equal(t, 1, f.store.ImportLogCount())
}

func TestEffectiveUsage(t *testing.T) {
	f := newFixture(t)
	_, err := f.imports.Run(context.Background(), RunRequest{Rows: sampleRows()[:2], Source: models.SourceSquare})
	require.NoError(t, err)

	small := usageOf(t, f, "1", "T-1")
	assert.True(t, small[ingBeans].Equal(dec("36")), small[ingBeans].String())
	assert.True(t, small[ingOat].Equal(dec("16")), small[ingOat].String())
	assert.True(t, small[ingVanilla].Equal(dec("2")))
	assert.True(t, small[ingCupS].Equal(dec("2")))
	_, hasWhole := small[ingWhole]
	assert.False(t, hasWhole)

	large := usageOf(t, f, "2", "T-1")
	assert.True(t, large[ingWhole].Equal(dec("13.36")), large[ingWhole].String())
	assert.True(t, large[ingBeans].Equal(dec("30.06")), large[ingBeans].String())
	assert.True(t, large[ingVanilla].Equal(dec("0.5")), large[ingVanilla].String())
	assert.True(t, large[ingCupL].Equal(dec("1")))
}

func TestExpandModifierUsage(t *testing.T) {
	f := newFixture(t)
	rows := []RawRow{{Line: 2, Label: "Latte", Quantity: "1", Modifiers: []string{"Oat Upgrade"}, OrderID: "T-9", OrderedAt: orderedAt}}
	_, err := f.imports.Run(context.Background(), RunRequest{Rows: rows, Source: models.SourceSquare})
	require.NoError(t, err)

	usage := usageOf(t, f, "1", "T-9")
	assert.True(t, usage[ingOat].Equal(dec("8")))
	assert.True(t, usage[ingBeans].Equal(dec("27")), usage[ingBeans].String())
	_, hasWhole := usage[ingWhole]
	assert.False(t, hasWhole)
}

func TestLiveRerunDoesNotDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.imports.Run(ctx, RunRequest{Rows: sampleRows(), Source: models.SourceSquare})
	require.NoError(t, err)
	second, err := f.imports.Run(ctx, RunRequest{Rows: sampleRows(), Source: models.SourceSquare})
	require.NoError(t, err)

	assert.Equal(t, 2, first.Created)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Updated)
	assert.Equal(t, 2, f.store.OrderItemCount())
	assert.Equal(t, 2, f.store.UnmappedCount())

	open, _, err := f.ledger.List(models.UnmappedFilters{})
	require.NoError(t, err)
	for _, item := range open {
		assert.Equal(t, 2, item.OccurrenceCount, item.RawLabel)
	}
}

func TestDryRunIsIdempotentAndLeavesNoRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.imports.Run(ctx, RunRequest{Rows: sampleRows(), Source: models.SourceSquare, DryRun: true})
	require.NoError(t, err)
	second, err := f.imports.Run(ctx, RunRequest{Rows: sampleRows(), Source: models.SourceSquare, DryRun: true})
	require.NoError(t, err)

	for _, s := range []*ImportSummary{first, second} {
		assert.Equal(t, 2, s.Created)
		assert.Equal(t, 1, s.Unmapped)
		assert.Equal(t, 1, s.Errors)
	}
	assert.Equal(t, first.Log, second.Log)
	assert.NotEqual(t, first.RunID, second.RunID)

	assert.Zero(t, f.store.OrderCount())
	assert.Zero(t, f.store.OrderItemCount())
	assert.Zero(t, f.store.UnmappedCount())

	logs, total, err := f.imports.ListLogs(models.ImportLogFilters{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, models.RunTypeDryRun, logs[0].RunType)
	assert.True(t, strings.HasPrefix(logs[0].Summary, "Import Summary (Dry Run)"))
}

func TestResolvedLedgerRowMapsLaterImports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rows := []RawRow{{Line: 2, Label: "Lavender Fog", Quantity: "1", OrderID: "T-3", OrderedAt: orderedAt}}

	first, err := f.imports.Run(ctx, RunRequest{Rows: rows, Source: models.SourceSquare})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Unmapped)

	items, _, err := f.ledger.List(models.UnmappedFilters{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	_, err = f.ledger.Link(items[0].ID, LinkRequest{Kind: models.KindProduct, ID: prodLatte})
	require.NoError(t, err)

	second, err := f.imports.Run(ctx, RunRequest{Rows: rows, Source: models.SourceSquare})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Unmapped)
	assert.Equal(t, 1, second.Created)
	assert.Contains(t, second.Log, "stage=ledger")
}

func TestShellItemNeedsPricePoint(t *testing.T) {
	f := newFixture(t)
	rows := []RawRow{
		{Line: 2, Label: "Barista's Choice", PricePoint: "Latte", Quantity: "1", OrderID: "T-4", OrderedAt: orderedAt},
		{Line: 3, Label: "Barista's Choice", Quantity: "1", OrderID: "T-4", OrderedAt: orderedAt},
	}
	summary, err := f.imports.Run(context.Background(), RunRequest{Rows: rows, Source: models.SourceSquare})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Unmapped)
	items, _, err := f.ledger.List(models.UnmappedFilters{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "shell_item", items[0].LastReason)
}

func TestUnitMismatchIsARowError(t *testing.T) {
	f := newFixture(t)
	rows := []RawRow{
		{Line: 2, Label: "Broken Latte", Quantity: "1", OrderID: "T-5", OrderedAt: orderedAt},
		{Line: 3, Label: "Latte", Quantity: "1", OrderID: "T-5", OrderedAt: orderedAt},
	}
	summary, err := f.imports.Run(context.Background(), RunRequest{Rows: rows, Source: models.SourceSquare})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Created)
	require.Len(t, summary.RowErrors, 1)
	assert.Contains(t, summary.RowErrors[0].Message, "unit mismatch")
}

func TestPanickingRowIsCounted(t *testing.T) {
	store := newFixture(t).store
	rules := testRules(t)
	rules.Cup = func(scaling.Temperature, string) (string, bool) { panic("cup table corrupted") }
	ledger := NewUnmappedItemService(store.UnmappedItems(), store.Catalog(), store)
	svc := NewImportService(store.Catalog(), store.Orders(), store.ImportLogs(), ledger, store, rules)

	rows := []RawRow{
		{Line: 2, Label: "Latte", Quantity: "1", OrderID: "T-6", OrderedAt: orderedAt},
		{Line: 3, Label: "Lavender Fog", Quantity: "1", OrderID: "T-6", OrderedAt: orderedAt},
	}
	summary, err := svc.Run(context.Background(), RunRequest{Rows: rows, Source: models.SourceSquare})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Unmapped)
	assert.Contains(t, summary.RowErrors[0].Message, "cup table corrupted")
}

func TestSystemicFailureAbortsRun(t *testing.T) {
	f := newFixture(t)
	f.store.FailBegin(errors.New("connection refused"))

	summary, err := f.imports.Run(context.Background(), RunRequest{Rows: sampleRows(), Source: models.SourceSquare})
	assert.ErrorIs(t, err, ErrRunFailed)
	require.NotNil(t, summary)
	assert.Zero(t, summary.RowsProcessed)
	assert.Zero(t, f.store.OrderCount())
	assert.Zero(t, f.store.ImportLogCount())
}

func TestCancelledRunKeepsNothing(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.imports.Run(ctx, RunRequest{Rows: sampleRows(), Source: models.SourceSquare})
	assert.ErrorIs(t, err, ErrRunFailed)
	assert.Zero(t, f.store.OrderCount())
	assert.Zero(t, f.store.UnmappedCount())

	logs, _, err := f.imports.ListLogs(models.ImportLogFilters{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.RunStatusFailed, logs[0].Status)
	assert.NotNil(t, logs[0].Error)
}

func TestRunRejectsUnknownSource(t *testing.T) {
	f := newFixture(t)
	_, err := f.imports.Run(context.Background(), RunRequest{Source: "clover"})
	assert.ErrorIs(t, err, ErrUnsupportedSource)
}

func TestSummaryText(t *testing.T) {
	s := &ImportSummary{RunID: "r1", Source: models.SourceShopify, Created: 3, Log: "INFO done\n"}
	text := s.Text()
	assert.True(t, strings.HasPrefix(text, "Import Summary (Committed)\n"))
	assert.Contains(t, text, "Created:            3")
	assert.True(t, strings.HasSuffix(text, "INFO done\n"))
}

func TestParseAmount(t *testing.T) {
	for in, want := range map[string]string{"$1,234.50": "1234.5", " 3 ": "3", "($4.00)": "-4"} {
		got, err := parseAmount(in)
		require.NoError(t, err, in)
		assert.True(t, got.Equal(dec(want)), in)
	}
	_, err := parseAmount("two")
	assert.Error(t, err)
}

func TestImportRulesFromDefaultRulesFile(t *testing.T) {
	rules, err := config.LoadRules("")
	require.NoError(t, err)
	ir, err := NewImportRules(rules)
	require.NoError(t, err)

	assert.Contains(t, ir.Line.ShellItems, "Barista's Choice")
	assert.NotNil(t, ir.Scorer)
	cup, ok := ir.Cup(scaling.Hot, "large")
	assert.True(t, ok)
	assert.Equal(t, "Hot Cup 20oz", cup)

	f := newFixture(t)
	imports := NewImportService(f.store.Catalog(), f.store.Orders(), f.store.ImportLogs(), f.ledger, f.store, ir)
	summary, err := imports.Run(context.Background(), RunRequest{Rows: sampleRows()[:1], Source: models.SourceSquare, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
}

package repositories

import (
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"cafe_inventory/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var unmappedCols = []string{"id", "source", "item_type", "raw_label", "price_point", "normalized_label", "normalized_price_point",
	"last_reason", "last_modifiers", "seen_combos", "occurrence_count", "first_seen", "last_seen", "state",
	"resolved_kind", "resolved_id", "resolved_by", "resolved_at", "note", "last_raw_row"}

func unmappedRow(seen time.Time) []driver.Value {
	return []driver.Value{int64(4), "square", "product", "Lavender Fog", "", "lavender fog", "",
		"no_match", "{Oat Milk}", `{"","oat milk"}`, 3, seen, seen, "resolved",
		"product", int64(10), "maria", seen, nil, []byte(`{"Item":"Lavender Fog"}`)}
}

func TestUnmappedGetByKey(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUnmappedItemRepository(db)
	seen := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	key := models.UnmappedKey{Source: models.SourceSquare, ItemType: models.KindProduct, NormalizedLabel: "lavender fog"}

	mock.ExpectQuery(`FROM unmapped_items\s+WHERE source = \$1 AND item_type = \$2 AND normalized_label = \$3 AND normalized_price_point = \$4\s+FOR UPDATE`).
		WithArgs("square", "product", "lavender fog", "").
		WillReturnRows(sqlmock.NewRows(unmappedCols).AddRow(unmappedRow(seen)...))

	item, err := repo.GetByKey(db, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"Oat Milk"}, item.LastModifiers)
	assert.Equal(t, []string{"", "oat milk"}, item.SeenCombos)
	require.NotNil(t, item.ResolvedTo)
	assert.Equal(t, models.EntityRef{Kind: models.KindProduct, ID: 10}, *item.ResolvedTo)
	assert.JSONEq(t, `{"Item":"Lavender Fog"}`, string(item.LastRawRow))

	mock.ExpectQuery(`FROM unmapped_items`).WillReturnRows(sqlmock.NewRows(unmappedCols))
	_, err = repo.GetByKey(db, key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnmappedCreateConflicts(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUnmappedItemRepository(db)
	item := &models.UnmappedItem{Source: models.SourceSquare, ItemType: models.KindProduct, RawLabel: "Fog", NormalizedLabel: "fog", State: models.StateOpen}

	mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT (source, item_type, normalized_label, normalized_price_point) DO NOTHING`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))
	id, err := repo.Create(db, item)
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	mock.ExpectQuery(`INSERT INTO unmapped_items`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = repo.Create(db, item)
	assert.ErrorIs(t, err, ErrDuplicateKey)

	mock.ExpectQuery(`INSERT INTO unmapped_items`).WillReturnError(&pq.Error{Code: "23505", Constraint: "unmapped_items_key"})
	_, err = repo.Create(db, item)
	assert.ErrorIs(t, err, ErrDuplicateKey)

	mock.ExpectQuery(`INSERT INTO unmapped_items`).WillReturnError(sql.ErrConnDone)
	_, err = repo.Create(db, item)
	assert.ErrorIs(t, err, ErrDatabaseError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnmappedUpdateMissingRow(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUnmappedItemRepository(db)

	mock.ExpectExec(`UPDATE unmapped_items`).WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Update(db, &models.UnmappedItem{ID: 99})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnmappedListBuildsFilters(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUnmappedItemRepository(db)
	source, state, q := "square", "open", "fog"
	seen := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM unmapped_items WHERE source = \$1 AND state = \$2 AND \(raw_label ILIKE \$3 OR normalized_label ILIKE \$3\) ORDER BY last_seen DESC, raw_label LIMIT \$4 OFFSET \$5`).
		WithArgs("square", "open", "%fog%", 25, 25).
		WillReturnRows(sqlmock.NewRows(append(unmappedCols, "total_count")).AddRow(append(unmappedRow(seen), 26)...))

	items, total, err := repo.List(models.UnmappedFilters{Source: &source, State: &state, Search: &q, Page: 2, PageSize: 25})
	require.NoError(t, err)
	assert.Equal(t, 26, total)
	require.Len(t, items, 1)
	assert.Equal(t, "Lavender Fog", items[0].RawLabel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertOrderReportsInsert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT (external_id, source) DO UPDATE`)).
		WithArgs("T-1", "square", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at", "inserted"}).AddRow(int64(5), now, now, true))
	mock.ExpectQuery(`INSERT INTO orders`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at", "inserted"}).AddRow(int64(5), now, now, false))

	order := &models.Order{ExternalID: "T-1", Source: models.SourceSquare, OrderedAt: now}
	inserted, err := repo.UpsertOrder(db, order)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, int64(5), order.ID)

	inserted, err = repo.UpsertOrder(db, order)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`FROM orders WHERE id = \$1`).WithArgs(int64(3)).WillReturnError(sql.ErrNoRows)

	_, err := NewOrderRepository(db).GetOrderByID(3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImportLogCreateDuplicateRun(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO import_logs`).WillReturnError(&pq.Error{Code: "23505"})

	_, err := NewImportLogRepository(db).Create(db, &models.ImportLog{RunID: "r-1", Source: models.SourceSquare})
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestCatalogExists(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCatalogRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM recipe_modifiers WHERE id = $1)`)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := repo.Exists(db, models.EntityRef{Kind: models.KindModifier, ID: 7})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Exists(db, models.EntityRef{Kind: "pastry", ID: 7})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManagerWrapsBeginFailure(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin().WillReturnError(sql.ErrConnDone)

	_, err := NewTxManager(db).Begin()
	assert.ErrorIs(t, err, ErrDatabaseError)
}

func TestUsageTotalsFiltersSource(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository(db)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	source := "square"

	mock.ExpectQuery(`(?s)jsonb_array_elements\(oi.usage\).*WHERE o.ordered_at >= \$1 AND o.ordered_at < \$2 AND o.source = \$3 GROUP BY 1, 2`).
		WithArgs(from, to, source).
		WillReturnRows(sqlmock.NewRows([]string{"ingredient_id", "unit", "quantity"}).
			AddRow(int64(1), "g", "66.06").
			AddRow(int64(2), "oz", "8"))

	totals, err := repo.UsageTotals(models.UsageReportFilters{From: from, To: to, Source: &source})
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, "66.06", totals[0].Quantity.String())
	assert.Equal(t, "oz", totals[1].Unit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

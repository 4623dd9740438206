package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cafe_inventory/internal/models"

	"github.com/lib/pq"
)

// UnmappedItemRepository defines the ledger's database operations.
type UnmappedItemRepository interface {
	GetByKey(executor SQLExecutor, key models.UnmappedKey) (*models.UnmappedItem, error) // locks the row
	GetByID(executor SQLExecutor, id int64) (*models.UnmappedItem, error)                // locks the row
	Create(executor SQLExecutor, item *models.UnmappedItem) (int64, error)
	Update(executor SQLExecutor, item *models.UnmappedItem) error
	List(filters models.UnmappedFilters) ([]models.UnmappedItem, int, error) // items, total count, error
}

type unmappedItemRepository struct {
	db *sql.DB
}

// NewUnmappedItemRepository creates a new instance of UnmappedItemRepository.
func NewUnmappedItemRepository(db *sql.DB) UnmappedItemRepository {
	return &unmappedItemRepository{db: db}
}

const unmappedColumns = `id, source, item_type, raw_label, price_point, normalized_label, normalized_price_point,
	last_reason, last_modifiers, seen_combos, occurrence_count, first_seen, last_seen, state,
	resolved_kind, resolved_id, resolved_by, resolved_at, note, last_raw_row`

func scanUnmapped(s scanner, extra ...interface{}) (*models.UnmappedItem, error) {
	var item models.UnmappedItem
	var resolvedKind sql.NullString
	var resolvedID sql.NullInt64
	var rawRow []byte

	dest := []interface{}{
		&item.ID, &item.Source, &item.ItemType, &item.RawLabel, &item.PricePoint, &item.NormalizedLabel, &item.NormalizedPricePoint,
		&item.LastReason, pq.Array(&item.LastModifiers), pq.Array(&item.SeenCombos), &item.OccurrenceCount, &item.FirstSeen, &item.LastSeen, &item.State,
		&resolvedKind, &resolvedID, &item.ResolvedBy, &item.ResolvedAt, &item.Note, &rawRow,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if resolvedKind.Valid && resolvedID.Valid {
		item.ResolvedTo = &models.EntityRef{Kind: models.EntityKind(resolvedKind.String), ID: resolvedID.Int64}
	}
	if len(rawRow) > 0 {
		item.LastRawRow = json.RawMessage(rawRow)
	}
	return &item, nil
}

func resolvedColumns(ref *models.EntityRef) (interface{}, interface{}) {
	if ref == nil {
		return nil, nil
	}
	return string(ref.Kind), ref.ID
}

func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (r *unmappedItemRepository) GetByKey(executor SQLExecutor, key models.UnmappedKey) (*models.UnmappedItem, error) {
	query := `SELECT ` + unmappedColumns + `
	          FROM unmapped_items
	          WHERE source = $1 AND item_type = $2 AND normalized_label = $3 AND normalized_price_point = $4
	          FOR UPDATE`
	item, err := scanUnmapped(executor.QueryRow(query, key.Source, key.ItemType, key.NormalizedLabel, key.NormalizedPricePoint))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting unmapped item %q: %v", ErrDatabaseError, key.NormalizedLabel, err)
	}
	return item, nil
}

func (r *unmappedItemRepository) GetByID(executor SQLExecutor, id int64) (*models.UnmappedItem, error) {
	query := `SELECT ` + unmappedColumns + ` FROM unmapped_items WHERE id = $1 FOR UPDATE`
	item, err := scanUnmapped(executor.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting unmapped item by ID %d: %v", ErrDatabaseError, id, err)
	}
	return item, nil
}

func (r *unmappedItemRepository) Create(executor SQLExecutor, item *models.UnmappedItem) (int64, error) {
	query := `INSERT INTO unmapped_items
	            (source, item_type, raw_label, price_point, normalized_label, normalized_price_point,
	             last_reason, last_modifiers, seen_combos, occurrence_count, first_seen, last_seen, state,
	             resolved_kind, resolved_id, resolved_by, resolved_at, note, last_raw_row)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	          ON CONFLICT (source, item_type, normalized_label, normalized_price_point) DO NOTHING
	          RETURNING id`
	kind, id := resolvedColumns(item.ResolvedTo)
	err := executor.QueryRow(query,
		item.Source, item.ItemType, item.RawLabel, item.PricePoint, item.NormalizedLabel, item.NormalizedPricePoint,
		item.LastReason, pq.Array(item.LastModifiers), pq.Array(item.SeenCombos), item.OccurrenceCount, item.FirstSeen, item.LastSeen, item.State,
		kind, id, item.ResolvedBy, item.ResolvedAt, item.Note, nullJSON(item.LastRawRow),
	).Scan(&item.ID)
	if err != nil {
		// DO NOTHING keeps the surrounding transaction usable for the caller's re-fetch.
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: unmapped item '%s' already exists", ErrDuplicateKey, item.NormalizedLabel)
		}
		if pqErr, ok := isUniqueViolation(err); ok {
			return 0, fmt.Errorf("%w: unmapped item '%s' already exists (constraint: %s)", ErrDuplicateKey, item.NormalizedLabel, pqErr.Constraint)
		}
		return 0, fmt.Errorf("%w: creating unmapped item: %v", ErrDatabaseError, err)
	}
	return item.ID, nil
}

func (r *unmappedItemRepository) Update(executor SQLExecutor, item *models.UnmappedItem) error {
	query := `UPDATE unmapped_items
	          SET raw_label = $1, price_point = $2, last_reason = $3, last_modifiers = $4, seen_combos = $5,
	              occurrence_count = $6, last_seen = $7, state = $8, resolved_kind = $9, resolved_id = $10,
	              resolved_by = $11, resolved_at = $12, note = $13, last_raw_row = $14
	          WHERE id = $15`
	kind, id := resolvedColumns(item.ResolvedTo)
	result, err := executor.Exec(query,
		item.RawLabel, item.PricePoint, item.LastReason, pq.Array(item.LastModifiers), pq.Array(item.SeenCombos),
		item.OccurrenceCount, item.LastSeen, item.State, kind, id,
		item.ResolvedBy, item.ResolvedAt, item.Note, nullJSON(item.LastRawRow),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: updating unmapped item %d: %v", ErrDatabaseError, item.ID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: checking affected rows for unmapped item %d: %v", ErrDatabaseError, item.ID, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *unmappedItemRepository) List(filters models.UnmappedFilters) ([]models.UnmappedItem, int, error) {
	items := []models.UnmappedItem{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + unmappedColumns + `, COUNT(*) OVER() AS total_count FROM unmapped_items`)

	var conditions []string
	var args []interface{}
	argCounter := 1

	if filters.Source != nil && *filters.Source != "" {
		conditions = append(conditions, fmt.Sprintf("source = $%d", argCounter))
		args = append(args, *filters.Source)
		argCounter++
	}
	if filters.ItemType != nil && *filters.ItemType != "" {
		conditions = append(conditions, fmt.Sprintf("item_type = $%d", argCounter))
		args = append(args, *filters.ItemType)
		argCounter++
	}
	if filters.State != nil && *filters.State != "" {
		conditions = append(conditions, fmt.Sprintf("state = $%d", argCounter))
		args = append(args, *filters.State)
		argCounter++
	}
	if filters.From != nil {
		conditions = append(conditions, fmt.Sprintf("last_seen >= $%d", argCounter))
		args = append(args, *filters.From)
		argCounter++
	}
	if filters.To != nil {
		conditions = append(conditions, fmt.Sprintf("last_seen < $%d", argCounter))
		args = append(args, filters.To.AddDate(0, 0, 1))
		argCounter++
	}
	if filters.Search != nil && *filters.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(raw_label ILIKE $%d OR normalized_label ILIKE $%d)", argCounter, argCounter))
		args = append(args, "%"+*filters.Search+"%")
		argCounter++
	}
	if len(filters.IDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("id = ANY($%d)", argCounter))
		args = append(args, pq.Array(filters.IDs))
		argCounter++
	}

	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY last_seen DESC, raw_label")

	if filters.PageSize > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCounter, argCounter+1))
		args = append(args, filters.PageSize, pageOffset(filters.Page, filters.PageSize))
	}

	rows, err := r.db.Query(queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying unmapped items: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanUnmapped(rows, &totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: scanning unmapped item: %v", ErrDatabaseError, err)
		}
		items = append(items, *item)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating unmapped items: %v", ErrDatabaseError, err)
	}
	return items, totalCount, nil
}

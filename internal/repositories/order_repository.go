package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cafe_inventory/internal/models"

	"github.com/lib/pq"
)

// OrderRepository defines the interface for imported order operations.
// Upserts report whether a new row was inserted.
type OrderRepository interface {
	UpsertOrder(executor SQLExecutor, order *models.Order) (bool, error)
	UpsertOrderItem(executor SQLExecutor, item *models.OrderItem) (bool, error)
	GetOrderByID(orderID int64) (*models.Order, error)
	GetOrders(filters models.OrderFilters) ([]models.Order, int, error) // orders, total count, error
	GetOrderItemsByOrderID(orderID int64) ([]models.OrderItem, error)
	UsageTotals(filters models.UsageReportFilters) ([]models.UsageTotal, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository.
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

// --- Order Methods ---

func (r *orderRepository) UpsertOrder(executor SQLExecutor, order *models.Order) (bool, error) {
	// xmax is zero only for a freshly inserted tuple
	query := `INSERT INTO orders (external_id, source, ordered_at, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $4)
	          ON CONFLICT (external_id, source) DO UPDATE SET ordered_at = EXCLUDED.ordered_at, updated_at = EXCLUDED.updated_at
	          RETURNING id, created_at, updated_at, (xmax = 0) AS inserted`

	now := time.Now()
	var inserted bool
	err := executor.QueryRow(query, order.ExternalID, order.Source, order.OrderedAt, now).
		Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("%w: upserting order %s/%s: %v", ErrDatabaseError, order.Source, order.ExternalID, err)
	}
	return inserted, nil
}

func (r *orderRepository) GetOrderByID(orderID int64) (*models.Order, error) {
	order := &models.Order{}
	query := `SELECT id, external_id, source, ordered_at, created_at, updated_at FROM orders WHERE id = $1`
	err := r.db.QueryRow(query, orderID).Scan(
		&order.ID, &order.ExternalID, &order.Source, &order.OrderedAt, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting order by ID %d: %v", ErrDatabaseError, orderID, err)
	}
	return order, nil
}

func (r *orderRepository) GetOrders(filters models.OrderFilters) ([]models.Order, int, error) {
	orders := []models.Order{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
        SELECT id, external_id, source, ordered_at, created_at, updated_at, COUNT(*) OVER() AS total_count
        FROM orders`)

	var conditions []string
	var args []interface{}
	argCounter := 1

	if filters.Source != nil && *filters.Source != "" {
		conditions = append(conditions, fmt.Sprintf("source = $%d", argCounter))
		args = append(args, *filters.Source)
		argCounter++
	}
	if filters.Date != nil && *filters.Date != "" {
		parsedDate, err := time.Parse("2006-01-02", *filters.Date)
		if err == nil {
			startOfDay := time.Date(parsedDate.Year(), parsedDate.Month(), parsedDate.Day(), 0, 0, 0, 0, parsedDate.Location())
			conditions = append(conditions, fmt.Sprintf("ordered_at >= $%d AND ordered_at < $%d", argCounter, argCounter+1))
			args = append(args, startOfDay, startOfDay.AddDate(0, 0, 1))
			argCounter += 2
		}
	}

	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY ordered_at DESC")

	if filters.PageSize > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCounter, argCounter+1))
		args = append(args, filters.PageSize, pageOffset(filters.Page, filters.PageSize))
	}

	rows, err := r.db.Query(queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying orders: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.ExternalID, &o.Source, &o.OrderedAt, &o.CreatedAt, &o.UpdatedAt, &totalCount); err != nil {
			return nil, 0, fmt.Errorf("%w: scanning order: %v", ErrDatabaseError, err)
		}
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating orders: %v", ErrDatabaseError, err)
	}
	return orders, totalCount, nil
}

// --- OrderItem Methods ---

func (r *orderRepository) UpsertOrderItem(executor SQLExecutor, item *models.OrderItem) (bool, error) {
	usage, err := json.Marshal(item.Usage)
	if err != nil {
		return false, fmt.Errorf("encoding usage for order item %s: %w", item.LineKey, err)
	}
	query := `INSERT INTO order_items
	            (order_id, line_key, product_id, ingredient_id, modifier_id, raw_label, price_point, modifiers, quantity, unit_price, usage, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	          ON CONFLICT (order_id, line_key) DO UPDATE SET
	            product_id = EXCLUDED.product_id, ingredient_id = EXCLUDED.ingredient_id, modifier_id = EXCLUDED.modifier_id,
	            raw_label = EXCLUDED.raw_label,
	            price_point = EXCLUDED.price_point, modifiers = EXCLUDED.modifiers, quantity = EXCLUDED.quantity,
	            unit_price = EXCLUDED.unit_price, usage = EXCLUDED.usage, updated_at = EXCLUDED.updated_at
	          RETURNING id, created_at, updated_at, (xmax = 0) AS inserted`

	var inserted bool
	err = executor.QueryRow(query,
		item.OrderID, item.LineKey, item.ProductID, item.IngredientID, item.ModifierID, item.RawLabel, item.PricePoint,
		pq.Array(item.Modifiers), item.Quantity, item.UnitPrice, string(usage), time.Now(),
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("%w: upserting order item %s: %v", ErrDatabaseError, item.LineKey, err)
	}
	return inserted, nil
}

func (r *orderRepository) GetOrderItemsByOrderID(orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	query := `SELECT id, order_id, line_key, product_id, ingredient_id, modifier_id, raw_label, price_point, modifiers,
	                 quantity, unit_price, usage, created_at, updated_at
	          FROM order_items
	          WHERE order_id = $1
	          ORDER BY line_key`
	rows, err := r.db.Query(query, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying order items for order %d: %v", ErrDatabaseError, orderID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		var usage []byte
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.LineKey, &item.ProductID, &item.IngredientID, &item.ModifierID, &item.RawLabel, &item.PricePoint,
			pq.Array(&item.Modifiers), &item.Quantity, &item.UnitPrice, &usage, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scanning order item: %v", ErrDatabaseError, err)
		}
		if len(usage) > 0 {
			if err := json.Unmarshal(usage, &item.Usage); err != nil {
				return nil, fmt.Errorf("%w: decoding usage of order item %d: %v", ErrDatabaseError, item.ID, err)
			}
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating order items: %v", ErrDatabaseError, err)
	}
	return items, nil
}

// --- Reporting ---

func (r *orderRepository) UsageTotals(filters models.UsageReportFilters) ([]models.UsageTotal, error) {
	totals := []models.UsageTotal{}
	query := `SELECT (u->>'ingredient_id')::bigint AS ingredient_id, u->>'unit' AS unit, SUM((u->>'quantity')::numeric) AS quantity
	          FROM order_items oi
	          JOIN orders o ON o.id = oi.order_id
	          CROSS JOIN LATERAL jsonb_array_elements(oi.usage) AS u
	          WHERE o.ordered_at >= $1 AND o.ordered_at < $2`
	args := []interface{}{filters.From, filters.To}
	if filters.Source != nil && *filters.Source != "" {
		query += ` AND o.source = $3`
		args = append(args, *filters.Source)
	}
	query += ` GROUP BY 1, 2 ORDER BY 1, 2`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying usage totals: %v", ErrDatabaseError, err)
	}
	defer rows.Close()
	for rows.Next() {
		var t models.UsageTotal
		if err := rows.Scan(&t.IngredientID, &t.Unit, &t.Quantity); err != nil {
			return nil, fmt.Errorf("%w: scanning usage total: %v", ErrDatabaseError, err)
		}
		totals = append(totals, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating usage totals: %v", ErrDatabaseError, err)
	}
	return totals, nil
}

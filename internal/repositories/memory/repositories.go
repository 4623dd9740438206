package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cafe_inventory/internal/matching"
	"cafe_inventory/internal/models"
	"cafe_inventory/internal/repositories"

	"github.com/shopspring/decimal"
)

type unmappedRepo struct{ s *Store }

func (r *unmappedRepo) GetByKey(_ repositories.SQLExecutor, key models.UnmappedKey) (*models.UnmappedItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.st.unmapped {
		if u.Key() == key {
			c := cloneUnmapped(u)
			return &c, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *unmappedRepo) GetByID(_ repositories.SQLExecutor, id int64) (*models.UnmappedItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.st.unmapped[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := cloneUnmapped(u)
	return &c, nil
}

func (r *unmappedRepo) Create(_ repositories.SQLExecutor, item *models.UnmappedItem) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.st.unmapped {
		if u.Key() == item.Key() {
			return 0, fmt.Errorf("%w: unmapped item '%s' already exists", repositories.ErrDuplicateKey, item.NormalizedLabel)
		}
	}
	item.ID = r.s.st.newID()
	r.s.st.unmapped[item.ID] = cloneUnmapped(*item)
	return item.ID, nil
}

func (r *unmappedRepo) Update(_ repositories.SQLExecutor, item *models.UnmappedItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.unmapped[item.ID]; !ok {
		return repositories.ErrNotFound
	}
	r.s.st.unmapped[item.ID] = cloneUnmapped(*item)
	return nil
}

func (r *unmappedRepo) List(filters models.UnmappedFilters) ([]models.UnmappedItem, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ids := map[int64]bool{}
	for _, id := range filters.IDs {
		ids[id] = true
	}
	var matched []models.UnmappedItem
	for _, u := range r.s.st.unmapped {
		switch {
		case filters.Source != nil && *filters.Source != "" && string(u.Source) != *filters.Source,
			filters.ItemType != nil && *filters.ItemType != "" && string(u.ItemType) != *filters.ItemType,
			filters.State != nil && *filters.State != "" && string(u.State) != *filters.State,
			filters.From != nil && u.LastSeen.Before(*filters.From),
			filters.To != nil && !u.LastSeen.Before(filters.To.AddDate(0, 0, 1)),
			len(ids) > 0 && !ids[u.ID]:
			continue
		}
		if filters.Search != nil && *filters.Search != "" {
			q := strings.ToLower(*filters.Search)
			if !strings.Contains(strings.ToLower(u.RawLabel), q) && !strings.Contains(u.NormalizedLabel, q) {
				continue
			}
		}
		matched = append(matched, cloneUnmapped(u))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].LastSeen.Equal(matched[j].LastSeen) {
			return matched[i].LastSeen.After(matched[j].LastSeen)
		}
		return matched[i].RawLabel < matched[j].RawLabel
	})
	return paginate(matched, filters.Page, filters.PageSize), len(matched), nil
}

type importLogRepo struct{ s *Store }

func (r *importLogRepo) Create(_ repositories.SQLExecutor, entry *models.ImportLog) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.st.logs {
		if l.RunID == entry.RunID {
			return 0, fmt.Errorf("%w: import run %s already logged", repositories.ErrDuplicateKey, entry.RunID)
		}
	}
	entry.ID = r.s.st.newID()
	r.s.st.logs = append(r.s.st.logs, *entry)
	return entry.ID, nil
}

func (r *importLogRepo) List(filters models.ImportLogFilters) ([]models.ImportLog, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var matched []models.ImportLog
	for _, l := range r.s.st.logs {
		if filters.Source != nil && *filters.Source != "" && string(l.Source) != *filters.Source {
			continue
		}
		if filters.RunType != nil && *filters.RunType != "" && l.RunType != *filters.RunType {
			continue
		}
		matched = append(matched, l)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].StartedAt.After(matched[j].StartedAt) })
	return paginate(matched, filters.Page, filters.PageSize), len(matched), nil
}

type orderRepo struct{ s *Store }

func (r *orderRepo) UpsertOrder(_ repositories.SQLExecutor, order *models.Order) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	for id, o := range r.s.st.orders {
		if o.ExternalID == order.ExternalID && o.Source == order.Source {
			o.OrderedAt, o.UpdatedAt = order.OrderedAt, now
			r.s.st.orders[id] = o
			order.ID, order.CreatedAt, order.UpdatedAt = o.ID, o.CreatedAt, o.UpdatedAt
			return false, nil
		}
	}
	order.ID = r.s.st.newID()
	order.CreatedAt, order.UpdatedAt = now, now
	stored := *order
	stored.Items = nil
	r.s.st.orders[order.ID] = stored
	return true, nil
}

func (r *orderRepo) UpsertOrderItem(_ repositories.SQLExecutor, item *models.OrderItem) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	for id, it := range r.s.st.items {
		if it.OrderID == item.OrderID && it.LineKey == item.LineKey {
			item.ID, item.CreatedAt, item.UpdatedAt = id, it.CreatedAt, now
			r.s.st.items[id] = *item
			return false, nil
		}
	}
	item.ID = r.s.st.newID()
	item.CreatedAt, item.UpdatedAt = now, now
	r.s.st.items[item.ID] = *item
	return true, nil
}

func (r *orderRepo) GetOrderByID(orderID int64) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.st.orders[orderID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &o, nil
}

func (r *orderRepo) GetOrders(filters models.OrderFilters) ([]models.Order, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var matched []models.Order
	for _, o := range r.s.st.orders {
		if filters.Source != nil && *filters.Source != "" && string(o.Source) != *filters.Source {
			continue
		}
		if filters.Date != nil && *filters.Date != "" && o.OrderedAt.Format("2006-01-02") != *filters.Date {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].OrderedAt.Equal(matched[j].OrderedAt) {
			return matched[i].OrderedAt.After(matched[j].OrderedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	return paginate(matched, filters.Page, filters.PageSize), len(matched), nil
}

func (r *orderRepo) GetOrderItemsByOrderID(orderID int64) ([]models.OrderItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	items := []models.OrderItem{}
	for _, it := range r.s.st.items {
		if it.OrderID == orderID {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].LineKey < items[j].LineKey })
	return items, nil
}

func (r *orderRepo) UsageTotals(filters models.UsageReportFilters) ([]models.UsageTotal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	type key struct {
		id   int64
		unit string
	}
	sums := map[key]decimal.Decimal{}
	for _, it := range r.s.st.items {
		o, ok := r.s.st.orders[it.OrderID]
		if !ok || o.OrderedAt.Before(filters.From) || !o.OrderedAt.Before(filters.To) {
			continue
		}
		if filters.Source != nil && *filters.Source != "" && string(o.Source) != *filters.Source {
			continue
		}
		for _, u := range it.Usage {
			k := key{u.IngredientID, u.Unit}
			sums[k] = sums[k].Add(u.Quantity)
		}
	}
	totals := make([]models.UsageTotal, 0, len(sums))
	for k, q := range sums {
		totals = append(totals, models.UsageTotal{IngredientID: k.id, Unit: k.unit, Quantity: q})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].IngredientID != totals[j].IngredientID {
			return totals[i].IngredientID < totals[j].IngredientID
		}
		return totals[i].Unit < totals[j].Unit
	})
	return totals, nil
}

type catalogRepo struct{ s *Store }

func (r *catalogRepo) Load(_ repositories.SQLExecutor) (*models.Catalog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return cloneCatalog(r.s.st.catalog), nil
}

func (r *catalogRepo) Exists(_ repositories.SQLExecutor, ref models.EntityRef) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.st.catalog.Has(ref), nil
}

func (r *catalogRepo) CreateProduct(_ repositories.SQLExecutor, product *models.Product) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.st.catalog.Products {
		if p.Active && strings.EqualFold(p.Name, product.Name) {
			return 0, fmt.Errorf("%w: product '%s' already exists", repositories.ErrDuplicateKey, product.Name)
		}
	}
	product.ID = r.s.st.newID()
	cp := *product
	r.s.st.catalog.Products[product.ID] = &cp
	return product.ID, nil
}

func (r *catalogRepo) CreateIngredient(_ repositories.SQLExecutor, ingredient *models.Ingredient) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, i := range r.s.st.catalog.Ingredients {
		if i.Active && strings.EqualFold(i.Name, ingredient.Name) {
			return 0, fmt.Errorf("%w: ingredient '%s' already exists", repositories.ErrDuplicateKey, ingredient.Name)
		}
	}
	ingredient.ID = r.s.st.newID()
	ci := *ingredient
	r.s.st.catalog.Ingredients[ingredient.ID] = &ci
	return ingredient.ID, nil
}

func (r *catalogRepo) CreateModifier(_ repositories.SQLExecutor, modifier *models.RecipeModifier) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.st.catalog.Modifiers {
		if m.Name == modifier.Name {
			return 0, fmt.Errorf("%w: modifier '%s' already exists", repositories.ErrDuplicateKey, modifier.Name)
		}
	}
	modifier.ID = r.s.st.newID()
	cm := *modifier
	r.s.st.catalog.Modifiers[modifier.ID] = &cm
	return modifier.ID, nil
}

func (r *catalogRepo) UpsertModifierAlias(_ repositories.SQLExecutor, alias *models.RecipeModifierAlias) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := matching.Normalize(alias.NormalizedLabel)
	for i, a := range r.s.st.catalog.Aliases {
		if a.NormalizedLabel == key {
			alias.ID = a.ID
			r.s.st.catalog.Aliases[i] = *alias
			return nil
		}
	}
	alias.ID = r.s.st.newID()
	r.s.st.catalog.Aliases = append(r.s.st.catalog.Aliases, *alias)
	return nil
}

func paginate[T any](items []T, page, pageSize int) []T {
	if pageSize <= 0 {
		return items
	}
	start := 0
	if page > 1 {
		start = (page - 1) * pageSize
	}
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

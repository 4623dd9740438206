// Package memory keeps every repository in process memory. Transactions
// snapshot the whole store on Begin and restore it on Rollback, which is
// enough isolation for one writer at a time.
package memory

import (
	"database/sql"
	"errors"
	"sync"

	"cafe_inventory/internal/models"
	"cafe_inventory/internal/repositories"
)

var errNoSQL = errors.New("memory store does not execute SQL")

type state struct {
	nextID   int64
	unmapped map[int64]models.UnmappedItem
	orders   map[int64]models.Order
	items    map[int64]models.OrderItem
	logs     []models.ImportLog
	catalog  *models.Catalog
}

// Store is a transactional in-memory backend for all repositories.
type Store struct {
	mu       sync.Mutex
	st       *state
	beginErr error
}

// NewStore seeds the store with catalog (which may be nil).
func NewStore(catalog *models.Catalog) *Store {
	if catalog == nil {
		catalog = models.NewCatalog()
	}
	st := &state{
		unmapped: map[int64]models.UnmappedItem{},
		orders:   map[int64]models.Order{},
		items:    map[int64]models.OrderItem{},
		catalog:  cloneCatalog(catalog),
	}
	for id := range catalog.Products {
		st.bump(id)
	}
	for id := range catalog.Ingredients {
		st.bump(id)
	}
	for id := range catalog.Modifiers {
		st.bump(id)
	}
	return &Store{st: st}
}

func (s *state) bump(id int64) {
	if id > s.nextID {
		s.nextID = id
	}
}

func (s *state) newID() int64 {
	s.nextID++
	return s.nextID
}

// FailBegin makes every following Begin return err; nil restores normal behaviour.
func (s *Store) FailBegin(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beginErr = err
}

// Begin snapshots the store.
func (s *Store) Begin() (repositories.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return &tx{store: s, snapshot: s.st.clone()}, nil
}

func (s *Store) UnmappedItems() repositories.UnmappedItemRepository { return &unmappedRepo{s} }
func (s *Store) ImportLogs() repositories.ImportLogRepository       { return &importLogRepo{s} }
func (s *Store) Orders() repositories.OrderRepository               { return &orderRepo{s} }
func (s *Store) Catalog() repositories.CatalogRepository            { return &catalogRepo{s} }

// Counts of persisted rows, for assertions.
func (s *Store) UnmappedCount() int  { s.mu.Lock(); defer s.mu.Unlock(); return len(s.st.unmapped) }
func (s *Store) OrderCount() int     { s.mu.Lock(); defer s.mu.Unlock(); return len(s.st.orders) }
func (s *Store) OrderItemCount() int { s.mu.Lock(); defer s.mu.Unlock(); return len(s.st.items) }
func (s *Store) ImportLogCount() int { s.mu.Lock(); defer s.mu.Unlock(); return len(s.st.logs) }

type tx struct {
	store    *Store
	snapshot *state
	done     bool
}

func (t *tx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	t.store.mu.Lock()
	t.store.st = t.snapshot
	t.store.mu.Unlock()
	return nil
}

func (t *tx) Exec(string, ...interface{}) (sql.Result, error) { return nil, errNoSQL }
func (t *tx) Query(string, ...interface{}) (*sql.Rows, error) { return nil, errNoSQL }

// QueryRow is never called by the memory repositories.
func (t *tx) QueryRow(string, ...interface{}) *sql.Row { return nil }

func (s *state) clone() *state {
	c := &state{
		nextID:   s.nextID,
		unmapped: make(map[int64]models.UnmappedItem, len(s.unmapped)),
		orders:   make(map[int64]models.Order, len(s.orders)),
		items:    make(map[int64]models.OrderItem, len(s.items)),
		logs:     append([]models.ImportLog(nil), s.logs...),
		catalog:  cloneCatalog(s.catalog),
	}
	for id, u := range s.unmapped {
		c.unmapped[id] = cloneUnmapped(u)
	}
	for id, o := range s.orders {
		c.orders[id] = o
	}
	for id, it := range s.items {
		it.Modifiers = append([]string(nil), it.Modifiers...)
		it.Usage = append([]models.UsageLine(nil), it.Usage...)
		c.items[id] = it
	}
	return c
}

func cloneUnmapped(u models.UnmappedItem) models.UnmappedItem {
	u.LastModifiers = append([]string(nil), u.LastModifiers...)
	u.SeenCombos = append([]string(nil), u.SeenCombos...)
	u.LastRawRow = append([]byte(nil), u.LastRawRow...)
	if u.ResolvedTo != nil {
		ref := *u.ResolvedTo
		u.ResolvedTo = &ref
	}
	return u
}

func cloneCatalog(c *models.Catalog) *models.Catalog {
	out := models.NewCatalog()
	for name, u := range c.Units {
		cu := *u
		out.Units[name] = &cu
	}
	for id, p := range c.Products {
		cp := *p
		cp.Recipe = append([]models.RecipeItem(nil), p.Recipe...)
		cp.ModifierIDs = append([]int64(nil), p.ModifierIDs...)
		out.Products[id] = &cp
	}
	for id, i := range c.Ingredients {
		ci := *i
		out.Ingredients[id] = &ci
	}
	for id, m := range c.Modifiers {
		cm := *m
		cm.ExpandsTo = append([]int64(nil), m.ExpandsTo...)
		out.Modifiers[id] = &cm
	}
	out.Aliases = append(out.Aliases, c.Aliases...)
	return out
}

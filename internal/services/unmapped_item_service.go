package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cafe_inventory/internal/matching"
	"cafe_inventory/internal/models"
	"cafe_inventory/internal/repositories"

	"github.com/shopspring/decimal"
)

var (
	ErrUnmappedItemNotFound = errors.New("unmapped item not found")
	ErrInvalidTransition    = errors.New("invalid unmapped item state transition")
	ErrInvalidResolution    = errors.New("invalid resolution target")
	ErrValidation           = errors.New("validation failed")
)

const defaultPageSize = 25

// RecordOutcome tells the caller what Record did to the ledger row.
type RecordOutcome string

const (
	OutcomeCreated        RecordOutcome = "created"
	OutcomeUpdated        RecordOutcome = "updated"
	OutcomeReopened       RecordOutcome = "reopened"
	OutcomeResolvedRepeat RecordOutcome = "resolved_repeat"
)

// Observation is one sighting of a label the matcher could not resolve.
type Observation struct {
	Source     models.Source
	ItemType   models.EntityKind
	RawLabel   string
	PricePoint string
	Reason     matching.Reason
	Modifiers  []string
	RawRow     json.RawMessage
	SeenAt     time.Time
}

// LinkRequest resolves a ledger row to an existing catalog entity.
type LinkRequest struct {
	Kind       models.EntityKind `json:"kind" binding:"required,oneof=product ingredient modifier"`
	ID         int64             `json:"id" binding:"required,gt=0"`
	ResolvedBy string            `json:"resolved_by"`
	Note       *string           `json:"note"`
}

// CreateEntityRequest mints a catalog entity from a ledger row, then links it.
// Kind defaults to the row's item type and Name to its raw label.
type CreateEntityRequest struct {
	Kind        models.EntityKind `json:"kind" binding:"omitempty,oneof=product ingredient modifier"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Behavior    string            `json:"behavior" binding:"omitempty,oneof=add replace scale expand"`
	Temperature string            `json:"temperature" binding:"omitempty,oneof=hot cold"`
	ResolvedBy  string            `json:"resolved_by"`
	Note        *string           `json:"note"`
}

type IgnoreRequest struct {
	ResolvedBy string  `json:"resolved_by"`
	Note       *string `json:"note"`
}

const (
	BulkLink   = "link"
	BulkCreate = "create"
	BulkIgnore = "ignore"
)

// BulkRequest applies one action to explicit ids or to every row matching Filters.
type BulkRequest struct {
	Action     string                  `json:"action" binding:"required,oneof=link create ignore"`
	IDs        []int64                 `json:"ids"`
	Filters    *models.UnmappedFilters `json:"filters"`
	Target     *models.EntityRef       `json:"target"`
	Kind       models.EntityKind       `json:"kind" binding:"omitempty,oneof=product ingredient modifier"`
	ResolvedBy string                  `json:"resolved_by"`
	Note       *string                 `json:"note"`
}

type BulkSkip struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

type BulkResult struct {
	Processed int        `json:"processed"`
	Applied   int        `json:"applied"`
	Skipped   []BulkSkip `json:"skipped"`
}

// UnmappedItemService owns the unmapped-item ledger and its review actions.
type UnmappedItemService interface {
	// Record runs inside the caller's transaction.
	Record(executor repositories.SQLExecutor, obs Observation) (*models.UnmappedItem, RecordOutcome, error)
	List(filters models.UnmappedFilters) ([]models.UnmappedItem, int, error)
	Get(id int64) (*models.UnmappedItem, error)
	Link(id int64, req LinkRequest) (*models.UnmappedItem, error)
	Create(id int64, req CreateEntityRequest) (*models.UnmappedItem, error)
	Ignore(id int64, req IgnoreRequest) (*models.UnmappedItem, error)
	Bulk(req BulkRequest) (*BulkResult, error)
}

type unmappedItemService struct {
	repo        repositories.UnmappedItemRepository
	catalogRepo repositories.CatalogRepository
	txm         repositories.TxManager
	now         func() time.Time
}

// NewUnmappedItemService creates a new instance of UnmappedItemService.
func NewUnmappedItemService(
	repo repositories.UnmappedItemRepository,
	catalogRepo repositories.CatalogRepository,
	txm repositories.TxManager,
) UnmappedItemService {
	return &unmappedItemService{repo: repo, catalogRepo: catalogRepo, txm: txm, now: time.Now}
}

func (s *unmappedItemService) Record(executor repositories.SQLExecutor, obs Observation) (*models.UnmappedItem, RecordOutcome, error) {
	if !obs.Source.Valid() || !obs.ItemType.Valid() {
		return nil, "", fmt.Errorf("%w: source %q, item type %q", ErrValidation, obs.Source, obs.ItemType)
	}
	key := models.UnmappedKey{
		Source:               obs.Source,
		ItemType:             obs.ItemType,
		NormalizedLabel:      matching.Normalize(obs.RawLabel),
		NormalizedPricePoint: matching.Normalize(obs.PricePoint),
	}
	if key.NormalizedLabel == "" {
		return nil, "", fmt.Errorf("%w: label is empty", ErrValidation)
	}
	if obs.SeenAt.IsZero() {
		obs.SeenAt = s.now()
	}
	combo := matching.ComboKey(obs.Modifiers)

	item, err := s.repo.GetByKey(executor, key)
	if errors.Is(err, repositories.ErrNotFound) {
		item = newUnmappedItem(key, obs, combo)
		if _, err = s.repo.Create(executor, item); err == nil {
			return item, OutcomeCreated, nil
		}
		if !errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, "", err
		}
		// another run created the row first; merge into it
		item, err = s.repo.GetByKey(executor, key)
	}
	if err != nil {
		return nil, "", err
	}

	outcome := observe(item, obs, combo)
	if err := s.repo.Update(executor, item); err != nil {
		return nil, "", err
	}
	return item, outcome, nil
}

func newUnmappedItem(key models.UnmappedKey, obs Observation, combo string) *models.UnmappedItem {
	return &models.UnmappedItem{
		Source:               key.Source,
		ItemType:             key.ItemType,
		RawLabel:             strings.TrimSpace(obs.RawLabel),
		PricePoint:           strings.TrimSpace(obs.PricePoint),
		NormalizedLabel:      key.NormalizedLabel,
		NormalizedPricePoint: key.NormalizedPricePoint,
		LastReason:           string(obs.Reason),
		LastModifiers:        nonNil(obs.Modifiers),
		SeenCombos:           []string{combo},
		OccurrenceCount:      1,
		FirstSeen:            obs.SeenAt,
		LastSeen:             obs.SeenAt,
		State:                models.StateOpen,
		LastRawRow:           obs.RawRow,
	}
}

// observe folds a reappearance into item. A resolved row reopens only when
// the modifier combination was never captured before.
func observe(item *models.UnmappedItem, obs Observation, combo string) RecordOutcome {
	item.OccurrenceCount++
	if obs.SeenAt.After(item.LastSeen) {
		item.LastSeen = obs.SeenAt
	}
	item.RawLabel = strings.TrimSpace(obs.RawLabel)
	item.PricePoint = strings.TrimSpace(obs.PricePoint)
	item.LastReason = string(obs.Reason)
	item.LastModifiers = nonNil(obs.Modifiers)
	if len(obs.RawRow) > 0 {
		item.LastRawRow = obs.RawRow
	}

	isNew := !item.HasCombo(combo)
	if isNew {
		item.SeenCombos = append(item.SeenCombos, combo)
		sort.Strings(item.SeenCombos)
	}

	if item.State != models.StateResolved {
		return OutcomeUpdated
	}
	if !isNew {
		return OutcomeResolvedRepeat
	}
	item.State = models.StateOpen
	item.ResolvedTo = nil
	item.ResolvedBy = nil
	item.ResolvedAt = nil
	return OutcomeReopened
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}

func (s *unmappedItemService) List(filters models.UnmappedFilters) ([]models.UnmappedItem, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = defaultPageSize
	}
	if filters.State != nil && *filters.State != "" {
		switch models.UnmappedState(*filters.State) {
		case models.StateOpen, models.StateResolved, models.StateIgnored:
		default:
			return nil, 0, fmt.Errorf("%w: unknown state %q", ErrValidation, *filters.State)
		}
	}
	return s.repo.List(filters)
}

func (s *unmappedItemService) Get(id int64) (*models.UnmappedItem, error) {
	tx, err := s.txm.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return s.load(tx, id)
}

func (s *unmappedItemService) load(executor repositories.SQLExecutor, id int64) (*models.UnmappedItem, error) {
	item, err := s.repo.GetByID(executor, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUnmappedItemNotFound
		}
		return nil, err
	}
	return item, nil
}

func (s *unmappedItemService) Link(id int64, req LinkRequest) (*models.UnmappedItem, error) {
	return s.inTx(id, func(tx repositories.Tx, item *models.UnmappedItem) error {
		return s.link(tx, item, models.EntityRef{Kind: req.Kind, ID: req.ID}, req.ResolvedBy, req.Note)
	})
}

func (s *unmappedItemService) Create(id int64, req CreateEntityRequest) (*models.UnmappedItem, error) {
	return s.inTx(id, func(tx repositories.Tx, item *models.UnmappedItem) error {
		return s.create(tx, item, req)
	})
}

func (s *unmappedItemService) Ignore(id int64, req IgnoreRequest) (*models.UnmappedItem, error) {
	return s.inTx(id, func(tx repositories.Tx, item *models.UnmappedItem) error {
		return s.ignore(tx, item, req.ResolvedBy, req.Note)
	})
}

// inTx loads and locks the row, runs fn and commits.
func (s *unmappedItemService) inTx(id int64, fn func(tx repositories.Tx, item *models.UnmappedItem) error) (*models.UnmappedItem, error) {
	tx, err := s.txm.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	item, err := s.load(tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(tx, item); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit unmapped item %d: %w", id, err)
	}
	return item, nil
}

func canResolve(state models.UnmappedState) error {
	if state == models.StateOpen || state == models.StateIgnored {
		return nil
	}
	return fmt.Errorf("%w: item is %s", ErrInvalidTransition, state)
}

func (s *unmappedItemService) link(executor repositories.SQLExecutor, item *models.UnmappedItem, ref models.EntityRef, by string, note *string) error {
	if err := canResolve(item.State); err != nil {
		return err
	}
	if !ref.Kind.Valid() || ref.ID <= 0 {
		return fmt.Errorf("%w: %s %d", ErrInvalidResolution, ref.Kind, ref.ID)
	}
	exists, err := s.catalogRepo.Exists(executor, ref)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s %d does not exist", ErrInvalidResolution, ref.Kind, ref.ID)
	}

	now := s.now()
	item.State = models.StateResolved
	item.ResolvedTo = &ref
	item.ResolvedAt = &now
	item.ResolvedBy = nilIfEmpty(by)
	if note != nil {
		item.Note = note
	}

	if item.ItemType == models.KindModifier && ref.Kind == models.KindModifier {
		alias := &models.RecipeModifierAlias{ModifierID: ref.ID, RawLabel: item.RawLabel, NormalizedLabel: item.NormalizedLabel}
		if err := s.catalogRepo.UpsertModifierAlias(executor, alias); err != nil {
			return err
		}
	}
	return s.repo.Update(executor, item)
}

func (s *unmappedItemService) create(executor repositories.SQLExecutor, item *models.UnmappedItem, req CreateEntityRequest) error {
	if err := canResolve(item.State); err != nil {
		return err
	}
	kind := req.Kind
	if kind == "" {
		kind = item.ItemType
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = item.RawLabel
	}

	ref := models.EntityRef{Kind: kind}
	var err error
	switch kind {
	case models.KindProduct:
		ref.ID, err = s.catalogRepo.CreateProduct(executor, &models.Product{Name: name, Temperature: req.Temperature, Active: true})
	case models.KindIngredient:
		ref.ID, err = s.catalogRepo.CreateIngredient(executor, &models.Ingredient{Name: name, Type: strings.ToUpper(req.Type), Active: true})
	case models.KindModifier:
		behavior := req.Behavior
		if behavior == "" {
			behavior = models.BehaviorAdd
		}
		ref.ID, err = s.catalogRepo.CreateModifier(executor, &models.RecipeModifier{
			Name:           name,
			Type:           strings.ToUpper(req.Type),
			Behavior:       behavior,
			QuantityFactor: decimal.NewFromInt(1),
		})
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidResolution, kind)
	}
	if err != nil {
		return err
	}
	return s.link(executor, item, ref, req.ResolvedBy, req.Note)
}

func (s *unmappedItemService) ignore(executor repositories.SQLExecutor, item *models.UnmappedItem, by string, note *string) error {
	switch item.State {
	case models.StateIgnored:
		return nil
	case models.StateOpen:
	default:
		return fmt.Errorf("%w: item is %s", ErrInvalidTransition, item.State)
	}
	now := s.now()
	item.State = models.StateIgnored
	item.ResolvedTo = nil
	item.ResolvedAt = &now
	item.ResolvedBy = nilIfEmpty(by)
	if note != nil {
		item.Note = note
	}
	return s.repo.Update(executor, item)
}

// Bulk handles every selected row in its own transaction. Rows whose state or
// target rejects the action are reported as skipped.
func (s *unmappedItemService) Bulk(req BulkRequest) (*BulkResult, error) {
	switch req.Action {
	case BulkLink:
		if req.Target == nil {
			return nil, fmt.Errorf("%w: link requires a target", ErrValidation)
		}
	case BulkCreate, BulkIgnore:
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrValidation, req.Action)
	}

	ids := req.IDs
	if len(ids) == 0 {
		if req.Filters == nil {
			return nil, fmt.Errorf("%w: ids or filters are required", ErrValidation)
		}
		filters := *req.Filters
		filters.Page, filters.PageSize = 0, 0
		items, _, err := s.repo.List(filters)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			ids = append(ids, it.ID)
		}
	}

	result := &BulkResult{Skipped: []BulkSkip{}}
	for _, id := range ids {
		result.Processed++
		var err error
		switch req.Action {
		case BulkLink:
			_, err = s.Link(id, LinkRequest{Kind: req.Target.Kind, ID: req.Target.ID, ResolvedBy: req.ResolvedBy, Note: req.Note})
		case BulkCreate:
			_, err = s.Create(id, CreateEntityRequest{Kind: req.Kind, ResolvedBy: req.ResolvedBy, Note: req.Note})
		case BulkIgnore:
			_, err = s.Ignore(id, IgnoreRequest{ResolvedBy: req.ResolvedBy, Note: req.Note})
		}
		switch {
		case err == nil:
			result.Applied++
		case errors.Is(err, ErrUnmappedItemNotFound), errors.Is(err, ErrInvalidTransition),
			errors.Is(err, ErrInvalidResolution), errors.Is(err, repositories.ErrDuplicateKey):
			result.Skipped = append(result.Skipped, BulkSkip{ID: id, Reason: err.Error()})
		default:
			return result, err
		}
	}
	return result, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

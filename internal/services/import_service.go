package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cafe_inventory/internal/matching"
	"cafe_inventory/internal/models"
	"cafe_inventory/internal/modifiers"
	"cafe_inventory/internal/repositories"
	"cafe_inventory/internal/scaling"
	"cafe_inventory/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	ErrRunFailed         = errors.New("import run failed")
	ErrUnsupportedSource = errors.New("unsupported import source")
)

// stageLedger marks rows mapped through a resolved ledger entry.
const stageLedger matching.Stage = "ledger"

// RawRow is one point-of-sale line as produced by a source parser.
type RawRow struct {
	Line       int               `json:"line"`
	Label      string            `json:"label" validate:"required"`
	Quantity   string            `json:"quantity" validate:"required"`
	Price      string            `json:"price"` // line total
	PricePoint string            `json:"price_point,omitempty"`
	Modifiers  []string          `json:"modifiers,omitempty"`
	OrderID    string            `json:"order_id,omitempty"`
	OrderedAt  time.Time         `json:"ordered_at" validate:"required"`
	Source     models.Source     `json:"source,omitempty" validate:"omitempty,oneof=square shopify"`
	Raw        map[string]string `json:"raw,omitempty"`
}

type RunRequest struct {
	Rows        []RawRow
	Source      models.Source
	DryRun      bool
	ArtifactRef string
}

type RowError struct {
	Line    int    `json:"line"`
	Label   string `json:"label"`
	Message string `json:"message"`
}

// ImportSummary is the result of one run.
type ImportSummary struct {
	RunID             string        `json:"run_id"`
	Source            models.Source `json:"source"`
	DryRun            bool          `json:"dry_run"`
	RowsProcessed     int           `json:"rows_processed"`
	Created           int           `json:"created"`
	Updated           int           `json:"updated"`
	Skipped           int           `json:"skipped"`
	Unmapped          int           `json:"unmapped"`
	Errors            int           `json:"errors"`
	ModifiersUnmapped int           `json:"modifiers_unmapped"`
	Reopened          int           `json:"reopened"`
	RowErrors         []RowError    `json:"row_errors"`
	Log               string        `json:"log"`
	StartedAt         time.Time     `json:"started_at"`
	Elapsed           time.Duration `json:"elapsed"`
}

// Text renders the summary header and counters followed by the run log.
func (s *ImportSummary) Text() string {
	var b strings.Builder
	mode := "Committed"
	if s.DryRun {
		mode = "Dry Run"
	}
	fmt.Fprintf(&b, "Import Summary (%s)\n", mode)
	fmt.Fprintf(&b, "  Run:                %s\n", s.RunID)
	fmt.Fprintf(&b, "  Source:             %s\n", s.Source)
	fmt.Fprintf(&b, "  Rows processed:     %d\n", s.RowsProcessed)
	fmt.Fprintf(&b, "  Created:            %d\n", s.Created)
	fmt.Fprintf(&b, "  Updated:            %d\n", s.Updated)
	fmt.Fprintf(&b, "  Skipped:            %d\n", s.Skipped)
	fmt.Fprintf(&b, "  Unmapped:           %d\n", s.Unmapped)
	fmt.Fprintf(&b, "  Modifiers unmapped: %d\n", s.ModifiersUnmapped)
	fmt.Fprintf(&b, "  Reopened:           %d\n", s.Reopened)
	fmt.Fprintf(&b, "  Errors:             %d\n", s.Errors)
	fmt.Fprintf(&b, "  Elapsed:            %s\n", s.Elapsed.Round(time.Millisecond))
	if s.Log != "" {
		b.WriteString("\n")
		b.WriteString(s.Log)
	}
	return b.String()
}

// ImportService drives point-of-sale rows through matching, the ledger and
// the modifier engine.
type ImportService interface {
	Run(ctx context.Context, req RunRequest) (*ImportSummary, error)
	ListLogs(filters models.ImportLogFilters) ([]models.ImportLog, int, error)
}

type importService struct {
	catalogRepo repositories.CatalogRepository
	orderRepo   repositories.OrderRepository
	logRepo     repositories.ImportLogRepository
	ledger      UnmappedItemService
	txm         repositories.TxManager
	rules       ImportRules
	validate    *validator.Validate
	now         func() time.Time
}

// NewImportService creates a new instance of ImportService.
func NewImportService(
	cr repositories.CatalogRepository,
	or repositories.OrderRepository,
	lr repositories.ImportLogRepository,
	ledger UnmappedItemService,
	txm repositories.TxManager,
	rules ImportRules,
) ImportService {
	return &importService{
		catalogRepo: cr,
		orderRepo:   or,
		logRepo:     lr,
		ledger:      ledger,
		txm:         txm,
		rules:       rules,
		validate:    validator.New(),
		now:         time.Now,
	}
}

// runContext carries the per-run counters and log through one run.
type runContext struct {
	summary *ImportSummary
	buf     *bytes.Buffer
	log     zerolog.Logger
	tx      repositories.Tx
	idx     *catalogIndex
	orders  map[string]*orderSlot
}

// orderSlot tracks an order's database id and how many of its rows were seen.
type orderSlot struct {
	id   int64
	rows int
}

func (s *importService) newRunContext(req RunRequest) *runContext {
	buf := &bytes.Buffer{}
	return &runContext{
		summary: &ImportSummary{
			RunID:     uuid.NewString(),
			Source:    req.Source,
			DryRun:    req.DryRun,
			RowErrors: []RowError{},
			StartedAt: s.now(),
		},
		buf:    buf,
		log:    utils.NewRunLogger(buf),
		orders: map[string]*orderSlot{},
	}
}

func (rc *runContext) rowError(row RawRow, err error) {
	rc.summary.Errors++
	rc.summary.RowErrors = append(rc.summary.RowErrors, RowError{Line: row.Line, Label: row.Label, Message: err.Error()})
	rc.log.Error().Int("line", row.Line).Str("label", row.Label).Err(err).Msg("Row failed")
}

func (s *importService) Run(ctx context.Context, req RunRequest) (*ImportSummary, error) {
	if !req.Source.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, req.Source)
	}
	rc := s.newRunContext(req)
	rc.log.Info().Str("source", string(req.Source)).Bool("dry_run", req.DryRun).Int("rows", len(req.Rows)).Msg("Import started")

	runErr := s.process(ctx, rc, req)
	if runErr != nil {
		rc.log.Error().Err(runErr).Msg("Import aborted, no changes were kept")
	} else if req.DryRun {
		rc.log.Info().Msg("Dry run, all changes rolled back")
	} else {
		rc.log.Info().Msg("Import committed")
	}

	rc.summary.Log = rc.buf.String()
	rc.summary.Elapsed = s.now().Sub(rc.summary.StartedAt)
	s.writeImportLog(rc.summary, req, runErr)

	utils.LogInfo("Import run finished", map[string]interface{}{
		"run_id":  rc.summary.RunID,
		"source":  req.Source,
		"dry_run": req.DryRun,
		"created": rc.summary.Created,
		"updated": rc.summary.Updated,
		"errors":  rc.summary.Errors,
	})
	if runErr != nil {
		return rc.summary, fmt.Errorf("%w: %v", ErrRunFailed, runErr)
	}
	return rc.summary, nil
}

// process runs every row in one transaction, rolled back for dry runs and on
// any run-level failure.
func (s *importService) process(ctx context.Context, rc *runContext, req RunRequest) error {
	tx, err := s.txm.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	rc.tx = tx

	catalog, err := s.catalogRepo.Load(tx)
	if err != nil {
		return err
	}
	rc.idx = newCatalogIndex(catalog, s.rules)

	for _, row := range req.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if row.Source == "" {
			row.Source = req.Source
		}
		if err := s.processRow(rc, row); err != nil {
			return err
		}
	}

	if req.DryRun {
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	return nil
}

// processRow returns an error only for failures that must abort the run.
// Row-level failures and panics are counted and logged.
func (s *importService) processRow(rc *runContext, row RawRow) (fatal error) {
	rc.summary.RowsProcessed++
	defer func() {
		if r := recover(); r != nil {
			rc.rowError(row, fmt.Errorf("unexpected failure: %v", r))
			fatal = nil
		}
	}()

	err := s.handleRow(rc, row)
	if err == nil {
		return nil
	}
	if errors.Is(err, repositories.ErrDatabaseError) {
		return err
	}
	rc.rowError(row, err)
	return nil
}

func (s *importService) handleRow(rc *runContext, row RawRow) error {
	if err := s.validate.Struct(row); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, utils.ValidationDetails(err))
	}
	qty, err := parseAmount(row.Quantity)
	if err != nil {
		return fmt.Errorf("%w: quantity: %v", ErrValidation, err)
	}
	price := decimal.Zero
	if strings.TrimSpace(row.Price) != "" {
		if price, err = parseAmount(row.Price); err != nil {
			return fmt.Errorf("%w: price: %v", ErrValidation, err)
		}
	}

	externalID := row.OrderID
	if externalID == "" {
		externalID = fmt.Sprintf("%s-%s", row.Source, row.OrderedAt.UTC().Format("20060102T150405"))
	}
	slot, ok := rc.orders[externalID]
	if !ok {
		slot = &orderSlot{}
		rc.orders[externalID] = slot
	}
	// line keys follow the row's position in its order whatever the outcome,
	// so re-runs address the same order items
	slot.rows++
	lineKey := strconv.Itoa(slot.rows)

	if !qty.IsPositive() {
		rc.summary.Skipped++
		rc.log.Info().Int("line", row.Line).Str("label", row.Label).Str("quantity", qty.String()).Msg("Skipped non-positive quantity")
		return nil
	}

	res, err := s.resolveLine(rc, row)
	if err != nil || !res.Matched {
		return err
	}

	lines, unmatchedMods, err := s.effectiveRecipe(rc, row, res)
	if err != nil {
		return err
	}
	for i := range lines {
		lines[i].Quantity = lines[i].Quantity.Mul(qty)
	}
	usage, err := rc.idx.usage(lines)
	if err != nil {
		return err
	}

	for _, m := range unmatchedMods {
		if _, _, err := s.recordUnmapped(rc, row, models.KindModifier, m.label, "", m.reason, nil); err != nil {
			return err
		}
		rc.summary.ModifiersUnmapped++
		rc.log.Warn().Int("line", row.Line).Str("modifier", m.label).Str("reason", string(m.reason)).Msg("Modifier unmapped")
	}

	if slot.id == 0 {
		order := &models.Order{ExternalID: externalID, Source: row.Source, OrderedAt: row.OrderedAt}
		if _, err := s.orderRepo.UpsertOrder(rc.tx, order); err != nil {
			return err
		}
		slot.id = order.ID
	}

	item := &models.OrderItem{
		OrderID:   slot.id,
		LineKey:   lineKey,
		RawLabel:  row.Label,
		Modifiers: nonNil(row.Modifiers),
		Quantity:  qty,
		UnitPrice: price.Div(qty),
		Usage:     usage,
	}
	if row.PricePoint != "" {
		pp := row.PricePoint
		item.PricePoint = &pp
	}
	id := res.Ref.ID
	switch res.Ref.Kind {
	case models.KindProduct:
		item.ProductID = &id
	case models.KindIngredient:
		item.IngredientID = &id
	case models.KindModifier:
		item.ModifierID = &id
	}

	created, err := s.orderRepo.UpsertOrderItem(rc.tx, item)
	if err != nil {
		return err
	}
	action := "Updated"
	if created {
		rc.summary.Created++
		action = "Created"
	} else {
		rc.summary.Updated++
	}
	rc.log.Info().Int("line", row.Line).Str("label", row.Label).Str("match", res.Name).
		Str("stage", string(res.Stage)).Int("usage_lines", len(usage)).Msg(action)
	return nil
}

// resolveLine matches the sold label. Unmatched labels go to the ledger; a
// ledger row already resolved to a product or ingredient supplies the match.
func (s *importService) resolveLine(rc *runContext, row RawRow) (matching.Result, error) {
	res := rc.idx.matchLine(row.Label, row.PricePoint, row.Source)
	if res.Matched {
		return res, nil
	}

	item, outcome, err := s.recordUnmapped(rc, row, models.KindProduct, row.Label, row.PricePoint, res.Reason, row.Modifiers)
	if err != nil {
		return matching.Result{}, err
	}
	if outcome == OutcomeResolvedRepeat && item.ResolvedTo != nil && item.ResolvedTo.Kind != models.KindModifier &&
		rc.idx.catalog.Has(*item.ResolvedTo) {
		ref := *item.ResolvedTo
		return matching.Result{Matched: true, Ref: ref, Name: rc.idx.name(ref), Stage: stageLedger, Score: 1, Source: row.Source}, nil
	}

	rc.summary.Unmapped++
	if outcome == OutcomeReopened {
		rc.summary.Reopened++
	}
	rc.log.Warn().Int("line", row.Line).Str("label", row.Label).Str("price_point", row.PricePoint).
		Str("reason", string(res.Reason)).Str("detail", res.Detail).Str("ledger", string(outcome)).Msg("Unmapped")
	return res, nil
}

func (s *importService) recordUnmapped(rc *runContext, row RawRow, kind models.EntityKind, label, pricePoint string, reason matching.Reason, mods []string) (*models.UnmappedItem, RecordOutcome, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return nil, "", fmt.Errorf("encoding raw row: %w", err)
	}
	return s.ledger.Record(rc.tx, Observation{
		Source:     row.Source,
		ItemType:   kind,
		RawLabel:   label,
		PricePoint: pricePoint,
		Reason:     reason,
		Modifiers:  mods,
		RawRow:     raw,
		SeenAt:     s.now(),
	})
}

type unmatchedModifier struct {
	label  string
	reason matching.Reason
}

// effectiveRecipe computes the ingredient lines of one sold unit: the base
// recipe scaled to the sold size, then the row's modifiers, then the cup.
func (s *importService) effectiveRecipe(rc *runContext, row RawRow, res matching.Result) ([]modifiers.Item, []unmatchedModifier, error) {
	idx := rc.idx
	if res.Ref.Kind == models.KindIngredient {
		it, err := idx.ingredientItem(res.Ref.ID, decimal.NewFromInt(1), "")
		if err != nil {
			return nil, nil, err
		}
		return []modifiers.Item{it}, nil, nil
	}
	if res.Ref.Kind == models.KindModifier {
		// sold on its own line, e.g. "Extra Shot": its behaviors run on an empty recipe
		bs, err := idx.behaviors(res.Ref.ID)
		if err != nil {
			return nil, nil, err
		}
		return modifiers.Apply(nil, bs), nil, nil
	}
	if res.Ref.Kind != models.KindProduct {
		return nil, nil, fmt.Errorf("cannot sell %s %d as a line item", res.Ref.Kind, res.Ref.ID)
	}

	product := idx.catalog.Products[res.Ref.ID]
	base, err := idx.baseRecipe(res.Ref.ID)
	if err != nil {
		return nil, nil, err
	}

	table := s.rules.Sizes
	d := scaling.Infer(s.rules.Keywords, table, scaling.Temperature(product.Temperature), row.Label, row.PricePoint)
	if d.Size != "" {
		factor, err := table.Between(idx.recipeBase(product, table), scaling.SizeRef{Temperature: d.Temperature, Size: d.Size})
		if err != nil {
			return nil, nil, err
		}
		for i := range base {
			base[i].Quantity = base[i].Quantity.Mul(factor)
		}
	}

	var behaviors []modifiers.Behavior
	var unmatched []unmatchedModifier
	for _, label := range row.Modifiers {
		// blank or price-only labels ("$0.50") carry nothing the ledger can key on
		if matching.Normalize(label) == "" {
			if strings.TrimSpace(label) != "" {
				rc.log.Debug().Int("line", row.Line).Str("modifier", label).Msg("Ignored modifier without a name")
			}
			continue
		}
		mr := idx.matchModifier(label, row.Source)
		if !mr.Matched {
			unmatched = append(unmatched, unmatchedModifier{label: label, reason: mr.Reason})
			continue
		}
		bs, err := idx.behaviors(mr.Ref.ID)
		if err != nil {
			return nil, nil, err
		}
		behaviors = append(behaviors, bs...)
	}

	lines := modifiers.Apply(base, behaviors)
	if cup, ok := idx.cupItem(s.rules, d); ok {
		lines = append(lines, cup)
	}
	rc.log.Debug().Int("line", row.Line).Str("temperature", string(d.Temperature)).Str("size", d.Size).
		Int("modifiers", len(behaviors)).Msg("Effective recipe")
	return lines, unmatched, nil
}

// parseAmount accepts "$1,234.50" style numbers.
func parseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		cleaned = "-" + strings.Trim(cleaned, "()")
	}
	return decimal.NewFromString(cleaned)
}

// writeImportLog stores the run record in its own transaction so dry and
// failed runs are recorded too.
func (s *importService) writeImportLog(summary *ImportSummary, req RunRequest, runErr error) {
	finished := s.now()
	entry := &models.ImportLog{
		RunID:             summary.RunID,
		Source:            summary.Source,
		RunType:           models.RunTypeLive,
		Status:            models.RunStatusSucceeded,
		RowsProcessed:     summary.RowsProcessed,
		Created:           summary.Created,
		Updated:           summary.Updated,
		Skipped:           summary.Skipped,
		Unmapped:          summary.Unmapped,
		Errors:            summary.Errors,
		ModifiersUnmapped: summary.ModifiersUnmapped,
		Summary:           summary.Text(),
		StartedAt:         summary.StartedAt,
		FinishedAt:        &finished,
	}
	if req.DryRun {
		entry.RunType = models.RunTypeDryRun
	}
	if req.ArtifactRef != "" {
		ref := req.ArtifactRef
		entry.ArtifactRef = &ref
	}
	if runErr != nil {
		msg := runErr.Error()
		entry.Status = models.RunStatusFailed
		entry.Error = &msg
	}

	tx, err := s.txm.Begin()
	if err != nil {
		utils.LogError(err, "Failed to open transaction for import log")
		return
	}
	defer tx.Rollback()
	if _, err := s.logRepo.Create(tx, entry); err != nil {
		utils.LogError(err, "Failed to write import log")
		return
	}
	if err := tx.Commit(); err != nil {
		utils.LogError(err, "Failed to commit import log")
	}
}

func (s *importService) ListLogs(filters models.ImportLogFilters) ([]models.ImportLog, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = defaultPageSize
	}
	return s.logRepo.List(filters)
}

package services

import (
	"testing"

	"cafe_inventory/internal/matching"
	"cafe_inventory/internal/models"
	"cafe_inventory/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(t *testing.T, f *fixture, obs Observation) (*models.UnmappedItem, RecordOutcome) {
	t.Helper()
	tx, err := f.store.Begin()
	require.NoError(t, err)
	item, outcome, err := f.ledger.Record(tx, obs)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return item, outcome
}

func drinkObs(label string, mods ...string) Observation {
	return Observation{
		Source:    models.SourceSquare,
		ItemType:  models.KindProduct,
		RawLabel:  label,
		Reason:    matching.ReasonNoCandidate,
		Modifiers: mods,
	}
}

func TestRecordDeduplicatesByNormalizedKey(t *testing.T) {
	f := newFixture(t)

	first, outcome := record(t, f, drinkObs("Lavender Fog"))
	assert.Equal(t, OutcomeCreated, outcome)
	assert.Equal(t, 1, first.OccurrenceCount)

	second, outcome := record(t, f, drinkObs("  LAVENDER   fog $5.25"))
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.OccurrenceCount)
	assert.Equal(t, 1, f.store.UnmappedCount())
}

func TestRecordSeparatesPricePoints(t *testing.T) {
	f := newFixture(t)

	obs := drinkObs("Lavender Fog")
	record(t, f, obs)
	obs.PricePoint = "Large"
	_, outcome := record(t, f, obs)

	assert.Equal(t, OutcomeCreated, outcome)
	assert.Equal(t, 2, f.store.UnmappedCount())
}

func TestRecordRejectsEmptyLabel(t *testing.T) {
	f := newFixture(t)
	tx, err := f.store.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	_, _, err = f.ledger.Record(tx, drinkObs(" -- "))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestReopenOnNewModifierCombination(t *testing.T) {
	f := newFixture(t)

	item, _ := record(t, f, drinkObs("Lavender Fog", "Oat Milk"))
	_, err := f.ledger.Link(item.ID, LinkRequest{Kind: models.KindProduct, ID: prodLatte, ResolvedBy: "sam"})
	require.NoError(t, err)

	// same combination in another order stays resolved
	repeat, outcome := record(t, f, drinkObs("Lavender Fog", "oat milk"))
	assert.Equal(t, OutcomeResolvedRepeat, outcome)
	assert.Equal(t, models.StateResolved, repeat.State)
	require.NotNil(t, repeat.ResolvedTo)
	assert.Equal(t, prodLatte, repeat.ResolvedTo.ID)

	reopened, outcome := record(t, f, drinkObs("Lavender Fog", "Oat Milk", "Vanilla"))
	assert.Equal(t, OutcomeReopened, outcome)
	assert.Equal(t, models.StateOpen, reopened.State)
	assert.Nil(t, reopened.ResolvedTo)
	assert.Nil(t, reopened.ResolvedBy)
	assert.Equal(t, 3, reopened.OccurrenceCount)
	assert.Equal(t, []string{"oat milk", "oat milk|vanilla"}, reopened.SeenCombos)
	assert.Equal(t, 1, f.store.UnmappedCount())
}

func TestIgnoredRowKeepsStateOnReappearance(t *testing.T) {
	f := newFixture(t)

	item, _ := record(t, f, drinkObs("Gift Card"))
	_, err := f.ledger.Ignore(item.ID, IgnoreRequest{})
	require.NoError(t, err)

	again, outcome := record(t, f, drinkObs("Gift Card", "Wrapping"))
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, models.StateIgnored, again.State)
	assert.Equal(t, 2, again.OccurrenceCount)
}

// racingRepo misses the first lookup, as if a concurrent run inserted the
// row between our read and our insert.
type racingRepo struct {
	repositories.UnmappedItemRepository
	miss bool
}

func (r *racingRepo) GetByKey(executor repositories.SQLExecutor, key models.UnmappedKey) (*models.UnmappedItem, error) {
	if r.miss {
		r.miss = false
		return nil, repositories.ErrNotFound
	}
	return r.UnmappedItemRepository.GetByKey(executor, key)
}

func TestRecordMergesAfterDuplicateKeyRace(t *testing.T) {
	f := newFixture(t)
	record(t, f, drinkObs("Lavender Fog"))

	racing := NewUnmappedItemService(&racingRepo{UnmappedItemRepository: f.store.UnmappedItems(), miss: true}, f.store.Catalog(), f.store)
	tx, err := f.store.Begin()
	require.NoError(t, err)
	item, outcome, err := racing.Record(tx, drinkObs("Lavender Fog"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, 2, item.OccurrenceCount)
	assert.Equal(t, 1, f.store.UnmappedCount())
}

func TestLinkValidatesTargetAndState(t *testing.T) {
	f := newFixture(t)
	item, _ := record(t, f, drinkObs("Lavender Fog"))

	_, err := f.ledger.Link(item.ID, LinkRequest{Kind: models.KindProduct, ID: 999})
	assert.ErrorIs(t, err, ErrInvalidResolution)

	_, err = f.ledger.Link(404, LinkRequest{Kind: models.KindProduct, ID: prodLatte})
	assert.ErrorIs(t, err, ErrUnmappedItemNotFound)

	linked, err := f.ledger.Link(item.ID, LinkRequest{Kind: models.KindProduct, ID: prodLatte, ResolvedBy: "sam"})
	require.NoError(t, err)
	assert.Equal(t, models.StateResolved, linked.State)
	require.NotNil(t, linked.ResolvedBy)
	assert.Equal(t, "sam", *linked.ResolvedBy)
	assert.NotNil(t, linked.ResolvedAt)

	_, err = f.ledger.Link(item.ID, LinkRequest{Kind: models.KindProduct, ID: prodBananaLatte})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.ledger.Ignore(item.ID, IgnoreRequest{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestIgnoreTransitions(t *testing.T) {
	f := newFixture(t)
	item, _ := record(t, f, drinkObs("Gift Card"))

	ignored, err := f.ledger.Ignore(item.ID, IgnoreRequest{ResolvedBy: "ops"})
	require.NoError(t, err)
	assert.Equal(t, models.StateIgnored, ignored.State)

	again, err := f.ledger.Ignore(item.ID, IgnoreRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.StateIgnored, again.State)

	linked, err := f.ledger.Link(item.ID, LinkRequest{Kind: models.KindIngredient, ID: ingVanilla})
	require.NoError(t, err)
	assert.Equal(t, models.StateResolved, linked.State)
}

func TestLinkModifierRowCreatesAlias(t *testing.T) {
	f := newFixture(t)
	item, _ := record(t, f, Observation{
		Source:   models.SourceSquare,
		ItemType: models.KindModifier,
		RawLabel: "Oatly",
		Reason:   matching.ReasonNoCandidate,
	})

	_, err := f.ledger.Link(item.ID, LinkRequest{Kind: models.KindModifier, ID: modOat})
	require.NoError(t, err)

	catalog, err := f.store.Catalog().Load(nil)
	require.NoError(t, err)
	require.Len(t, catalog.Aliases, 1)
	assert.Equal(t, modOat, catalog.Aliases[0].ModifierID)
	assert.Equal(t, "oatly", catalog.Aliases[0].NormalizedLabel)
}

func TestCreateMintsEntityAndLinks(t *testing.T) {
	f := newFixture(t)
	item, _ := record(t, f, drinkObs("Lavender Fog"))

	created, err := f.ledger.Create(item.ID, CreateEntityRequest{Temperature: "hot"})
	require.NoError(t, err)
	require.NotNil(t, created.ResolvedTo)
	assert.Equal(t, models.KindProduct, created.ResolvedTo.Kind)

	catalog, err := f.store.Catalog().Load(nil)
	require.NoError(t, err)
	product, ok := catalog.Products[created.ResolvedTo.ID]
	require.True(t, ok)
	assert.Equal(t, "Lavender Fog", product.Name)

	dup, _ := record(t, f, Observation{Source: models.SourceShopify, ItemType: models.KindProduct, RawLabel: "Lavender Fog"})
	_, err = f.ledger.Create(dup.ID, CreateEntityRequest{})
	assert.ErrorIs(t, err, repositories.ErrDuplicateKey)

	still, err := f.ledger.Get(dup.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateOpen, still.State)
}

func TestBulkSkipsRowsThatRejectTheAction(t *testing.T) {
	f := newFixture(t)
	a, _ := record(t, f, drinkObs("Gift Card"))
	b, _ := record(t, f, drinkObs("Tip"))
	c, _ := record(t, f, drinkObs("Lavender Fog"))
	_, err := f.ledger.Link(c.ID, LinkRequest{Kind: models.KindProduct, ID: prodLatte})
	require.NoError(t, err)

	res, err := f.ledger.Bulk(BulkRequest{Action: BulkIgnore, IDs: []int64{a.ID, b.ID, c.ID, 404}})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Processed)
	assert.Equal(t, 2, res.Applied)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, c.ID, res.Skipped[0].ID)
	assert.Equal(t, int64(404), res.Skipped[1].ID)
}

func TestBulkLinkByFilter(t *testing.T) {
	f := newFixture(t)
	record(t, f, drinkObs("Lavender Fog"))
	record(t, f, drinkObs("Lavender Fog Iced"))
	record(t, f, Observation{Source: models.SourceShopify, ItemType: models.KindProduct, RawLabel: "Lavender Fog"})

	source := string(models.SourceSquare)
	res, err := f.ledger.Bulk(BulkRequest{
		Action:  BulkLink,
		Filters: &models.UnmappedFilters{Source: &source},
		Target:  &models.EntityRef{Kind: models.KindProduct, ID: prodLatte},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)

	state := string(models.StateOpen)
	open, total, err := f.ledger.List(models.UnmappedFilters{State: &state})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, models.SourceShopify, open[0].Source)
}

func TestBulkValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.Bulk(BulkRequest{Action: BulkIgnore})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.ledger.Bulk(BulkRequest{Action: BulkLink, IDs: []int64{1}})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.ledger.Bulk(BulkRequest{Action: "merge", IDs: []int64{1}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListRejectsUnknownState(t *testing.T) {
	f := newFixture(t)
	state := "archived"
	_, _, err := f.ledger.List(models.UnmappedFilters{State: &state})
	assert.ErrorIs(t, err, ErrValidation)
}

package services

import (
	"fmt"
	"sort"
	"strings"

	"cafe_inventory/internal/config"
	"cafe_inventory/internal/matching"
	"cafe_inventory/internal/models"
	"cafe_inventory/internal/modifiers"
	"cafe_inventory/internal/scaling"

	"github.com/shopspring/decimal"
)

// ImportRules bundles the configurable matching and sizing inputs of a run.
type ImportRules struct {
	Line     matching.Rules
	Modifier matching.Rules
	Sizes    *scaling.SizeTable
	Keywords scaling.Keywords
	// Cup names the cup ingredient for a temperature and size; nil disables cups.
	Cup    func(temp scaling.Temperature, size string) (string, bool)
	Scorer matching.Scorer
}

// NewImportRules derives the run rules from the loaded rules file.
func NewImportRules(r *config.Rules) (ImportRules, error) {
	sizes, err := r.SizeTable()
	if err != nil {
		return ImportRules{}, err
	}
	return ImportRules{
		Line:     r.LineRules(),
		Modifier: r.ModifierRules(),
		Sizes:    sizes,
		Keywords: r.Keywords(),
		Cup:      r.CupFor,
		Scorer:   matching.SequenceScorer{},
	}, nil
}

// catalogIndex is a catalog snapshot prepared for one import run.
type catalogIndex struct {
	catalog       *models.Catalog
	lines         *matching.Matcher
	mods          *matching.Matcher
	ingredientsBy map[string]*models.Ingredient // normalized name
	children      map[int64][]int64
}

func newCatalogIndex(c *models.Catalog, rules ImportRules) *catalogIndex {
	idx := &catalogIndex{
		catalog:       c,
		ingredientsBy: make(map[string]*models.Ingredient, len(c.Ingredients)),
		children:      make(map[int64][]int64),
	}

	var lineCandidates, modCandidates []matching.Candidate
	for _, id := range sortedKeys(c.Products) {
		p := c.Products[id]
		if !p.Active {
			continue
		}
		lineCandidates = append(lineCandidates, matching.Candidate{Ref: models.EntityRef{Kind: models.KindProduct, ID: p.ID}, Name: p.Name})
	}
	for _, id := range sortedKeys(c.Ingredients) {
		ing := c.Ingredients[id]
		if !ing.Active {
			continue
		}
		lineCandidates = append(lineCandidates, matching.Candidate{Ref: models.EntityRef{Kind: models.KindIngredient, ID: ing.ID}, Name: ing.Name})
		idx.ingredientsBy[matching.Normalize(ing.Name)] = ing
	}
	for _, id := range sortedKeys(c.Modifiers) {
		m := c.Modifiers[id]
		cand := matching.Candidate{Ref: models.EntityRef{Kind: models.KindModifier, ID: m.ID}, Name: m.Name}
		lineCandidates = append(lineCandidates, cand)
		modCandidates = append(modCandidates, cand)
		if len(m.ExpandsTo) > 0 {
			idx.children[m.ID] = m.ExpandsTo
		}
	}

	aliases := make([]matching.Alias, 0, len(c.Aliases))
	for _, a := range c.Aliases {
		m, ok := c.Modifiers[a.ModifierID]
		if !ok {
			continue
		}
		aliases = append(aliases, matching.Alias{
			Label:  a.RawLabel,
			Target: models.EntityRef{Kind: models.KindModifier, ID: m.ID},
			Name:   m.Name,
		})
	}

	idx.lines = matching.New(lineCandidates, nil, rules.Line, rules.Scorer)
	idx.mods = matching.New(modCandidates, aliases, rules.Modifier, rules.Scorer)
	return idx
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (idx *catalogIndex) matchLine(label, pricePoint string, source models.Source) matching.Result {
	return idx.lines.Match(label, pricePoint, source)
}

func (idx *catalogIndex) matchModifier(label string, source models.Source) matching.Result {
	return idx.mods.Match(label, "", source)
}

func (idx *catalogIndex) name(ref models.EntityRef) string {
	switch ref.Kind {
	case models.KindProduct:
		if p, ok := idx.catalog.Products[ref.ID]; ok {
			return p.Name
		}
	case models.KindIngredient:
		if i, ok := idx.catalog.Ingredients[ref.ID]; ok {
			return i.Name
		}
	case models.KindModifier:
		if m, ok := idx.catalog.Modifiers[ref.ID]; ok {
			return m.Name
		}
	}
	return ""
}

func (idx *catalogIndex) ingredientItem(id int64, qty decimal.Decimal, unit string) (modifiers.Item, error) {
	ing, ok := idx.catalog.Ingredients[id]
	if !ok {
		return modifiers.Item{}, fmt.Errorf("ingredient %d is not in the catalog", id)
	}
	if unit == "" {
		unit = ing.UnitName()
	}
	return modifiers.Item{IngredientID: ing.ID, Name: ing.Name, Type: ing.Type, Quantity: qty, Unit: unit}, nil
}

// baseRecipe returns the product's recipe as engine items.
func (idx *catalogIndex) baseRecipe(productID int64) ([]modifiers.Item, error) {
	p, ok := idx.catalog.Products[productID]
	if !ok {
		return nil, fmt.Errorf("product %d is not in the catalog", productID)
	}
	items := make([]modifiers.Item, 0, len(p.Recipe))
	for _, ri := range p.Recipe {
		it, err := idx.ingredientItem(ri.IngredientID, ri.Quantity, ri.Unit)
		if err != nil {
			return nil, fmt.Errorf("recipe of %s: %w", p.Name, err)
		}
		items = append(items, it)
	}
	return items, nil
}

func selectorOf(ts models.TargetSelector) modifiers.Selector {
	return modifiers.Selector{Names: ts.ByName, Types: ts.ByType}
}

// behaviors converts a stored modifier into engine behaviors. Expand modifiers
// gather the ingredient lines of every modifier reachable through expands_to;
// scale modifiers among them keep their own behavior.
func (idx *catalogIndex) behaviors(modifierID int64) ([]modifiers.Behavior, error) {
	m, ok := idx.catalog.Modifiers[modifierID]
	if !ok {
		return nil, fmt.Errorf("modifier %d is not in the catalog", modifierID)
	}
	switch strings.ToLower(m.Behavior) {
	case models.BehaviorAdd:
		it, err := idx.modifierItem(m)
		if err != nil {
			return nil, err
		}
		return []modifiers.Behavior{modifiers.Add{Item: it}}, nil

	case models.BehaviorReplace:
		it, err := idx.modifierItem(m)
		if err != nil {
			return nil, err
		}
		return []modifiers.Behavior{modifiers.Replace{Target: selectorOf(m.TargetSelector), With: it}}, nil

	case models.BehaviorScale:
		target := selectorOf(m.TargetSelector)
		if target.Empty() && m.IngredientID != nil {
			target.IngredientIDs = []int64{*m.IngredientID}
		}
		return []modifiers.Behavior{modifiers.Scale{Target: target, Factor: m.QuantityFactor}}, nil

	case models.BehaviorExpand:
		expand := modifiers.Expand{Placeholder: selectorOf(m.TargetSelector)}
		var extra []modifiers.Behavior
		for _, childID := range modifiers.Flatten(m.ID, idx.children) {
			child, ok := idx.catalog.Modifiers[childID]
			if !ok {
				return nil, fmt.Errorf("modifier %s expands to unknown modifier %d", m.Name, childID)
			}
			switch strings.ToLower(child.Behavior) {
			case models.BehaviorExpand:
				// its children are already part of the flattened walk
			case models.BehaviorScale:
				nested, err := idx.behaviors(child.ID)
				if err != nil {
					return nil, err
				}
				extra = append(extra, nested...)
			default:
				it, err := idx.modifierItem(child)
				if err != nil {
					return nil, err
				}
				expand.Into = append(expand.Into, it)
			}
		}
		return append([]modifiers.Behavior{expand}, extra...), nil
	}
	return nil, fmt.Errorf("modifier %s has unknown behavior %q", m.Name, m.Behavior)
}

func (idx *catalogIndex) modifierItem(m *models.RecipeModifier) (modifiers.Item, error) {
	if m.IngredientID == nil {
		return modifiers.Item{}, fmt.Errorf("modifier %s (%s) has no ingredient", m.Name, m.Behavior)
	}
	return idx.ingredientItem(*m.IngredientID, m.BaseQuantity, m.Unit)
}

// recipeBase is the size the product's recipe quantities are written for.
func (idx *catalogIndex) recipeBase(p *models.Product, table *scaling.SizeTable) scaling.SizeRef {
	base := table.RecipeBase()
	if p.BaseTemperature != nil && *p.BaseTemperature != "" {
		base.Temperature = scaling.Temperature(strings.ToLower(*p.BaseTemperature))
	}
	if p.BaseSize != nil && *p.BaseSize != "" {
		base.Size = strings.ToLower(*p.BaseSize)
	}
	return base
}

// cupItem returns the configured cup ingredient line, if the cup exists in the catalog.
func (idx *catalogIndex) cupItem(rules ImportRules, d scaling.Descriptors) (modifiers.Item, bool) {
	if rules.Cup == nil {
		return modifiers.Item{}, false
	}
	name, ok := rules.Cup(d.Temperature, d.Size)
	if !ok {
		return modifiers.Item{}, false
	}
	ing, ok := idx.ingredientsBy[matching.Normalize(name)]
	if !ok {
		return modifiers.Item{}, false
	}
	return modifiers.Item{IngredientID: ing.ID, Name: ing.Name, Type: ing.Type, Quantity: decimal.NewFromInt(1), Unit: ing.UnitName()}, true
}

// usage merges effective lines per ingredient, converting each into the
// ingredient's own unit. Lines in units of another family fail with
// *scaling.UnitMismatchError.
func (idx *catalogIndex) usage(items []modifiers.Item) ([]models.UsageLine, error) {
	var out []models.UsageLine
	pos := map[int64]int{}
	for _, it := range items {
		ing, ok := idx.catalog.Ingredients[it.IngredientID]
		if !ok {
			return nil, fmt.Errorf("ingredient %d is not in the catalog", it.IngredientID)
		}
		qty, err := idx.toIngredientUnit(it, ing)
		if err != nil {
			return nil, err
		}
		if i, seen := pos[ing.ID]; seen {
			out[i].Quantity = out[i].Quantity.Add(qty)
			continue
		}
		pos[ing.ID] = len(out)
		out = append(out, models.UsageLine{IngredientID: ing.ID, Name: ing.Name, Quantity: qty, Unit: ing.UnitName()})
	}
	return out, nil
}

func (idx *catalogIndex) toIngredientUnit(it modifiers.Item, ing *models.Ingredient) (decimal.Decimal, error) {
	if it.Unit == "" || strings.EqualFold(it.Unit, ing.UnitName()) || ing.Unit == nil {
		return it.Quantity, nil
	}
	from, ok := idx.catalog.Units[strings.ToLower(it.Unit)]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown unit %q on %s", it.Unit, ing.Name)
	}
	converted, err := scaling.Convert(
		scaling.Quantity{Amount: it.Quantity, Unit: unitOf(from)},
		unitOf(ing.Unit),
	)
	if err != nil {
		return decimal.Zero, err
	}
	return converted.Amount, nil
}

func unitOf(u *models.UnitType) scaling.Unit {
	return scaling.Unit{Name: u.Name, Family: scaling.Family(u.Family), ToBase: u.ToBase}
}

package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cafe_inventory/internal/models"

	"github.com/shopspring/decimal"
)

// CatalogRepository loads the product/ingredient/modifier catalog and mints
// new catalog entries for ledger resolutions.
type CatalogRepository interface {
	Load(executor SQLExecutor) (*models.Catalog, error)
	Exists(executor SQLExecutor, ref models.EntityRef) (bool, error)
	CreateProduct(executor SQLExecutor, product *models.Product) (int64, error)
	CreateIngredient(executor SQLExecutor, ingredient *models.Ingredient) (int64, error)
	CreateModifier(executor SQLExecutor, modifier *models.RecipeModifier) (int64, error)
	UpsertModifierAlias(executor SQLExecutor, alias *models.RecipeModifierAlias) error
}

type catalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository creates a new instance of CatalogRepository.
func NewCatalogRepository(db *sql.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func queryEach(executor SQLExecutor, what, query string, scan func(s scanner) error) error {
	rows, err := executor.Query(query)
	if err != nil {
		return fmt.Errorf("%w: querying %s: %v", ErrDatabaseError, what, err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("%w: scanning %s: %v", ErrDatabaseError, what, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: iterating %s: %v", ErrDatabaseError, what, err)
	}
	return nil
}

func (r *catalogRepository) Load(executor SQLExecutor) (*models.Catalog, error) {
	catalog := models.NewCatalog()
	units := map[int64]*models.UnitType{}

	err := queryEach(executor, "unit types", `SELECT id, name, family, to_base FROM unit_types`, func(s scanner) error {
		var u models.UnitType
		if err := s.Scan(&u.ID, &u.Name, &u.Family, &u.ToBase); err != nil {
			return err
		}
		units[u.ID] = &u
		catalog.Units[strings.ToLower(u.Name)] = &u
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = queryEach(executor, "ingredients", `
        SELECT id, name, type, unit_type_id, cost_per_unit, reorder_point, lead_time_days, active,
               roast, origin, bag_size_g, packaging, created_at, updated_at
        FROM ingredients`, func(s scanner) error {
		var ing models.Ingredient
		var roast models.RoastProfile
		var bagSize decimal.NullDecimal
		if err := s.Scan(&ing.ID, &ing.Name, &ing.Type, &ing.UnitTypeID, &ing.CostPerUnit, &ing.ReorderPoint, &ing.LeadTimeDays, &ing.Active,
			&roast.Roast, &roast.Origin, &bagSize, &roast.Packaging, &ing.CreatedAt, &ing.UpdatedAt); err != nil {
			return err
		}
		if bagSize.Valid {
			roast.BagSizeG = &bagSize.Decimal
		}
		if roast.Roast != nil || roast.Origin != nil || roast.BagSizeG != nil || roast.Packaging != nil {
			ing.Roast = &roast
		}
		if ing.UnitTypeID != nil {
			ing.Unit = units[*ing.UnitTypeID]
		}
		catalog.Ingredients[ing.ID] = &ing
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = queryEach(executor, "products", `
        SELECT id, name, sku, category, temperature, active, base_temperature, base_size, created_at, updated_at
        FROM products`, func(s scanner) error {
		var p models.Product
		if err := s.Scan(&p.ID, &p.Name, &p.SKU, &p.Category, &p.Temperature, &p.Active, &p.BaseTemperature, &p.BaseSize, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return err
		}
		catalog.Products[p.ID] = &p
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = queryEach(executor, "recipe items", `
        SELECT id, product_id, ingredient_id, quantity, unit FROM recipe_items ORDER BY product_id, id`, func(s scanner) error {
		var it models.RecipeItem
		if err := s.Scan(&it.ID, &it.ProductID, &it.IngredientID, &it.Quantity, &it.Unit); err != nil {
			return err
		}
		if p, ok := catalog.Products[it.ProductID]; ok {
			p.Recipe = append(p.Recipe, it)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = queryEach(executor, "product modifiers", `
        SELECT product_id, modifier_id FROM product_modifiers ORDER BY product_id, modifier_id`, func(s scanner) error {
		var productID, modifierID int64
		if err := s.Scan(&productID, &modifierID); err != nil {
			return err
		}
		if p, ok := catalog.Products[productID]; ok {
			p.ModifierIDs = append(p.ModifierIDs, modifierID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = queryEach(executor, "recipe modifiers", `
        SELECT id, name, type, behavior, ingredient_id, base_quantity, unit, quantity_factor, target_selector,
               cost_per_unit, price_per_unit, created_at, updated_at
        FROM recipe_modifiers`, func(s scanner) error {
		var m models.RecipeModifier
		var selector []byte
		var cost, price decimal.NullDecimal
		if err := s.Scan(&m.ID, &m.Name, &m.Type, &m.Behavior, &m.IngredientID, &m.BaseQuantity, &m.Unit, &m.QuantityFactor, &selector,
			&cost, &price, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return err
		}
		if len(selector) > 0 {
			if err := json.Unmarshal(selector, &m.TargetSelector); err != nil {
				return fmt.Errorf("target selector of modifier %d: %w", m.ID, err)
			}
		}
		if cost.Valid {
			m.CostPerUnit = &cost.Decimal
		}
		if price.Valid {
			m.PricePerUnit = &price.Decimal
		}
		catalog.Modifiers[m.ID] = &m
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = queryEach(executor, "modifier expansions", `
        SELECT modifier_id, child_id FROM recipe_modifier_expansions ORDER BY modifier_id, position, child_id`, func(s scanner) error {
		var parentID, childID int64
		if err := s.Scan(&parentID, &childID); err != nil {
			return err
		}
		if m, ok := catalog.Modifiers[parentID]; ok {
			m.ExpandsTo = append(m.ExpandsTo, childID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = queryEach(executor, "modifier aliases", `
        SELECT id, modifier_id, raw_label, normalized_label, created_at FROM recipe_modifier_aliases`, func(s scanner) error {
		var a models.RecipeModifierAlias
		if err := s.Scan(&a.ID, &a.ModifierID, &a.RawLabel, &a.NormalizedLabel, &a.CreatedAt); err != nil {
			return err
		}
		catalog.Aliases = append(catalog.Aliases, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return catalog, nil
}

func (r *catalogRepository) Exists(executor SQLExecutor, ref models.EntityRef) (bool, error) {
	var table string
	switch ref.Kind {
	case models.KindProduct:
		table = "products"
	case models.KindIngredient:
		table = "ingredients"
	case models.KindModifier:
		table = "recipe_modifiers"
	default:
		return false, nil
	}
	var exists bool
	if err := executor.QueryRow(`SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, ref.ID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: checking %s %d: %v", ErrDatabaseError, ref.Kind, ref.ID, err)
	}
	return exists, nil
}

func (r *catalogRepository) CreateProduct(executor SQLExecutor, product *models.Product) (int64, error) {
	query := `INSERT INTO products (name, sku, category, temperature, active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $6)
	          RETURNING id`
	currentTime := time.Now()
	err := executor.QueryRow(query, product.Name, product.SKU, product.Category, product.Temperature, product.Active, currentTime).Scan(&product.ID)
	if err != nil {
		if pqErr, ok := isUniqueViolation(err); ok {
			return 0, fmt.Errorf("%w: product '%s' already exists (constraint: %s)", ErrDuplicateKey, product.Name, pqErr.Constraint)
		}
		return 0, fmt.Errorf("%w: creating product: %v", ErrDatabaseError, err)
	}
	product.CreatedAt, product.UpdatedAt = currentTime, currentTime
	return product.ID, nil
}

func (r *catalogRepository) CreateIngredient(executor SQLExecutor, ingredient *models.Ingredient) (int64, error) {
	query := `INSERT INTO ingredients (name, type, unit_type_id, cost_per_unit, reorder_point, lead_time_days, active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	          RETURNING id`
	currentTime := time.Now()
	err := executor.QueryRow(query,
		ingredient.Name, ingredient.Type, ingredient.UnitTypeID, ingredient.CostPerUnit, ingredient.ReorderPoint,
		ingredient.LeadTimeDays, ingredient.Active, currentTime,
	).Scan(&ingredient.ID)
	if err != nil {
		if pqErr, ok := isUniqueViolation(err); ok {
			return 0, fmt.Errorf("%w: ingredient '%s' already exists (constraint: %s)", ErrDuplicateKey, ingredient.Name, pqErr.Constraint)
		}
		return 0, fmt.Errorf("%w: creating ingredient: %v", ErrDatabaseError, err)
	}
	ingredient.CreatedAt, ingredient.UpdatedAt = currentTime, currentTime
	return ingredient.ID, nil
}

func (r *catalogRepository) CreateModifier(executor SQLExecutor, modifier *models.RecipeModifier) (int64, error) {
	selector, err := json.Marshal(modifier.TargetSelector)
	if err != nil {
		return 0, fmt.Errorf("encoding target selector: %w", err)
	}
	query := `INSERT INTO recipe_modifiers
	            (name, type, behavior, ingredient_id, base_quantity, unit, quantity_factor, target_selector, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	          RETURNING id`
	currentTime := time.Now()
	err = executor.QueryRow(query,
		modifier.Name, modifier.Type, modifier.Behavior, modifier.IngredientID, modifier.BaseQuantity, modifier.Unit,
		modifier.QuantityFactor, string(selector), currentTime,
	).Scan(&modifier.ID)
	if err != nil {
		if pqErr, ok := isUniqueViolation(err); ok {
			return 0, fmt.Errorf("%w: modifier '%s' already exists (constraint: %s)", ErrDuplicateKey, modifier.Name, pqErr.Constraint)
		}
		return 0, fmt.Errorf("%w: creating modifier: %v", ErrDatabaseError, err)
	}
	modifier.CreatedAt, modifier.UpdatedAt = currentTime, currentTime
	return modifier.ID, nil
}

func (r *catalogRepository) UpsertModifierAlias(executor SQLExecutor, alias *models.RecipeModifierAlias) error {
	query := `INSERT INTO recipe_modifier_aliases (modifier_id, raw_label, normalized_label, created_at)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (normalized_label) DO UPDATE SET modifier_id = EXCLUDED.modifier_id, raw_label = EXCLUDED.raw_label
	          RETURNING id`
	if alias.CreatedAt.IsZero() {
		alias.CreatedAt = time.Now()
	}
	err := executor.QueryRow(query, alias.ModifierID, alias.RawLabel, alias.NormalizedLabel, alias.CreatedAt).Scan(&alias.ID)
	if err != nil {
		return fmt.Errorf("%w: upserting alias '%s': %v", ErrDatabaseError, alias.NormalizedLabel, err)
	}
	return nil
}

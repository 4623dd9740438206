package services

import (
	"testing"

	"cafe_inventory/internal/matching"
	"cafe_inventory/internal/models"
	"cafe_inventory/internal/repositories/memory"
	"cafe_inventory/internal/scaling"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	ingBeans   int64 = 1
	ingWhole   int64 = 2
	ingOat     int64 = 3
	ingVanilla int64 = 4
	ingCupS    int64 = 5
	ingCupL    int64 = 6

	prodLatte       int64 = 10
	prodBananaLatte int64 = 11
	prodBroken      int64 = 12

	modOat       int64 = 20
	modVanilla   int64 = 21
	modHalfSweet int64 = 22
	modUpgrade   int64 = 23
	modShot      int64 = 24
	modOatPour   int64 = 25
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func int64Ptr(v int64) *int64 { return &v }

func testCatalog() *models.Catalog {
	c := models.NewCatalog()
	oz := &models.UnitType{ID: 1, Name: "oz", Family: "volume", ToBase: dec("29.5735")}
	g := &models.UnitType{ID: 2, Name: "g", Family: "mass", ToBase: dec("1")}
	each := &models.UnitType{ID: 3, Name: "each", Family: "count", ToBase: dec("1")}
	c.Units["oz"], c.Units["g"], c.Units["each"] = oz, g, each

	ing := func(id int64, name, typ string, unit *models.UnitType) {
		c.Ingredients[id] = &models.Ingredient{ID: id, Name: name, Type: typ, Unit: unit, Active: true}
	}
	ing(ingBeans, "Espresso Beans", "COFFEE", g)
	ing(ingWhole, "Whole Milk", "MILK", oz)
	ing(ingOat, "Oat Milk", "MILK", oz)
	ing(ingVanilla, "Vanilla Syrup", "SYRUP", oz)
	ing(ingCupS, "Hot Cup 12oz", "CUP", each)
	ing(ingCupL, "Hot Cup 20oz", "CUP", each)

	latteRecipe := func(pid int64, milkUnit string) []models.RecipeItem {
		return []models.RecipeItem{
			{ProductID: pid, IngredientID: ingBeans, Quantity: dec("18"), Unit: "g"},
			{ProductID: pid, IngredientID: ingWhole, Quantity: dec("8"), Unit: milkUnit},
		}
	}
	c.Products[prodLatte] = &models.Product{ID: prodLatte, Name: "Latte", Temperature: "hot", Active: true, Recipe: latteRecipe(prodLatte, "oz")}
	c.Products[prodBananaLatte] = &models.Product{ID: prodBananaLatte, Name: "Banana Bread Latte", Temperature: "hot", Active: true, Recipe: latteRecipe(prodBananaLatte, "oz")}
	c.Products[prodBroken] = &models.Product{ID: prodBroken, Name: "Broken Latte", Temperature: "hot", Active: true, Recipe: latteRecipe(prodBroken, "g")}

	c.Modifiers[modOat] = &models.RecipeModifier{ID: modOat, Name: "Oat Milk", Type: "MILK", Behavior: models.BehaviorReplace,
		IngredientID: int64Ptr(ingOat), TargetSelector: models.TargetSelector{ByType: []string{"MILK"}}}
	c.Modifiers[modVanilla] = &models.RecipeModifier{ID: modVanilla, Name: "Vanilla", Type: "SYRUP", Behavior: models.BehaviorAdd,
		IngredientID: int64Ptr(ingVanilla), BaseQuantity: dec("1"), Unit: "oz"}
	c.Modifiers[modHalfSweet] = &models.RecipeModifier{ID: modHalfSweet, Name: "Half Sweet", Behavior: models.BehaviorScale,
		QuantityFactor: dec("0.5"), TargetSelector: models.TargetSelector{ByType: []string{"SYRUP"}}}
	c.Modifiers[modUpgrade] = &models.RecipeModifier{ID: modUpgrade, Name: "Oat Upgrade", Behavior: models.BehaviorExpand,
		TargetSelector: models.TargetSelector{ByType: []string{"MILK"}}, ExpandsTo: []int64{modOatPour, modShot}}
	c.Modifiers[modShot] = &models.RecipeModifier{ID: modShot, Name: "Extra Shot", Behavior: models.BehaviorAdd,
		IngredientID: int64Ptr(ingBeans), BaseQuantity: dec("9"), Unit: "g"}
	c.Modifiers[modOatPour] = &models.RecipeModifier{ID: modOatPour, Name: "Oat Pour", Behavior: models.BehaviorAdd,
		IngredientID: int64Ptr(ingOat), BaseQuantity: dec("8"), Unit: "oz"}
	return c
}

func testRules(t *testing.T) ImportRules {
	t.Helper()
	table, err := scaling.NewSizeTable(
		map[string]map[string]float64{
			"hot":  {"small": 1.0, "large": 1.67},
			"cold": {"small": 1.34, "xl": 2.0},
		},
		map[string]string{"hot": "small", "cold": "small"},
		scaling.SizeRef{},
	)
	require.NoError(t, err)
	return ImportRules{
		Line: matching.Rules{
			ShellItems:   []string{"Barista's Choice"},
			StopWords:    []string{"and", "with", "the"},
			PartialKinds: []models.EntityKind{models.KindProduct},
		},
		Modifier: matching.Rules{StopWords: []string{"and", "with", "the"}},
		Sizes:    table,
		Keywords: scaling.Keywords{
			Cold:  []string{"iced"},
			Sizes: map[string]string{"small": "small", "large": "large", "xl": "xl"},
		},
		Cup: func(temp scaling.Temperature, size string) (string, bool) {
			if temp != scaling.Hot {
				return "", false
			}
			switch size {
			case "small":
				return "Hot Cup 12oz", true
			case "large":
				return "Hot Cup 20oz", true
			}
			return "", false
		},
	}
}

type fixture struct {
	store   *memory.Store
	ledger  UnmappedItemService
	imports ImportService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore(testCatalog())
	ledger := NewUnmappedItemService(store.UnmappedItems(), store.Catalog(), store)
	return &fixture{
		store:   store,
		ledger:  ledger,
		imports: NewImportService(store.Catalog(), store.Orders(), store.ImportLogs(), ledger, store, testRules(t)),
	}
}

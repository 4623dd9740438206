package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cafe_inventory/internal/models"
	"cafe_inventory/internal/repositories"
	"cafe_inventory/internal/scaling"

	"github.com/shopspring/decimal"
)

const reportDateLayout = "2006-01-02"

var ErrInvalidRange = errors.New("invalid report range")

// ReportService summarizes the ingredient usage stored on imported orders.
type ReportService interface {
	// Usage covers orders from the start of start to the end of end, both
	// dates taken in UTC.
	Usage(start, end time.Time, source *string) (*models.UsageReport, error)
}

type reportService struct {
	orderRepo   repositories.OrderRepository
	catalogRepo repositories.CatalogRepository
	txm         repositories.TxManager
}

// NewReportService creates a new instance of ReportService.
func NewReportService(or repositories.OrderRepository, cr repositories.CatalogRepository, txm repositories.TxManager) ReportService {
	return &reportService{orderRepo: or, catalogRepo: cr, txm: txm}
}

func (s *reportService) Usage(start, end time.Time, source *string) (*models.UsageReport, error) {
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, from.Format(reportDateLayout), end.Format(reportDateLayout))
	}

	totals, err := s.orderRepo.UsageTotals(models.UsageReportFilters{From: from, To: to, Source: source})
	if err != nil {
		return nil, fmt.Errorf("failed to sum usage: %w", err)
	}

	tx, err := s.txm.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	catalog, err := s.catalogRepo.Load(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	report := &models.UsageReport{
		StartDate:   from.Format(reportDateLayout),
		EndDate:     to.AddDate(0, 0, -1).Format(reportDateLayout),
		Rows:        make([]models.UsageReportRow, 0, len(totals)),
		TotalCost:   decimal.Zero,
		MissingCost: []string{},
	}
	missing := map[string]bool{}
	for _, t := range totals {
		row := models.UsageReportRow{IngredientID: t.IngredientID, Unit: t.Unit, Quantity: t.Quantity, DisplayQuantity: t.Quantity}
		if u, ok := catalog.Units[strings.ToLower(t.Unit)]; ok {
			row.DisplayQuantity = scaling.RoundForDisplay(t.Quantity, scaling.Family(u.Family))
		}
		ing, ok := catalog.Ingredients[t.IngredientID]
		if !ok {
			row.Name = fmt.Sprintf("ingredient %d", t.IngredientID)
			missing[row.Name] = true
			report.Rows = append(report.Rows, row)
			continue
		}
		row.Name = ing.Name
		if ing.CostPerUnit.IsZero() {
			missing[ing.Name] = true
			report.Rows = append(report.Rows, row)
			continue
		}
		unitCost := ing.CostPerUnit
		cost := t.Quantity.Mul(unitCost).Round(2)
		row.UnitCost, row.Cost = &unitCost, &cost
		report.TotalCost = report.TotalCost.Add(cost)
		report.Rows = append(report.Rows, row)
	}
	for name := range missing {
		report.MissingCost = append(report.MissingCost, name)
	}
	sort.Strings(report.MissingCost)
	sort.SliceStable(report.Rows, func(i, j int) bool { return report.Rows[i].Name < report.Rows[j].Name })
	return report, nil
}

// Package square reads Square "Item Details" CSV exports.
package square

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	_ "time/tzdata"

	"cafe_inventory/internal/models"
	"cafe_inventory/internal/services"
)

var ErrMissingColumn = errors.New("required column missing")

const (
	colDate        = "date"
	colTime        = "time"
	colTimeZone    = "time zone"
	colItem        = "item"
	colQty         = "qty"
	colPricePoint  = "price point name"
	colModifiers   = "modifiers applied"
	colGrossSales  = "gross sales"
	colTransaction = "transaction id"
)

var required = []string{colDate, colItem, colQty}

// Square writes Windows-style zone names.
var zones = map[string]string{
	"eastern time (us & canada)":  "America/New_York",
	"central time (us & canada)":  "America/Chicago",
	"mountain time (us & canada)": "America/Denver",
	"pacific time (us & canada)":  "America/Los_Angeles",
	"utc":                         "UTC",
}

// Parse reads every data row. Timestamps without a recognised "Time Zone"
// column are read in loc. Rows that fail to parse are still returned so the
// import counts them as row errors.
func Parse(r io.Reader, loc *time.Location) ([]services.RawRow, error) {
	if loc == nil {
		loc = time.UTC
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, col)
		}
	}

	var rows []services.RawRow
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", line, err)
		}
		get := func(col string) string {
			if i, ok := index[col]; ok && i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}
		if get(colItem) == "" && get(colQty) == "" {
			continue
		}

		raw := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(record) {
				raw[strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))] = record[i]
			}
		}
		rows = append(rows, services.RawRow{
			Line:       line,
			Label:      get(colItem),
			Quantity:   get(colQty),
			Price:      get(colGrossSales),
			PricePoint: get(colPricePoint),
			Modifiers:  SplitModifiers(get(colModifiers)),
			OrderID:    get(colTransaction),
			OrderedAt:  parseTimestamp(get(colDate), get(colTime), get(colTimeZone), loc),
			Source:     models.SourceSquare,
			Raw:        raw,
		})
	}
	return rows, nil
}

// SplitModifiers splits the comma separated "Modifiers Applied" cell.
func SplitModifiers(cell string) []string {
	var out []string
	for _, m := range strings.Split(cell, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// parseTimestamp returns the zero time when the date is unreadable.
func parseTimestamp(date, clock, zone string, fallback *time.Location) time.Time {
	loc := fallback
	if name, ok := zones[strings.ToLower(zone)]; ok {
		if l, err := time.LoadLocation(name); err == nil {
			loc = l
		}
	}
	if clock == "" {
		clock = "00:00:00"
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "01/02/2006 15:04:05", "2006-01-02 15:04", "01/02/2006 15:04"} {
		if t, err := time.ParseInLocation(layout, date+" "+clock, loc); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Package importer turns source input (a Square export or a Shopify date
// window) into an import run, keeping the raw input as an artifact.
package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cafe_inventory/internal/artifacts"
	"cafe_inventory/internal/models"
	"cafe_inventory/internal/services"
	"cafe_inventory/internal/sources/shopify"
	"cafe_inventory/internal/sources/square"
	"cafe_inventory/pkg/utils"
)

var (
	ErrShopifyDisabled = errors.New("shopify source is not configured")
	ErrInvalidWindow   = errors.New("invalid date window")
	ErrInvalidInput    = errors.New("invalid import input")
)

// OrderFetcher pulls Shopify orders created in [from, to).
type OrderFetcher interface {
	Orders(ctx context.Context, from, to time.Time) ([]shopify.Order, error)
}

// Importer runs imports from either source.
type Importer struct {
	imports   services.ImportService
	artifacts artifacts.Store
	shopify   OrderFetcher // nil when the store is not configured
	location  *time.Location
}

// New creates an Importer. Square timestamps without a zone are read in loc.
func New(imports services.ImportService, store artifacts.Store, fetcher OrderFetcher, loc *time.Location) *Importer {
	if store == nil {
		store = artifacts.Discard{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Importer{imports: imports, artifacts: store, shopify: fetcher, location: loc}
}

// WithFetcher returns a copy of im that reads Shopify orders through f.
func (im *Importer) WithFetcher(f OrderFetcher) *Importer {
	c := *im
	c.shopify = f
	return &c
}

// ImportSquare imports one Square item-details export.
func (im *Importer) ImportSquare(ctx context.Context, filename string, data []byte, dryRun bool) (*services.ImportSummary, error) {
	rows, err := square.Parse(bytes.NewReader(data), im.location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	ref := im.save(ctx, filename, data)
	return im.imports.Run(ctx, services.RunRequest{Rows: rows, Source: models.SourceSquare, DryRun: dryRun, ArtifactRef: ref})
}

// ImportShopify imports the orders created between the start of from and
// the end of to.
func (im *Importer) ImportShopify(ctx context.Context, from, to time.Time, dryRun bool) (*services.ImportSummary, error) {
	if im.shopify == nil {
		return nil, ErrShopifyDisabled
	}
	end := to.AddDate(0, 0, 1)
	if !from.Before(end) {
		return nil, fmt.Errorf("%w: %s is after %s", ErrInvalidWindow, from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	orders, err := im.shopify.Orders(ctx, from, end)
	if err != nil {
		return nil, err
	}
	var ref string
	if data, err := json.Marshal(orders); err == nil {
		ref = im.save(ctx, fmt.Sprintf("shopify-%s-%s.json", from.Format("20060102"), to.Format("20060102")), data)
	}
	return im.imports.Run(ctx, services.RunRequest{Rows: shopify.ToRows(orders), Source: models.SourceShopify, DryRun: dryRun, ArtifactRef: ref})
}

// save keeps the artifact; a storage failure only loses the reference.
func (im *Importer) save(ctx context.Context, name string, data []byte) string {
	ref, err := im.artifacts.Save(ctx, name, data)
	if err != nil {
		utils.LogWarn("Failed to store import artifact", map[string]interface{}{"name": name, "error": err.Error()})
		return ""
	}
	return ref
}

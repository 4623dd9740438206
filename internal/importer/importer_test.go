package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"cafe_inventory/internal/models"
	"cafe_inventory/internal/services"
	"cafe_inventory/internal/sources/shopify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	req services.RunRequest
}

func (f *fakeRunner) Run(_ context.Context, req services.RunRequest) (*services.ImportSummary, error) {
	f.req = req
	return &services.ImportSummary{Source: req.Source, DryRun: req.DryRun, RowsProcessed: len(req.Rows)}, nil
}

func (f *fakeRunner) ListLogs(models.ImportLogFilters) ([]models.ImportLog, int, error) {
	return nil, 0, nil
}

type fakeStore struct {
	names []string
	err   error
}

func (f *fakeStore) Save(_ context.Context, name string, _ []byte) (string, error) {
	f.names = append(f.names, name)
	if f.err != nil {
		return "", f.err
	}
	return "mem://" + name, nil
}

type fakeFetcher struct {
	from, to time.Time
}

func (f *fakeFetcher) Orders(_ context.Context, from, to time.Time) ([]shopify.Order, error) {
	f.from, f.to = from, to
	return []shopify.Order{{ID: 1, Name: "#1", CreatedAt: from, LineItems: []shopify.LineItem{{Title: "Latte", Quantity: 1, Price: "4.50"}}}}, nil
}

const csvData = "Date,Time,Item,Qty,Gross Sales,Transaction ID\n2024-03-01,09:00:00,Latte,1,$4.50,T-1\n"

func TestImportSquare(t *testing.T) {
	runner, store := &fakeRunner{}, &fakeStore{}
	im := New(runner, store, nil, nil)

	summary, err := im.ImportSquare(context.Background(), "march.csv", []byte(csvData), true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RowsProcessed)
	assert.True(t, runner.req.DryRun)
	assert.Equal(t, models.SourceSquare, runner.req.Source)
	assert.Equal(t, "mem://march.csv", runner.req.ArtifactRef)

	_, err = im.ImportSquare(context.Background(), "bad.csv", []byte("Nope\n1\n"), false)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestImportSquareKeepsRunningWhenArtifactFails(t *testing.T) {
	runner := &fakeRunner{}
	im := New(runner, &fakeStore{err: errors.New("disk full")}, nil, nil)

	_, err := im.ImportSquare(context.Background(), "march.csv", []byte(csvData), false)
	require.NoError(t, err)
	assert.Empty(t, runner.req.ArtifactRef)
}

func TestImportShopify(t *testing.T) {
	runner, store, fetcher := &fakeRunner{}, &fakeStore{}, &fakeFetcher{}
	im := New(runner, store, fetcher, nil)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := im.ImportShopify(context.Background(), from, from, false)
	require.NoError(t, err)
	assert.Equal(t, from.AddDate(0, 0, 1), fetcher.to)
	assert.Equal(t, models.SourceShopify, runner.req.Source)
	require.Len(t, runner.req.Rows, 1)
	assert.Equal(t, []string{"shopify-20240301-20240301.json"}, store.names)

	_, err = im.ImportShopify(context.Background(), from, from.AddDate(0, 0, -2), false)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = New(runner, store, nil, nil).ImportShopify(context.Background(), from, from, false)
	assert.ErrorIs(t, err, ErrShopifyDisabled)
}

func TestWithFetcherEnablesShopify(t *testing.T) {
	runner := &fakeRunner{}
	base := New(runner, nil, nil, nil)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := base.WithFetcher(&fakeFetcher{}).ImportShopify(context.Background(), from, from, true)
	require.NoError(t, err)
	assert.True(t, runner.req.DryRun)

	_, err = base.ImportShopify(context.Background(), from, from, true)
	assert.ErrorIs(t, err, ErrShopifyDisabled)
}

// Command importer runs one import from the command line:
//
//	importer --source square --file export.csv [--dry-run]
//	importer --source shopify --start 2024-03-01 --end 2024-03-07 [--dry-run]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cafe_inventory/internal/artifacts"
	"cafe_inventory/internal/config"
	"cafe_inventory/internal/database"
	"cafe_inventory/internal/importer"
	"cafe_inventory/internal/models"
	"cafe_inventory/internal/repositories"
	"cafe_inventory/internal/services"
	"cafe_inventory/internal/sources/shopify"
	"cafe_inventory/pkg/utils"

	"github.com/spf13/pflag"
)

type options struct {
	source   string
	file     string
	start    string
	end      string
	timezone string
	dryRun   bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("importer", pflag.ContinueOnError)
	fs.StringVar(&opts.source, "source", "", "import source: square or shopify")
	fs.StringVarP(&opts.file, "file", "f", "", "Square item details CSV export")
	fs.StringVar(&opts.start, "start", "", "first day to fetch from Shopify (YYYY-MM-DD)")
	fs.StringVar(&opts.end, "end", "", "last day to fetch from Shopify (YYYY-MM-DD)")
	fs.StringVar(&opts.timezone, "timezone", "UTC", "zone for Square timestamps without one")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "run everything and roll back")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	switch models.Source(opts.source) {
	case models.SourceSquare:
		if opts.file == "" {
			return opts, errors.New("--file is required for square imports")
		}
	case models.SourceShopify:
		if opts.start == "" || opts.end == "" {
			return opts, errors.New("--start and --end are required for shopify imports")
		}
	default:
		return opts, fmt.Errorf("--source must be square or shopify, got %q", opts.source)
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "import failed:", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	utils.InitLogger(cfg.App.LogLevel, true)

	loc, err := time.LoadLocation(opts.timezone)
	if err != nil {
		return fmt.Errorf("unknown timezone %q: %w", opts.timezone, err)
	}
	rules, err := config.LoadRules(cfg.Matching.RulesFile)
	if err != nil {
		return err
	}
	importRules, err := services.NewImportRules(rules)
	if err != nil {
		return err
	}

	db, err := database.Open(database.Settings{
		Host:       cfg.Database.Host,
		Port:       cfg.Database.Port,
		User:       cfg.Database.User,
		Password:   cfg.Database.Password,
		Name:       cfg.Database.Name,
		SSLMode:    cfg.Database.SSLMode,
		SchemaPath: cfg.Database.SchemaPath,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := artifacts.New(ctx, cfg.Artifacts)
	if err != nil {
		return err
	}

	catalogRepo := repositories.NewCatalogRepository(db)
	txm := repositories.NewTxManager(db)
	ledger := services.NewUnmappedItemService(repositories.NewUnmappedItemRepository(db), catalogRepo, txm)
	imports := services.NewImportService(catalogRepo, repositories.NewOrderRepository(db), repositories.NewImportLogRepository(db), ledger, txm, importRules)

	summary, err := runImport(ctx, opts, cfg.Shopify, importer.New(imports, store, nil, loc))
	if summary != nil {
		fmt.Print(summary.Text())
	}
	return err
}

func runImport(ctx context.Context, opts options, shopifyCfg config.ShopifyConfig, im *importer.Importer) (*services.ImportSummary, error) {
	if models.Source(opts.source) == models.SourceSquare {
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return nil, err
		}
		return im.ImportSquare(ctx, filepath.Base(opts.file), data, opts.dryRun)
	}

	from, to, err := parseWindow(opts.start, opts.end)
	if err != nil {
		return nil, err
	}
	client, err := shopify.NewClient(shopifyCfg)
	if err != nil {
		return nil, err
	}
	return im.WithFetcher(client).ImportShopify(ctx, from, to, opts.dryRun)
}

func parseWindow(start, end string) (time.Time, time.Time, error) {
	from, err := time.Parse("2006-01-02", start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--start: %w", err)
	}
	to, err := time.Parse("2006-01-02", end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--end: %w", err)
	}
	return from, to, nil
}

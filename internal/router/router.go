package router

import (
	"database/sql"
	"net/http"

	"cafe_inventory/internal/artifacts"
	"cafe_inventory/internal/config"
	"cafe_inventory/internal/handlers"
	"cafe_inventory/internal/importer"
	"cafe_inventory/internal/middleware"
	"cafe_inventory/internal/repositories"
	"cafe_inventory/internal/services"
	"cafe_inventory/pkg/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
)

// Services are the application services behind the HTTP surface.
type Services struct {
	Ledger  services.UnmappedItemService
	Imports services.ImportService
	Orders  services.OrderService
	Reports services.ReportService
	Runner  handlers.ImportRunner
}

// NewServices wires the Postgres repositories into the services.
func NewServices(db *sql.DB, rules services.ImportRules, store artifacts.Store, fetcher importer.OrderFetcher) Services {
	unmappedRepo := repositories.NewUnmappedItemRepository(db)
	catalogRepo := repositories.NewCatalogRepository(db)
	orderRepo := repositories.NewOrderRepository(db)
	importLogRepo := repositories.NewImportLogRepository(db)
	txm := repositories.NewTxManager(db)

	ledger := services.NewUnmappedItemService(unmappedRepo, catalogRepo, txm)
	imports := services.NewImportService(catalogRepo, orderRepo, importLogRepo, ledger, txm, rules)
	return Services{
		Ledger:  ledger,
		Imports: imports,
		Orders:  services.NewOrderService(orderRepo),
		Reports: services.NewReportService(orderRepo, catalogRepo, txm),
		Runner:  importer.New(imports, store, fetcher, nil),
	}
}

// New builds the engine with its middleware stack and all routes.
func New(cfg config.ServerConfig, svc Services) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestid.New())
	engine.Use(utils.GinLogger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", middleware.OperatorHeader, "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	engine.Use(cors.New(corsConfig))

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	Setup(engine, svc, cfg.MaxUploadBytes)
	return engine
}

// Setup initializes the API routes.
func Setup(engine *gin.Engine, svc Services, maxUploadBytes int64) {
	unmappedHandler := handlers.NewUnmappedItemHandler(svc.Ledger)
	importHandler := handlers.NewImportHandler(svc.Runner, svc.Imports, maxUploadBytes)
	orderHandler := handlers.NewOrderHandler(svc.Orders)
	reportHandler := handlers.NewReportHandler(svc.Reports)

	apiV1 := engine.Group("/api/v1")
	apiV1.Use(middleware.OperatorMiddleware())
	{
		SetupUnmappedItemRoutes(apiV1, unmappedHandler)
		SetupImportRoutes(apiV1, importHandler)
		SetupOrderRoutes(apiV1, orderHandler)
		SetupReportRoutes(apiV1, reportHandler)
	}
}

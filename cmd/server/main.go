package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cafe_inventory/internal/artifacts"
	"cafe_inventory/internal/config"
	"cafe_inventory/internal/database"
	"cafe_inventory/internal/importer"
	"cafe_inventory/internal/router"
	"cafe_inventory/internal/services"
	"cafe_inventory/internal/sources/shopify"
	"cafe_inventory/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	utils.InitLogger(cfg.App.LogLevel, cfg.App.Env != "production")
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	rules, err := config.LoadRules(cfg.Matching.RulesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load matching rules")
	}
	importRules, err := services.NewImportRules(rules)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid matching rules")
	}

	db, err := database.Open(database.Settings{
		Host:       cfg.Database.Host,
		Port:       cfg.Database.Port,
		User:       cfg.Database.User,
		Password:   cfg.Database.Password,
		Name:       cfg.Database.Name,
		SSLMode:    cfg.Database.SSLMode,
		SchemaPath: cfg.Database.SchemaPath,
		MaxOpen:    cfg.Database.MaxOpen,
		MaxIdle:    cfg.Database.MaxIdle,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	ctx := context.Background()
	store, err := artifacts.New(ctx, cfg.Artifacts)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize artifact storage")
	}

	var fetcher importer.OrderFetcher
	if client, err := shopify.NewClient(cfg.Shopify); err == nil {
		fetcher = client
	} else {
		utils.LogInfo("Shopify imports disabled", map[string]interface{}{"reason": err.Error()})
	}

	engine := router.New(cfg.Server, router.NewServices(db, importRules, store, fetcher))

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: engine,
	}
	go func() {
		utils.LogInfo("Server starting", map[string]interface{}{"port": cfg.Server.Port, "env": cfg.App.Env})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	utils.LogInfo("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.LogError(err, "Server forced to shut down")
	}
}

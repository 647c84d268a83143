package main

import (
	"log"

	"github.com/lbastidas/inboundscan/internal/config"
	"github.com/lbastidas/inboundscan/internal/db"
	"github.com/lbastidas/inboundscan/internal/logging"
	"github.com/lbastidas/inboundscan/internal/service"
	"github.com/lbastidas/inboundscan/internal/skulist"
	"github.com/lbastidas/inboundscan/internal/web"
)

func main() {
	cfg := config.Load()

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	isValidSKU := skulist.AllowAll()
	if cfg.SKUListPath != "" {
		isValidSKU, err = skulist.FromFile(cfg.SKUListPath)
		if err != nil {
			logger.Error("failed to load sku list", "path", cfg.SKUListPath, "error", err)
			return
		}
		logger.Info("sku list loaded", "path", cfg.SKUListPath)
	}

	coordinator := service.NewCoordinator(database, cfg.LeaseWindow, logger)
	ledger := service.NewLedger(database, isValidSKU, logger)

	server := web.NewServer(coordinator, ledger, database, cfg.BatchSize, logger)

	logger.Info("configuration", "lease", cfg.LeaseWindow, "batch_size", cfg.BatchSize)
	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
	}
}

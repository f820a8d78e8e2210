package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"lms/internal/bootstrap"
	"lms/internal/config"
	"lms/internal/database"
	"lms/internal/logger"
	"lms/internal/orchestrator/certificate"
	"lms/internal/orchestrator/reaper"

	"github.com/joho/godotenv"
)

func main() {
	// Parse mode flag
	mode := flag.String("mode", "", "Orchestrator mode: certificate|reaper")
	flag.Parse()

	// Initialize logger
	logger := logger.New()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	// Set up context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize DB connection
	db, closeDB, err := database.Open(ctx, cfg.DBConnectionString, cfg.Environment, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to open DB connection: %v", err)
	}
	defer closeDB()

	svc, closeSvc, err := bootstrap.Build(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to wire services: %v", err)
	}
	defer closeSvc()

	// Dispatch to the selected orchestrator
	var runErr error
	switch *mode {
	case "certificate":
		runErr = certificate.Run(ctx, logger, svc.Queue, svc.Certificates, cfg)
	case "reaper":
		runErr = reaper.Run(ctx, logger, svc.Submissions, cfg)
	default:
		logger.Fatal().Msgf("Invalid mode: %s", *mode)
	}

	if runErr != nil {
		logger.Error().Msgf("%s orchestrator failed: %v", *mode, runErr)
		return
	}

	logger.Info().Msgf("%s orchestrator stopped gracefully", *mode)
}

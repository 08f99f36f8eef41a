package main

import (
	"log"

	"go.uber.org/zap"

	"payments-service/internal/config"
	"payments-service/internal/database"
	"payments-service/internal/logger"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	// Initialize Database
	db, err := database.Connect(cfg.DSN(), zlog)
	if err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Run Migrations
	zlog.Info("Running database migrations...")
	if err := database.Migrate(db); err != nil {
		zlog.Fatal("Migration failed", zap.Error(err))
	}

	zlog.Info("Seeding reference data...")
	if err := database.Seed(db); err != nil {
		zlog.Fatal("Seeding failed", zap.Error(err))
	}

	zlog.Info("Migrations completed successfully!")
}

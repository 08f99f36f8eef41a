package main

import (
	"log"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"payments-service/internal/config"
	"payments-service/internal/consumers"
	"payments-service/internal/database"
	"payments-service/internal/logger"
	"payments-service/internal/payfast"
	"payments-service/internal/services"
	"payments-service/internal/worker"
	"payments-service/pkg/common"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	// Connect DB
	db, err := database.Connect(cfg.DSN(), zlog)
	if err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Init Services
	gateway := payfast.NewClient(common.NewHTTPClient(cfg.Payfast.Timeout))
	env := services.NewEnvironmentService(db, cfg.Payfast.Endpoints)
	subscriptionService := services.NewSubscriptionService(db, env, gateway, zlog)
	resyncService := services.NewResyncService(subscriptionService, nil, zlog)

	// Processor
	processor := consumers.NewSubscriptionProcessor(subscriptionService, resyncService, zlog)

	zlog.Info("Starting Asynq Worker...", zap.String("redis", cfg.RedisURL))
	if err := worker.StartWorker(asynq.RedisClientOpt{Addr: cfg.RedisURL}, processor, zlog); err != nil {
		zlog.Fatal("Worker stopped", zap.Error(err))
	}
}

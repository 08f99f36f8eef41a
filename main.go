package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"payments-service/internal/config"
	"payments-service/internal/database"
	grpcServer "payments-service/internal/grpc"
	"payments-service/internal/handlers"
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

	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database
	db, err := database.Connect(cfg.DSN(), zlog)
	if err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zlog.Fatal("Failed to migrate database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		zlog.Fatal("Failed to open database handle", zap.Error(err))
	}

	// Gateway
	gateway := payfast.NewClient(common.NewHTTPClient(cfg.Payfast.Timeout))

	// Init Services
	env := services.NewEnvironmentService(db, cfg.Payfast.Endpoints)
	helperService := services.NewHelperService(db)
	invoiceService := services.NewInvoiceService(db)
	ledgerService := services.NewLedgerService(db, helperService, zlog)
	subscriptionService := services.NewSubscriptionService(db, env, gateway, zlog)
	planService := services.NewPlanService(db)
	checkoutService := services.NewCheckoutService(db, env, invoiceService, planService, cfg.AppURL, zlog)

	// Resync Scheduler
	var locker services.Locker
	if cfg.Resync.LockWithRedis {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		defer redisClient.Close()
		locker = services.NewRedisLocker(redisClient)
	}
	resyncService := services.NewResyncService(subscriptionService, locker, zlog)
	if cfg.Resync.Enabled {
		resyncService.Start(ctx, cfg.Resync.NeedsInterval, cfg.Resync.FullInterval)
	}

	// Subscription syncs and on-demand sweeps go through asynq unless disabled
	var dispatcher services.SyncDispatcher = services.InlineSyncDispatcher{
		Subscriptions: subscriptionService,
		Resync:        resyncService,
	}
	if cfg.SyncViaQueue {
		asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisURL})
		defer asynqClient.Close()
		dispatcher = worker.NewAsynqDispatcher(asynqClient)
	}

	notificationService := services.NewNotificationService(db, env, invoiceService, ledgerService,
		subscriptionService, gateway, dispatcher,
		services.NotificationOptions{
			OriginCheck:   cfg.Payfast.OriginCheck,
			EnforceOrigin: cfg.Payfast.EnforceOrigin,
			ValidHosts:    cfg.Payfast.ValidHosts,
		}, zlog)

	// Initialize Gin
	r, err := handlers.NewRouter(cfg.TrustedProxies)
	if err != nil {
		zlog.Fatal("Failed to build router", zap.Error(err))
	}
	handlers.Handlers{
		Payments:      handlers.NewPaymentHandler(notificationService, checkoutService, invoiceService, planService, env, zlog),
		Subscriptions: handlers.NewSubscriptionHandler(subscriptionService, dispatcher),
		Transactions:  handlers.NewTransactionHandler(ledgerService),
		Wallets:       handlers.NewWalletHandler(ledgerService, subscriptionService),
	}.Register(r)

	// Start gRPC server
	grpcSrv, err := grpcServer.StartGRPCServer(cfg.GRPCPort, sqlDB, zlog)
	if err != nil {
		zlog.Fatal("Failed to start gRPC server", zap.Error(err))
	}
	go grpcSrv.Watch(ctx, 30*time.Second)

	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		zlog.Info("HTTP Server starting", zap.String("port", cfg.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("HTTP shutdown failed", zap.Error(err))
	}
	grpcSrv.Stop()
	resyncService.Stop()
}

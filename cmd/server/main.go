package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sales-reconciler/config"
	"sales-reconciler/internal/api"
	"sales-reconciler/internal/broker"
	"sales-reconciler/internal/keycrm"
	"sales-reconciler/internal/redisclient"
	"sales-reconciler/internal/service"
	"sales-reconciler/internal/skucode"
	"sales-reconciler/internal/store"
	"sales-reconciler/internal/util"
	"sales-reconciler/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting sales reconciler")

	tp, err := util.InitTracer("sales-reconciler", cfg.Server.Env, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(logger); err != nil {
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicReconciliation)
	defer producer.Close()
	catalogProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCatalog)
	defer catalogProducer.Close()
	logger.Info("Kafka producers initialized",
		zap.String("reconciliation_topic", cfg.Kafka.TopicReconciliation),
		zap.String("catalog_topic", cfg.Kafka.TopicCatalog))

	eventPublisher := broker.NewEventPublisher(producer, catalogProducer)

	crm := keycrm.NewClient(
		cfg.KeyCRM.BaseURL,
		cfg.KeyCRM.APIToken,
		time.Duration(cfg.KeyCRM.TimeoutSeconds)*time.Second,
		cfg.KeyCRM.RequestsPerMinute,
	)
	if !crm.Enabled() {
		logger.Warn("KEYCRM_API_TOKEN not set, order enrichment disabled")
	}

	resolver := service.NewVariantResolver(
		skucode.NewDecoder(skucode.SizeOrder),
		service.ParseFallbackMode(cfg.Reconcile.ResolverFallback),
	)
	ledger := service.NewSalesLedger()

	stockProcessor := service.NewStockProcessor(db, resolver, ledger, eventPublisher, redisClient)
	orderProcessor := service.NewOrderProcessor(db, resolver, ledger, service.OrderProcessorOptions{
		NegativeStatusIDs: cfg.Reconcile.NegativeStatusIDs,
		Fetcher:           crm,
		Guard:             redisClient,
		DedupTTL:          time.Duration(cfg.Reconcile.DedupTTLHours) * time.Hour,
		Publisher:         eventPublisher,
	})
	catalogService := service.NewCatalogService(db, eventPublisher)
	reportService := service.NewReportService(db)
	inventoryService := service.NewInventoryService(db, redisClient)

	ctx := context.Background()
	if err := inventoryService.SyncToCache(ctx); err != nil {
		logger.Warn("Failed to sync inventory to Redis", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	catalogConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCatalog, cfg.Kafka.ConsumerGroup)
	reconcileWorker := worker.NewReconcileWorker(
		db,
		stockProcessor,
		redisClient,
		catalogConsumer,
		time.Duration(cfg.Reconcile.SweepIntervalSeconds)*time.Second,
		cfg.Reconcile.SweepBatchSize,
	)
	reconcileWorker.Start(workerCtx)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Deps{
		Stock:     stockProcessor,
		Orders:    orderProcessor,
		Catalog:   catalogService,
		Reports:   reportService,
		Inventory: inventoryService,
		Checks: map[string]api.Pinger{
			"database": db,
			"redis":    redisClient,
		},
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := reconcileWorker.Stop(); err != nil {
		logger.Warn("Error stopping reconcile worker", zap.Error(err))
	}

	logger.Info("Server exited")
}

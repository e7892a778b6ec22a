package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/api"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/config"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/events"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/handlers"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/interfaces"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/lock"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/marketplace"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/notify"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/processor"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/repository"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/repository/memory"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/service"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/telemetry"
)

type dedupLocker interface {
	interfaces.Locker
	interfaces.DedupStore
}

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Initialize telemetry
	if err := telemetry.InitTelemetry("escrow-orchestrator", cfg.JaegerEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Escrow Orchestrator", zap.String("store_driver", cfg.StoreDriver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		payments interfaces.PaymentRepository
		market   interfaces.MarketplaceRepository
	)
	switch cfg.StoreDriver {
	case "memory":
		payments = memory.NewPaymentStore()
		market = memory.NewMarketplaceStore()
	default:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		paymentRepo := repository.NewPaymentRepository(db)
		if err := paymentRepo.InitDB(); err != nil {
			telemetry.Logger.Fatal("Failed to initialize payments schema", zap.Error(err))
		}
		marketRepo := repository.NewMarketplaceRepository(db)
		if err := marketRepo.InitDB(); err != nil {
			telemetry.Logger.Fatal("Failed to initialize marketplace schema", zap.Error(err))
		}
		payments, market = paymentRepo, marketRepo
	}

	// Locks and webhook dedup
	var locker dedupLocker = lock.NewLocalLocker()
	if cfg.RedisURL != "" {
		redisClient, err := lock.Connect(ctx, cfg.RedisURL)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient)
	} else {
		telemetry.Logger.Warn("REDIS_URL not set, using in-process locks")
	}

	// Payment state events
	var publisher interfaces.EventPublisher = events.LogPublisher{}
	if cfg.KafkaBrokers != "" {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers)
		if err != nil {
			telemetry.Logger.Fatal("Failed to create Kafka publisher", zap.Error(err))
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	// Notifications
	var notifier interfaces.Notifier = notify.LogNotifier{}
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Warn("NATS unavailable, notifications will only be logged", zap.Error(err))
	} else {
		defer nc.Close()
		notifier = notify.NewNATSNotifier(nc)
	}

	stripeProcessor := processor.NewStripeProcessor(cfg.StripeSecretKey, cfg.StripeWebhookSecret, nil)

	orchestrator := service.NewOrchestrator(service.Dependencies{
		Payments:  payments,
		Domain:    marketplace.NewAdapter(market),
		Processor: stripeProcessor,
		Publisher: publisher,
		Notifier:  notifier,
		Locker:    locker,
	}, service.Options{
		PlatformFeePercent: cfg.PlatformFeePercent,
		Currency:           cfg.DefaultCurrency,
		LockTTL:            cfg.LockTTL,
	})
	dispatcher := service.NewWebhookDispatcher(orchestrator, locker)

	reconciler := service.NewReconciler(payments, cfg.StaleHoldAfter, cfg.ReconcileInterval)
	go reconciler.Run(ctx)

	r := api.NewRouter(
		handlers.NewEscrowHandler(orchestrator),
		handlers.NewWebhookHandler(stripeProcessor, dispatcher),
	)

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Escrow Orchestrator starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	<-ctx.Done()

	telemetry.Logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}
	orchestrator.Drain()

	telemetry.Logger.Info("Server exited")
}

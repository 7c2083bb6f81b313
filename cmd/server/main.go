package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edu-mentor-go/internal/config"
	"github.com/edu-mentor-go/internal/handlers"
	"github.com/edu-mentor-go/internal/i18n"
	"github.com/edu-mentor-go/internal/middleware"
	"github.com/edu-mentor-go/internal/models"
	"github.com/edu-mentor-go/internal/pipeline"
	"github.com/edu-mentor-go/internal/services/audit"
	"github.com/edu-mentor-go/internal/services/budget"
	"github.com/edu-mentor-go/internal/services/generation"
	"github.com/edu-mentor-go/internal/services/ledger"
	"github.com/edu-mentor-go/internal/services/moderation"
	"github.com/edu-mentor-go/internal/services/persona"
	"github.com/edu-mentor-go/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		// It's okay if .env doesn't exist
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting mentor service...")

	if cfg.Generation.APIKey == "" {
		log.Warn("Generation API key not set, every interaction will fall back")
	}

	// Config snapshot holder; components read through it so file edits
	// apply without a restart
	watcher := config.NewWatcher(cfg, log)

	// Initialize storage. The redis client is shared with the audit trail
	// and alert suppression when redis is configured.
	zone, err := time.LoadLocation(cfg.Budget.TimeZone)
	if err != nil {
		log.WithError(err).Fatal("Invalid budget time zone")
	}

	var (
		costLedger *ledger.Ledger
		auditStore audit.Store
		suppressor budget.Suppressor
	)
	switch cfg.Storage.Type {
	case "redis":
		store, err := ledger.NewRedisStore(&cfg.Storage.Redis, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize redis storage")
		}
		costLedger = ledger.NewLedgerWithStore(store, zone, log)
		auditStore = audit.NewRedisStore(store.Client())
		suppressor = budget.NewRedisSuppressor(store.Client(), log)
		log.WithField("addr", cfg.Storage.Redis.Addr).Info("Using redis storage")
	default:
		costLedger = ledger.NewLedgerWithStore(ledger.NewMemoryStore(&cfg.Storage.Memory, log), zone, log)
		auditStore = audit.NewLogStore(log)
		suppressor = budget.NewCacheSuppressor()
		log.Info("Using in-memory storage")
	}

	recorder := audit.NewRecorder(auditStore, log)

	// Initialize metrics
	metrics := middleware.NewMetrics()

	// Budget guard with alert emission
	emitter := budget.NewEmitter(suppressor,
		budget.NewLogSink(log),
		budget.SinkFunc(func(alert models.BudgetAlert) {
			metrics.RecordBudgetAlert(string(alert.Type))
		}),
	)
	guard := budget.NewGuard(costLedger, watcher.Current, emitter, log)

	// Generation backend and persona orchestration
	backend := generation.NewHTTPBackend(func() *config.GenerationConfig {
		return &watcher.Current().Generation
	}, log)
	registry := persona.NewRegistry()
	orchestrator := persona.NewOrchestrator(backend, func() *config.GenerationConfig {
		return &watcher.Current().Generation
	}, log)

	// Moderation gate
	gate := moderation.NewGate(func() *config.ModerationConfig {
		return &watcher.Current().Moderation
	}, log)
	cachedGate := moderation.NewCachedGate(gate, &cfg.Moderation, log)

	// Fallback catalogue; every pre-vetted reply must clear the gate
	// before the service accepts traffic
	catalogue := persona.NewCatalogue(registry, log)
	if err := catalogue.SelfCheck(gate); err != nil {
		log.WithError(err).Fatal("Fallback catalogue failed safety self-check")
	}
	log.Info("Fallback catalogue passed safety self-check")

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter(func() *config.RateLimitConfig {
		return &watcher.Current().RateLimit
	}, log)

	// Initialize i18n
	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	// Start metrics server if enabled
	if cfg.Monitoring.Metrics.Enabled {
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	// Assemble the pipeline and HTTP surface
	pl := pipeline.New(orchestrator, gate, catalogue, guard, recorder, localizer, metrics, log)
	handler := handlers.NewHandler(pl, registry, cachedGate, guard, rateLimiter, localizer, metrics, log)

	// Watch for config file edits
	watcher.OnChange(func(next *config.Config) {
		log.WithFields(logrus.Fields{
			"daily_limit_gbp": next.Budget.DailyLimitGBP,
			"throttling":      next.Budget.EmergencyThrottlingEnabled,
		}).Info("Budget settings now live")
	})
	watcher.Watch(*configPath)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}

	log.Info("Mentor service stopped")
}

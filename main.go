package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fenilmodi00/ipo-yield-backend/config"
	"github.com/fenilmodi00/ipo-yield-backend/database"
	"github.com/fenilmodi00/ipo-yield-backend/handlers"
	"github.com/fenilmodi00/ipo-yield-backend/jobs"
	"github.com/fenilmodi00/ipo-yield-backend/services"
	"github.com/fenilmodi00/ipo-yield-backend/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load config
	cfg := config.LoadConfig()
	unified := cfg.ToUnified()
	shared.ConfigureLogging(unified.Logging)

	// Connect to database when configured
	var db *sql.DB
	var repository *database.AllotmentRepository
	if cfg.DatabaseURL != "" {
		if err := database.ConnectWithConfig(cfg.DatabaseURL, &unified.Database); err != nil {
			logrus.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
		db = database.DB
		if err := database.HealthCheck(); err != nil {
			logrus.Fatalf("Database health check failed: %v", err)
		}

		if err := database.Migrate(""); err != nil {
			logrus.Warnf("Migration warning: %v", err)
		}
		if result, err := database.NewSchemaValidator(db).ValidateAllotmentTable(context.Background()); err != nil {
			logrus.Warnf("Schema validation failed: %v", err)
		} else if !result.IsValid {
			logrus.WithFields(logrus.Fields{
				"missing_columns": result.MissingColumns,
				"missing_indexes": result.MissingIndexes,
			}).Warn("Allotment table schema is incomplete")
		}
		repository = database.NewAllotmentRepository(db)
	}

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promCollectors, err := shared.NewPrometheusCollectors(registry)
	if err != nil {
		logrus.Fatalf("Failed to register metrics: %v", err)
	}

	// Dataset provider
	utilityService := services.NewUtilityService()
	clientFactory := shared.NewHTTPClientFactory(unified.Service.HTTPRequestTimeout)
	defer clientFactory.CleanupAllClients()
	source, err := buildDatasetSource(cfg, unified, clientFactory, utilityService, repository)
	if err != nil {
		logrus.Fatalf("Failed to configure dataset source: %v", err)
	}

	cacheService := services.NewCacheServiceWithConfig(unified.Cache.DefaultTTL, unified.Cache.MaxSize)
	defer cacheService.Stop()
	cachedSource := services.NewCachedDatasetSource(source, cacheService, cfg.GetCacheTTL())
	datasetService := services.NewDatasetService(cachedSource, nil, promCollectors)

	estimationService, err := services.NewEstimationService(datasetService, unified, promCollectors)
	if err != nil {
		logrus.Fatalf("Failed to start estimation service: %v", err)
	}
	defer estimationService.Close()

	logrus.WithFields(logrus.Fields{
		"source":           source.Name(),
		"cache_ttl":        cfg.GetCacheTTL(),
		"refresh_interval": cfg.GetDatasetRefreshInterval(),
		"batch_workers":    unified.Batch.MaxConcurrency,
		"risk_free_rate":   unified.Estimator.DefaultRiskFreeRate,
		"window_start":     unified.Estimator.DefaultWindowStart,
		"window_end":       unified.Estimator.DefaultWindowEnd,
		"database":         db != nil,
	}).Info("Return estimator services initialized")

	// Initialize Jobs
	refreshJob := jobs.NewDatasetRefreshJob(datasetService, unified.Service.HTTPRequestTimeout*4)
	cleanupJob := jobs.NewCacheCleanupJob(cacheService)

	// Load the first snapshot before serving
	refreshJob.Run()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start Background Jobs
	go func() {
		refreshTicker := time.NewTicker(cfg.GetDatasetRefreshInterval())
		cleanupTicker := time.NewTicker(1 * time.Hour)
		defer refreshTicker.Stop()
		defer cleanupTicker.Stop()

		for {
			select {
			case <-refreshTicker.C:
				refreshJob.Run()
			case <-cleanupTicker.C:
				cleanupJob.Run()
			case <-ctx.Done():
				return
			}
		}
	}()

	// Initialize handlers
	var store services.RecordStore
	if repository != nil {
		store = repository
	}
	routes := &handlers.Routes{
		Estimate:    handlers.NewEstimateHandler(estimationService),
		Stats:       handlers.NewStatsHandler(datasetService, services.NewStatisticsService()),
		Admin:       handlers.NewAdminHandler(datasetService, store, cfg.AdminToken),
		Performance: handlers.NewPerformanceHandler(db, estimationService, datasetService, cachedSource),
		Metrics:     adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	}
	if cfg.AdminToken == "" {
		logrus.Warn("ADMIN_TOKEN is not set, admin routes are unprotected")
	}

	// Setup Fiber
	app := fiber.New(fiber.Config{
		AppName:      unified.Logging.ServiceName,
		ReadTimeout:  unified.Batch.Timeout,
		WriteTimeout: unified.Batch.Timeout,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	routes.Register(app)

	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.Errorf("Server shutdown failed: %v", err)
		}
	}()

	// Start server
	logrus.Infof("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logrus.Fatalf("Server failed to start: %v", err)
	}

	estimationService.GetServiceMetrics().LogSummary()
	datasetService.GetServiceMetrics().LogSummary()
}

// buildDatasetSource picks the dataset source named by DATASET_SOURCE
func buildDatasetSource(cfg *config.Config, unified *shared.UnifiedConfiguration, clientFactory *shared.HTTPClientFactory, utility *services.UtilityService, repository *database.AllotmentRepository) (services.DatasetSource, error) {
	ingestor := services.NewRecordIngestor(utility)
	rateLimit := config.DefaultRateLimitConfig()

	switch strings.ToLower(cfg.DatasetSource) {
	case config.SourceJSON:
		if cfg.DatasetURL != "" {
			client := clientFactory.NewRestyClient(unified.Service, shared.NewHTTPMetrics())
			limiter := shared.NewHTTPRequestRateLimiter(rateLimit.MinimumDelay())
			return services.NewRemoteJSONSource(cfg.DatasetURL, client, limiter, ingestor), nil
		}
		return services.NewJSONFileSource(cfg.DatasetPath, ingestor), nil

	case config.SourceExcel:
		return services.NewExcelSource(cfg.DatasetPath, ingestor), nil

	case config.SourceHTML:
		target := cfg.DatasetPath
		if cfg.DatasetURL != "" {
			target = cfg.DatasetURL
		}
		transport := clientFactory.CreateOptimizedHTTPClient(unified.Service.HTTPRequestTimeout).Transport
		limiter := shared.NewHTTPRequestRateLimiter(rateLimit.MinimumDelay())
		return services.NewHTMLTableSource(target, transport, unified.Service.HTTPRequestTimeout, limiter, utility, ingestor), nil

	case config.SourcePostgres:
		if repository == nil {
			return nil, fmt.Errorf("DATASET_SOURCE=postgres requires DATABASE_URL")
		}
		return services.NewPostgresSource(repository), nil
	}

	return nil, fmt.Errorf("unknown DATASET_SOURCE %q", cfg.DatasetSource)
}

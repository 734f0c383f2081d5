package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/admissions/services/pipeline/config"
	"example.com/admissions/services/pipeline/internal/api"
	"example.com/admissions/services/pipeline/internal/blob"
	"example.com/admissions/services/pipeline/internal/cache"
	"example.com/admissions/services/pipeline/internal/generator"
	"example.com/admissions/services/pipeline/internal/messaging"
	"example.com/admissions/services/pipeline/internal/metrics"
	"example.com/admissions/services/pipeline/internal/models"
	"example.com/admissions/services/pipeline/internal/search"
	"example.com/admissions/services/pipeline/internal/services"
	"example.com/admissions/services/pipeline/internal/tracing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server for application lifecycle events, documents and timelines`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize database connections
	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return err
	}
	metricsCollector.SetHealth("database", true)

	// Initialize cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		redisCache = nil
	}
	metricsCollector.SetHealth("cache", redisCache != nil)

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
		elasticClient = nil
	}
	metricsCollector.SetHealth("search", elasticClient != nil)

	// Initialize blob store for uploaded documents
	blobStore, err := blob.NewS3Store(ctx, cfg.Blob)
	if err != nil {
		return errors.Wrap(err, "failed to initialize blob store")
	}

	// Initialize the draft request queue
	var publisher messaging.Publisher
	azureBus, err := messaging.NewAzureServiceBus(cfg.Azure, tracer)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Service Bus, draft generation left to the worker's fallback job")
	} else {
		publisher = azureBus
		defer azureBus.Close()
	}
	metricsCollector.SetHealth("service_bus", publisher != nil)

	// Initialize services
	appService := services.NewApplicationService(db, readOnlyDB, redisCache, elasticClient, publisher, metricsCollector, tracer)
	docService := services.NewDocumentService(db, readOnlyDB, blobStore, cfg.Blob.KeyPrefix, elasticClient, metricsCollector, tracer)
	draftService := services.NewDraftService(db, readOnlyDB, generator.NewHTTPClient(cfg.Generator), metricsCollector, tracer)

	// Initialize and start the server
	server := api.NewServer(cfg, appService, docService, draftService, metricsCollector, tracer)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}

func initDatabases(cfg config.Config) (*gorm.DB, *gorm.DB, error) {
	// Initialize write database
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to write database")
	}

	// Initialize read-only database
	readOnlyDB, err := gorm.Open(postgres.Open(cfg.DB.ReadOnlyDSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to read-only database")
	}

	// Auto-migrate only the write database
	if err := models.SetupModels(db); err != nil {
		return nil, nil, errors.Wrap(err, "failed to run migrations")
	}

	// Configure connection pools for both databases
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying write DB connection")
	}
	sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	readSqlDB, err := readOnlyDB.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying read-only DB connection")
	}

	// Higher limits for the read side
	readSqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns * 2)
	readSqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns * 2)
	readSqlDB.SetConnMaxLifetime(time.Hour)

	return db, readOnlyDB, nil
}

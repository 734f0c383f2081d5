package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/admissions/services/pipeline/config"
	"example.com/admissions/services/pipeline/internal/cache"
	"example.com/admissions/services/pipeline/internal/generator"
	"example.com/admissions/services/pipeline/internal/messaging"
	"example.com/admissions/services/pipeline/internal/metrics"
	"example.com/admissions/services/pipeline/internal/search"
	"example.com/admissions/services/pipeline/internal/services"
	"example.com/admissions/services/pipeline/internal/tracing"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker to generate offer letter drafts from the queue and reconcile missed drafts and search indexing`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
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

	// Create an error group to manage goroutines
	g, ctx := errgroup.WithContext(ctx)

	// Initialize database connections
	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return err
	}

	// Initialize cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		redisCache = nil
	}

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

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize services
	appService := services.NewApplicationService(db, readOnlyDB, redisCache, elasticClient, nil, metricsCollector, tracer)
	draftService := services.NewDraftService(db, readOnlyDB, generator.NewHTTPClient(cfg.Generator), metricsCollector, tracer)

	// Initialize Azure Service Bus client
	azureBus, err := messaging.NewAzureServiceBus(cfg.Azure, tracer)
	if err != nil {
		return err
	}
	defer azureBus.Close()

	// Start the service bus processor
	g.Go(func() error {
		log.Info().Str("queue", cfg.Azure.QueueName).Msg("Starting draft request processor")
		return azureBus.ProcessMessages(ctx, draftService.ProcessDraftMessage)
	})

	// Start the reconciliation cron jobs as fallback mechanisms
	g.Go(func() error {
		log.Info().Msg("Starting reconciliation cron jobs")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		// Drafts whose queue message was lost
		_, err = scheduler.NewJob(
			gocron.DurationJob(5*time.Minute),
			gocron.NewTask(func() {
				log.Info().Msg("Running fallback draft generation job")
				if err := draftService.GenerateMissingDrafts(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to generate missing drafts in fallback job")
				}
			}),
		)
		if err != nil {
			return err
		}

		// Transitions that never reached the search index
		_, err = scheduler.NewJob(
			gocron.DurationJob(5*time.Minute),
			gocron.NewTask(func() {
				log.Info().Msg("Running search reindex job")
				if err := appService.ReindexPending(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to reindex applications")
				}
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		// Wait for context cancellation
		<-ctx.Done()

		return scheduler.Shutdown()
	})

	// Wait for any goroutine to exit
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}

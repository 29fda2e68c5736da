package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/timmy/shopsearch/internal/config"
	"github.com/timmy/shopsearch/internal/domain"
	"github.com/timmy/shopsearch/internal/logger"
	"github.com/timmy/shopsearch/internal/repository"
	"github.com/timmy/shopsearch/internal/service"
	"github.com/timmy/shopsearch/internal/source/csvcatalog"
	"github.com/timmy/shopsearch/internal/storage"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "shopsearch-ingest",
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	limit := flag.Int("limit", 1000, "Maximum number of products to ingest")
	workers := flag.Int("workers", 0, "Number of concurrent workers (0 uses the configured value)")
	force := flag.Bool("force", false, "Re-ingest products already in the product collection")
	dryRun := flag.Bool("dry-run", false, "Read and preprocess the catalog without writing anything")
	csvPath := flag.String("csv", "", "Catalog CSV path (overrides ingest.catalog_path)")
	imagesDir := flag.String("images", "", "Product images directory (overrides ingest.images_dir)")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if *csvPath != "" {
		cfg.Ingest.CatalogPath = *csvPath
	}
	if *imagesDir != "" {
		cfg.Ingest.ImagesDir = *imagesDir
	}
	if *workers > 0 {
		cfg.Ingest.Workers = *workers
	}
	if err := cfg.Encoder.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid encoder configuration")
	}

	appLogger.WithFields(logger.Fields{
		"catalog": cfg.Ingest.CatalogPath,
		"images":  cfg.Ingest.ImagesDir,
		"limit":   *limit,
		"workers": cfg.Ingest.Workers,
		"force":   *force,
		"dry_run": *dryRun,
	}).Info("Starting ingestion")

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	jobs := repository.NewJobRepository(db)

	store, err := repository.NewQdrantStore(&repository.QdrantConnectionConfig{
		Host:   cfg.Qdrant.Host,
		Port:   cfg.Qdrant.Port,
		APIKey: cfg.Qdrant.APIKey,
		UseTLS: cfg.Qdrant.UseTLS,
		Metric: cfg.Search.Metric,
		Schemas: []repository.CollectionSchema{
			repository.ProductSchema(cfg.Collections.Product, cfg.Encoder.Text.Dimensions),
			repository.ImageSchema(cfg.Collections.Image, cfg.Encoder.Joint.Dimensions),
		},
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize Qdrant store")
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.EnsureCollections(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure Qdrant collections")
	}

	images, err := storage.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}
	if !*dryRun {
		if err := images.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
	}

	encoder := service.NewEncoderGateway(&service.EncoderConfig{
		Text: service.EncoderBackendConfig{
			BaseURL:    cfg.Encoder.Text.BaseURL,
			Dimensions: cfg.Encoder.Text.Dimensions,
			Timeout:    cfg.Encoder.Text.Timeout,
		},
		Joint: service.EncoderBackendConfig{
			BaseURL:    cfg.Encoder.Joint.BaseURL,
			Dimensions: cfg.Encoder.Joint.Dimensions,
			Timeout:    cfg.Encoder.Joint.Timeout,
		},
	})

	ingestService := service.NewIngestService(encoder, store, images, jobs, &service.IngestConfig{
		Workers:           cfg.Ingest.Workers,
		BatchSize:         cfg.Ingest.BatchSize,
		ImageSize:         cfg.Ingest.ImageSize,
		ProductCollection: cfg.Collections.Product,
		ImageCollection:   cfg.Collections.Image,
	})

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	src := csvcatalog.NewAdapter(cfg.Ingest.CatalogPath, cfg.Ingest.ImagesDir)

	job := &domain.IngestJob{
		ID:          uuid.New().String(),
		CatalogPath: cfg.Ingest.CatalogPath,
		Status:      domain.JobStatusPending,
	}
	if err := jobs.Create(ctx, job); err != nil {
		appLogger.WithError(err).Fatal("Failed to create ingest job")
	}

	stats, err := ingestService.IngestFromSource(ctx, src, *limit, &service.IngestOptions{
		Force:  *force,
		DryRun: *dryRun,
		JobID:  job.ID,
	})
	if err != nil {
		appLogger.WithError(err).WithField("job_id", job.ID).Fatal("Failed to ingest catalog")
	}
	appLogger.WithFields(logger.Fields{
		"job_id":    job.ID,
		"total":     stats.TotalItems,
		"processed": stats.ProcessedItems,
		"skipped":   stats.SkippedItems,
		"failed":    stats.FailedItems,
	}).Info("Ingestion completed")
}

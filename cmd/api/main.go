package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/shopsearch/internal/api"
	"github.com/timmy/shopsearch/internal/api/handler"
	"github.com/timmy/shopsearch/internal/api/middleware"
	"github.com/timmy/shopsearch/internal/config"
	"github.com/timmy/shopsearch/internal/logger"
	"github.com/timmy/shopsearch/internal/repository"
	"github.com/timmy/shopsearch/internal/service"
	"github.com/timmy/shopsearch/internal/source"
	"github.com/timmy/shopsearch/internal/source/csvcatalog"
	"github.com/timmy/shopsearch/internal/storage"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	appLogger := logger.New(&logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ServiceName: "shopsearch-api",
		File:        cfg.Logging.File,
		FileOnly:    cfg.Logging.FileOnly,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
		Compress:    cfg.Logging.Compress,
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	if err := cfg.Encoder.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid encoder configuration")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize vector store
	store, err := repository.NewQdrantStore(&repository.QdrantConnectionConfig{
		Host:   cfg.Qdrant.Host,
		Port:   cfg.Qdrant.Port,
		APIKey: cfg.Qdrant.APIKey,
		UseTLS: cfg.Qdrant.UseTLS,
		Metric: cfg.Search.Metric,
		Schemas: []repository.CollectionSchema{
			repository.ProductSchema(cfg.Collections.Product, cfg.Encoder.Text.Dimensions),
			repository.ImageSchema(cfg.Collections.Image, cfg.Encoder.Joint.Dimensions),
			repository.PreferenceSchema(cfg.Collections.Preference, cfg.Encoder.Text.Dimensions),
		},
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize Qdrant store")
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.EnsureCollections(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure Qdrant collections")
	}

	// Initialize services
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

	preferences := repository.NewPreferenceRepository(store, cfg.Collections.Preference)
	purchases := repository.NewPurchaseRepository(db)

	searchService := service.NewSearchService(encoder, store, service.SearchConfig{
		ProductCollection: cfg.Collections.Product,
		ImageCollection:   cfg.Collections.Image,
		TopK:              cfg.Search.TopK,
		Params: repository.SearchParams{
			Metric:       cfg.Search.Metric,
			NProbe:       cfg.Search.NProbe,
			RoundDecimal: cfg.Search.RoundDecimal,
		},
	})
	productService := service.NewProductService(
		searchService,
		service.NewRerankService(encoder, preferences),
		service.NewPreferenceService(store, preferences, cfg.Collections.Product),
		purchases,
	)

	// Catalog ingestion is optional for the API server; it needs object storage.
	var admin *handler.AdminHandler
	images, err := storage.NewStorage(ctx, &cfg.Storage)
	if err == nil {
		err = images.EnsureBucket(ctx)
	}
	if err != nil {
		appLogger.WithError(err).Warn("Object storage unavailable, admin ingest routes disabled")
	} else {
		jobs := repository.NewJobRepository(db)
		ingestService := service.NewIngestService(encoder, store, images, jobs, &service.IngestConfig{
			Workers:           cfg.Ingest.Workers,
			BatchSize:         cfg.Ingest.BatchSize,
			ImageSize:         cfg.Ingest.ImageSize,
			ProductCollection: cfg.Collections.Product,
			ImageCollection:   cfg.Collections.Image,
		})
		sources := map[string]source.Source{
			"catalog": csvcatalog.NewAdapter(cfg.Ingest.CatalogPath, cfg.Ingest.ImagesDir),
		}
		admin = handler.NewAdminHandler(ingestService, sources, jobs)
	}

	router := api.SetupRouter(api.RouterConfig{
		Mode: cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
		Health: map[string]handler.HealthCheck{
			"database":     func(ctx context.Context) error { return repository.PingDB(ctx, db) },
			"vector_store": store.Ping,
		},
	}, appLogger, productService, admin)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	if admin != nil {
		admin.Wait()
	}

	appLogger.Info("Server exited")
}

package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timmy/shopsearch/internal/domain"
	"github.com/timmy/shopsearch/internal/imaging"
	"github.com/timmy/shopsearch/internal/logger"
	"github.com/timmy/shopsearch/internal/repository"
	"github.com/timmy/shopsearch/internal/source"
	"github.com/timmy/shopsearch/internal/storage"
)

// JobTracker persists the progress of an ingestion run.
type JobTracker interface {
	MarkRunning(ctx context.Context, id string, total int) error
	Finish(ctx context.Context, job *domain.IngestJob) error
}

// IngestService loads catalog products into the product and product image
// collections.
type IngestService struct {
	encoder           Encoder
	store             repository.VectorStore
	images            storage.ImageStore
	jobs              JobTracker
	workers           int
	batchSize         int
	imageSize         int
	productCollection string
	imageCollection   string
}

// IngestConfig holds configuration for the ingest service
type IngestConfig struct {
	Workers           int
	BatchSize         int
	ImageSize         int
	ProductCollection string
	ImageCollection   string
}

// NewIngestService creates a new ingest service. jobs may be nil.
func NewIngestService(
	encoder Encoder,
	store repository.VectorStore,
	images storage.ImageStore,
	jobs JobTracker,
	cfg *IngestConfig,
) *IngestService {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 6
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	return &IngestService{
		encoder:           encoder,
		store:             store,
		images:            images,
		jobs:              jobs,
		workers:           workers,
		batchSize:         batchSize,
		imageSize:         cfg.ImageSize,
		productCollection: cfg.ProductCollection,
		imageCollection:   cfg.ImageCollection,
	}
}

// IngestStats holds statistics for an ingestion run
type IngestStats struct {
	TotalItems     int64
	ProcessedItems int64
	SkippedItems   int64
	FailedItems    int64
	StartTime      time.Time
	EndTime        time.Time
}

// IngestOptions holds options for ingestion
type IngestOptions struct {
	Force  bool   // re-ingest products already present in the product collection
	DryRun bool   // read and preprocess only; nothing is uploaded, embedded or inserted
	JobID  string // job row to update; empty disables tracking
}

// IngestFromSource ingests up to limit catalog items from src.
func (s *IngestService) IngestFromSource(ctx context.Context, src source.Source, limit int, opts *IngestOptions) (*IngestStats, error) {
	if opts == nil {
		opts = &IngestOptions{}
	}

	stats := &IngestStats{
		StartTime: time.Now(),
	}

	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldComponent: "ingest",
		"source":              src.GetSourceID(),
	})
	if opts.JobID != "" {
		ctx = logger.SetJobID(ctx, opts.JobID)
	}
	logger.With(logger.Fields{
		"limit":   limit,
		"force":   opts.Force,
		"dry_run": opts.DryRun,
		"workers": s.workers,
	}).Info(ctx, "Starting ingestion")

	s.markRunning(ctx, opts.JobID, limit)

	itemsChan := make(chan domain.CatalogItem, s.workers*2)
	resultsChan := make(chan *processResult, s.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, itemsChan, resultsChan, opts)
		}()
	}

	var errorLog []string
	done := make(chan struct{})
	go func() {
		for result := range resultsChan {
			atomic.AddInt64(&stats.ProcessedItems, 1)
			if result.skipped {
				atomic.AddInt64(&stats.SkippedItems, 1)
			} else if result.err != nil {
				atomic.AddInt64(&stats.FailedItems, 1)
				errorLog = append(errorLog, fmt.Sprintf("%d: %v", result.productID, result.err))
				logger.With(logger.Fields{"product_id": result.productID}).
					WithError(result.err).Error(ctx, "Failed to process item")
			}
		}
		close(done)
	}()

	var fetchErr error
	cursor := ""
	totalFetched := 0
fetch:
	for {
		if ctx.Err() != nil {
			break
		}

		remaining := limit - totalFetched
		if remaining <= 0 {
			break
		}

		batchLimit := s.batchSize
		if batchLimit > remaining {
			batchLimit = remaining
		}

		items, nextCursor, err := src.FetchBatch(ctx, cursor, batchLimit)
		if err != nil {
			fetchErr = fmt.Errorf("failed to fetch batch: %w", err)
			logger.CtxError(ctx, "Failed to fetch batch: %v", err)
			break
		}

		if len(items) == 0 {
			break
		}

		atomic.AddInt64(&stats.TotalItems, int64(len(items)))
		totalFetched += len(items)

		for _, item := range items {
			select {
			case itemsChan <- item:
			case <-ctx.Done():
				break fetch
			}
		}

		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	close(itemsChan)
	wg.Wait()

	close(resultsChan)
	<-done

	stats.EndTime = time.Now()

	s.finish(ctx, opts.JobID, stats, fetchErr, errorLog)

	logger.With(logger.Fields{
		"total":     stats.TotalItems,
		"processed": stats.ProcessedItems,
		"skipped":   stats.SkippedItems,
		"failed":    stats.FailedItems,
	}).WithDuration(stats.EndTime.Sub(stats.StartTime).Milliseconds()).Info(ctx, "Ingestion completed")

	return stats, fetchErr
}

type processResult struct {
	productID int64
	skipped   bool
	err       error
}

// errSkip marks an item that was intentionally not ingested.
var errSkip = errors.New("skipped")

func (s *IngestService) worker(ctx context.Context, items <-chan domain.CatalogItem, results chan<- *processResult, opts *IngestOptions) {
	for item := range items {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result := &processResult{productID: item.ID}
		if err := s.processItem(ctx, item, opts); err != nil {
			if errors.Is(err, errSkip) {
				result.skipped = true
				logger.CtxDebug(ctx, "Skipping product %d: %v", item.ID, err)
			} else {
				result.err = err
			}
		}
		results <- result
	}
}

// processItem stores one product. Encoder calls run before any write so a
// failed embedding leaves nothing behind.
func (s *IngestService) processItem(ctx context.Context, item domain.CatalogItem, opts *IngestOptions) error {
	name := strings.TrimSpace(item.DisplayName)
	if name == "" {
		return fmt.Errorf("%w: empty display name", errSkip)
	}
	if item.ImagePath == "" {
		return fmt.Errorf("%w: no image", errSkip)
	}

	if !opts.Force && !opts.DryRun {
		exists, err := s.productExists(ctx, item.ID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: already ingested", errSkip)
		}
	}

	raw, err := os.ReadFile(item.ImagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	img, err := imaging.Preprocess(raw, s.imageSize)
	if err != nil {
		return fmt.Errorf("failed to preprocess image: %w", err)
	}
	if opts.DryRun {
		return nil
	}

	textVector, err := s.encoder.EmbedText(ctx, name, domain.BackendShort)
	if err != nil {
		return fmt.Errorf("failed to embed display name: %w", err)
	}
	imageVector, err := s.encoder.EmbedImage(ctx, img.Base64(), "a photo of a "+name)
	if err != nil {
		return fmt.Errorf("failed to embed image: %w", err)
	}

	imageURL, err := s.images.PutImage(ctx, item.ID, img.PNG)
	if err != nil {
		return fmt.Errorf("failed to store image: %w", err)
	}

	productRow := repository.Row{
		ID: uint64(item.ID),
		Fields: map[string]any{
			repository.FieldID:          item.ID,
			repository.FieldGender:      item.Gender,
			repository.FieldBaseColor:   item.BaseColor,
			repository.FieldSeason:      item.Season,
			repository.FieldUsage:       item.Usage,
			repository.FieldDisplayName: name,
			repository.FieldImageURL:    imageURL,
		},
		Vectors: map[string][]float32{repository.FieldTextVector: textVector},
	}
	if err := s.store.Insert(ctx, s.productCollection, []repository.Row{productRow}); err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}

	imageRow := repository.Row{
		Fields:  map[string]any{repository.FieldProductID: item.ID},
		Vectors: map[string][]float32{repository.FieldImageVector: imageVector},
	}
	if err := s.store.Insert(ctx, s.imageCollection, []repository.Row{imageRow}); err != nil {
		// Roll back so a retry does not skip a product without an image row.
		if delErr := s.store.Delete(ctx, s.productCollection, repository.FieldIn(repository.FieldID, item.ID)); delErr != nil {
			logger.With(logger.Fields{"product_id": item.ID}).
				WithError(delErr).Error(ctx, "Failed to roll back product insert")
		}
		return fmt.Errorf("failed to insert product image: %w", err)
	}
	return nil
}

func (s *IngestService) productExists(ctx context.Context, id int64) (bool, error) {
	rs, err := s.store.Query(ctx, &repository.QueryRequest{
		Collection:   s.productCollection,
		OutputFields: []string{repository.FieldID},
		Filter:       repository.FieldIn(repository.FieldID, id),
	})
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return rs.Len() > 0, nil
}

func (s *IngestService) markRunning(ctx context.Context, jobID string, total int) {
	if s.jobs == nil || jobID == "" {
		return
	}
	if err := s.jobs.MarkRunning(ctx, jobID, total); err != nil {
		logger.CtxWarn(ctx, "Failed to mark job running: %v", err)
	}
}

// maxErrorLogLines bounds the error log stored on a job row.
const maxErrorLogLines = 100

func (s *IngestService) finish(ctx context.Context, jobID string, stats *IngestStats, fetchErr error, errorLog []string) {
	if s.jobs == nil || jobID == "" {
		return
	}

	status := domain.JobStatusCompleted
	if fetchErr != nil || ctx.Err() != nil {
		status = domain.JobStatusFailed
	}
	if fetchErr != nil {
		errorLog = append([]string{fetchErr.Error()}, errorLog...)
	}
	if len(errorLog) > maxErrorLogLines {
		errorLog = errorLog[:maxErrorLogLines]
	}

	job := &domain.IngestJob{
		ID:             jobID,
		Status:         status,
		TotalItems:     int(stats.TotalItems),
		ProcessedItems: int(stats.ProcessedItems),
		SkippedItems:   int(stats.SkippedItems),
		FailedItems:    int(stats.FailedItems),
		ErrorLog:       strings.Join(errorLog, "\n"),
	}
	// The run context may already be cancelled; the final state must still land.
	if err := s.jobs.Finish(context.WithoutCancel(ctx), job); err != nil {
		logger.CtxWarn(ctx, "Failed to finish job: %v", err)
	}
}

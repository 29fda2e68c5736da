package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/timmy/shopsearch/internal/domain"
	"github.com/timmy/shopsearch/internal/logger"
	"github.com/timmy/shopsearch/internal/service"
	"github.com/timmy/shopsearch/internal/source"
	"gorm.io/gorm"
)

// Ingester runs catalog ingestion.
type Ingester interface {
	IngestFromSource(ctx context.Context, src source.Source, limit int, opts *service.IngestOptions) (*service.IngestStats, error)
}

// JobStore persists ingestion jobs.
type JobStore interface {
	Create(ctx context.Context, job *domain.IngestJob) error
	GetByID(ctx context.Context, id string) (*domain.IngestJob, error)
}

// AdminHandler handles admin operations.
type AdminHandler struct {
	ingester Ingester
	sources  map[string]source.Source
	jobs     JobStore

	// Ingest job state
	mu            sync.RWMutex
	isRunning     bool
	currentJobID  string
	currentStats  *service.IngestStats
	lastRunTime   time.Time
	lastRunStatus string
	wg            sync.WaitGroup
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - ingester: ingest service instance.
//   - sources: map of catalog sources keyed by name.
//   - jobs: job repository.
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(ingester Ingester, sources map[string]source.Source, jobs JobStore) *AdminHandler {
	return &AdminHandler{
		ingester: ingester,
		sources:  sources,
		jobs:     jobs,
	}
}

// IngestRequest represents the ingest API request.
type IngestRequest struct {
	Source string `json:"source" binding:"required"`
	Limit  int    `json:"limit" binding:"required,min=1,max=100000"`
	Force  bool   `json:"force"`
	DryRun bool   `json:"dry_run"`
}

// IngestResponse represents the ingest API response.
type IngestResponse struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

// IngestStatusResponse represents the ingest status.
type IngestStatusResponse struct {
	IsRunning     bool                 `json:"is_running"`
	CurrentJobID  string               `json:"current_job_id,omitempty"`
	LastRunTime   string               `json:"last_run_time,omitempty"`
	LastRunStatus string               `json:"last_run_status,omitempty"`
	CurrentStats  *service.IngestStats `json:"current_stats,omitempty"`
}

// TriggerIngest starts an ingestion job in the background and returns its
// ID. Only one job runs at a time.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) TriggerIngest(c *gin.Context) {
	ctx := c.Request.Context()

	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.CtxWarn(ctx, "Invalid ingest request: client_ip=%s, error=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	src, ok := h.sources[req.Source]
	if !ok {
		logger.CtxWarn(ctx, "Unknown source requested: source=%s, client_ip=%s", req.Source, c.ClientIP())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown source: " + req.Source})
		return
	}

	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		logger.CtxWarn(ctx, "Ingest request rejected: already running, source=%s", req.Source)
		c.JSON(http.StatusConflict, gin.H{"error": "Ingest is already running"})
		return
	}
	h.isRunning = true
	h.currentStats = nil
	h.mu.Unlock()

	job := &domain.IngestJob{
		ID:          uuid.New().String(),
		CatalogPath: src.GetSourceID(),
		Status:      domain.JobStatusPending,
	}
	if err := h.jobs.Create(ctx, job); err != nil {
		h.mu.Lock()
		h.isRunning = false
		h.mu.Unlock()
		logger.CtxError(ctx, "Failed to create ingest job: source=%s, error=%v", req.Source, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create ingest job"})
		return
	}

	h.mu.Lock()
	h.currentJobID = job.ID
	h.mu.Unlock()

	logger.CtxInfo(ctx, "Starting ingest job: job_id=%s, source=%s, limit=%d, force=%v, dry_run=%v",
		job.ID, req.Source, req.Limit, req.Force, req.DryRun)

	// The job outlives the HTTP request; keep only its log fields.
	ingestCtx := context.WithoutCancel(ctx)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runIngest(ingestCtx, src, job.ID, req)
	}()

	c.JSON(http.StatusAccepted, IngestResponse{
		Message: "Ingest started",
		JobID:   job.ID,
	})
}

func (h *AdminHandler) runIngest(ctx context.Context, src source.Source, jobID string, req IngestRequest) {
	startTime := time.Now()
	stats, err := h.ingester.IngestFromSource(ctx, src, req.Limit, &service.IngestOptions{
		Force:  req.Force,
		DryRun: req.DryRun,
		JobID:  jobID,
	})
	duration := time.Since(startTime)

	h.mu.Lock()
	h.isRunning = false
	h.currentStats = stats
	h.lastRunTime = time.Now()
	if err != nil {
		h.lastRunStatus = "failed: " + err.Error()
	} else {
		h.lastRunStatus = "success"
	}
	h.mu.Unlock()

	if err != nil {
		logger.With(logger.Fields{
			logger.FieldDurationMs: duration.Milliseconds(),
		}).Error(ctx, "Ingest job failed: job_id=%s, error=%v", jobID, err)
		return
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: duration.Milliseconds(),
		logger.FieldCount:      stats.ProcessedItems,
	}).Info(ctx, "Ingest job completed: job_id=%s, total=%d, processed=%d, skipped=%d, failed=%d",
		jobID, stats.TotalItems, stats.ProcessedItems, stats.SkippedItems, stats.FailedItems)
}

// Wait blocks until background ingest jobs have finished.
func (h *AdminHandler) Wait() {
	h.wg.Wait()
}

// GetIngestStatus returns the current ingest status.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) GetIngestStatus(c *gin.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := IngestStatusResponse{
		IsRunning:     h.isRunning,
		CurrentJobID:  h.currentJobID,
		LastRunStatus: h.lastRunStatus,
		CurrentStats:  h.currentStats,
	}

	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, resp)
}

// GetJob returns a persisted ingestion job.
func (h *AdminHandler) GetJob(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	job, err := h.jobs.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if err != nil {
		logger.CtxError(ctx, "Failed to load job: job_id=%s, error=%v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

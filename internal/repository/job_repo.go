package repository

import (
	"context"
	"time"

	"github.com/timmy/shopsearch/internal/domain"
	"gorm.io/gorm"
)

// JobRepository tracks catalog ingestion runs.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a job in pending state.
func (r *JobRepository) Create(ctx context.Context, job *domain.IngestJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// MarkRunning records the job start.
func (r *JobRepository) MarkRunning(ctx context.Context, id string, total int) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&domain.IngestJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      domain.JobStatusRunning,
			"total_items": total,
			"started_at":  &now,
		}).Error
}

// Finish stores the final counters and status of a job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job carrying the final counters; Status and ErrorLog are written as-is.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) Finish(ctx context.Context, job *domain.IngestJob) error {
	now := time.Now()
	job.CompletedAt = &now
	return r.db.WithContext(ctx).
		Model(&domain.IngestJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":          job.Status,
			"total_items":     job.TotalItems,
			"processed_items": job.ProcessedItems,
			"skipped_items":   job.SkippedItems,
			"failed_items":    job.FailedItems,
			"error_log":       job.ErrorLog,
			"completed_at":    &now,
		}).Error
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.IngestJob, error) {
	var job domain.IngestJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

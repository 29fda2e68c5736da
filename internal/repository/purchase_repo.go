package repository

import (
	"context"

	"github.com/timmy/shopsearch/internal/domain"
	"gorm.io/gorm"
)

// PurchaseRepository persists the purchase ledger.
type PurchaseRepository struct {
	db *gorm.DB
}

// NewPurchaseRepository creates a new PurchaseRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *PurchaseRepository: repository instance bound to db.
func NewPurchaseRepository(db *gorm.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// Create inserts a ledger entry.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - record: purchase record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *PurchaseRepository) Create(ctx context.Context, record *domain.PurchaseRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// ListByBuyer returns a buyer's purchases, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - buyerEmail: buyer to filter by.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.PurchaseRecord: matching purchase records.
//   - error: non-nil if the query fails.
func (r *PurchaseRepository) ListByBuyer(ctx context.Context, buyerEmail string, limit, offset int) ([]domain.PurchaseRecord, error) {
	var records []domain.PurchaseRecord
	if err := r.db.WithContext(ctx).
		Where("buyer_email = ?", buyerEmail).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// CountByStatus counts a buyer's purchases with the given status.
func (r *PurchaseRepository) CountByStatus(ctx context.Context, buyerEmail string, status domain.PurchaseStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.PurchaseRecord{}).
		Where("buyer_email = ? AND status = ?", buyerEmail, status).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/timmy/shopsearch/internal/domain"
	"github.com/timmy/shopsearch/internal/logger"
)

// PurchaseLedger records purchase requests.
type PurchaseLedger interface {
	Create(ctx context.Context, record *domain.PurchaseRecord) error
	ListByBuyer(ctx context.Context, buyerEmail string, limit, offset int) ([]domain.PurchaseRecord, error)
}

// ProductService is the request-level entry point for search and purchase.
// Failures never escape it: they are logged and turned into an empty product
// list or a Failed purchase status.
type ProductService struct {
	search     *SearchService
	rerank     *RerankService
	preference *PreferenceService
	ledger     PurchaseLedger
}

// NewProductService creates a new product service. ledger may be nil.
func NewProductService(search *SearchService, rerank *RerankService, preference *PreferenceService, ledger PurchaseLedger) *ProductService {
	return &ProductService{search: search, rerank: rerank, preference: preference, ledger: ledger}
}

// GetProducts searches and, when the query names a requester, personalizes
// the order.
func (s *ProductService) GetProducts(ctx context.Context, q domain.SearchQuery) []domain.Product {
	ctx = logger.SetBuyerID(logger.SetOperation(ctx, "get_products"), q.RequesterID)

	products, err := s.search.Search(ctx, q)
	if err != nil {
		logFailure(ctx, err, "Search failed: query_len=%d", len(q.Text))
		return []domain.Product{}
	}

	ranked, err := s.rerank.Rerank(ctx, products, q.RequesterID)
	if err != nil {
		logFailure(ctx, err, "Re-ranking failed")
		return []domain.Product{}
	}
	return ranked
}

// BuyProducts updates the buyer's preference from a purchase and records it
// in the ledger.
func (s *ProductService) BuyProducts(ctx context.Context, event domain.PurchaseEvent) domain.PurchaseStatus {
	ctx = logger.SetBuyerID(logger.SetOperation(ctx, "buy_products"), event.BuyerID)

	status := domain.PurchaseStatusSuccess
	_, err := s.preference.RecordPurchase(ctx, event)
	if err != nil {
		status = domain.PurchaseStatusFailed
		logFailure(ctx, err, "Preference update failed: product_ids=%v", event.ProductIDs)
	}

	if s.ledger != nil && event.BuyerID != "" {
		record := &domain.PurchaseRecord{
			ID:         uuid.New().String(),
			BuyerEmail: event.BuyerID,
			ProductIDs: domain.Int64Array(event.ProductIDs),
			Status:     status,
		}
		if err != nil {
			record.ErrorMsg = err.Error()
		}
		if lerr := s.ledger.Create(ctx, record); lerr != nil {
			logger.CtxWarn(ctx, "Failed to record purchase in ledger: error=%v", lerr)
		}
	}
	return status
}

// Preference returns the buyer's stored preference.
func (s *ProductService) Preference(ctx context.Context, buyerID string) (*domain.UserPreferenceRecord, bool, error) {
	return s.preference.Preference(ctx, buyerID)
}

// PurchaseHistory lists a buyer's ledger entries, newest first.
func (s *ProductService) PurchaseHistory(ctx context.Context, buyerID string, limit, offset int) ([]domain.PurchaseRecord, error) {
	if s.ledger == nil {
		return []domain.PurchaseRecord{}, nil
	}
	return s.ledger.ListByBuyer(ctx, buyerID, limit, offset)
}

// logFailure logs caller mistakes at warn level and everything else at
// error level, tagged with the failure category.
func logFailure(ctx context.Context, err error, format string, args ...interface{}) {
	entry := logger.With(logger.Fields{"category": failureCategory(err)}).WithError(err)
	if errors.Is(err, domain.ErrInvalidRequest) {
		entry.Warn(ctx, format, args...)
		return
	}
	entry.Error(ctx, format, args...)
}

func failureCategory(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, domain.ErrEncodingUnavailable):
		return "encoding_unavailable"
	case errors.Is(err, domain.ErrVectorStoreUnavailable):
		return "vector_store_unavailable"
	case errors.Is(err, domain.ErrPreferenceDataMissing):
		return "preference_data_missing"
	default:
		return "internal"
	}
}

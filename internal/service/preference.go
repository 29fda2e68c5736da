package service

import (
	"context"
	"fmt"

	"github.com/timmy/shopsearch/internal/domain"
	"github.com/timmy/shopsearch/internal/logger"
	"github.com/timmy/shopsearch/internal/repository"
)

// PreferenceStore keeps one preference record per buyer.
type PreferenceStore interface {
	Get(ctx context.Context, buyerID string) (*domain.UserPreferenceRecord, bool, error)
	Create(ctx context.Context, record *domain.UserPreferenceRecord) error
	Replace(ctx context.Context, record *domain.UserPreferenceRecord) error
}

// PreferenceService learns buyer preferences from purchases.
type PreferenceService struct {
	store             repository.VectorStore
	prefs             PreferenceStore
	productCollection string
}

// NewPreferenceService creates a new preference service.
func NewPreferenceService(store repository.VectorStore, prefs PreferenceStore, productCollection string) *PreferenceService {
	return &PreferenceService{store: store, prefs: prefs, productCollection: productCollection}
}

// RecordPurchase folds a purchase into the buyer's stored preference.
//
// Attribute values of the purchased products are counted per attribute,
// keyed by the normalized preference key, and summed into the stored counts.
// The text embedding of the last purchased product becomes the record's
// representative vector. A buyer without a record gets a new one; otherwise
// the record is replaced as a whole.
func (s *PreferenceService) RecordPurchase(ctx context.Context, event domain.PurchaseEvent) (*domain.UserPreferenceRecord, error) {
	if event.BuyerID == "" {
		return nil, fmt.Errorf("%w: missing buyer id", domain.ErrInvalidRequest)
	}
	if len(event.ProductIDs) == 0 {
		return nil, fmt.Errorf("%w: no products purchased", domain.ErrInvalidRequest)
	}

	ctx = logger.SetComponent(ctx, "preference")

	fresh, latest, err := s.observe(ctx, event.ProductIDs)
	if err != nil {
		return nil, err
	}

	existing, found, err := s.prefs.Get(ctx, event.BuyerID)
	if err != nil {
		return nil, err
	}

	record := &domain.UserPreferenceRecord{BuyerID: event.BuyerID, Vector: latest}
	if found {
		record.Attributes = domain.MergeAttributeCounts(existing.Attributes, fresh)
		err = s.prefs.Replace(ctx, record)
	} else {
		record.Attributes = domain.MergeAttributeCounts(nil, fresh)
		err = s.prefs.Create(ctx, record)
	}
	if err != nil {
		return nil, err
	}

	logger.With(logger.Fields{
		logger.FieldCount: len(event.ProductIDs),
		"merged":          found,
		"dominant":        record.DominantValues(),
	}).Info(ctx, "Preference updated")
	return record, nil
}

// Preference returns the buyer's stored record.
func (s *PreferenceService) Preference(ctx context.Context, buyerID string) (*domain.UserPreferenceRecord, bool, error) {
	if buyerID == "" {
		return nil, false, fmt.Errorf("%w: missing buyer id", domain.ErrInvalidRequest)
	}
	return s.prefs.Get(ctx, buyerID)
}

// observe loads the purchased products and counts their attribute values.
// Each distinct product counts once, however often it appears in ids. It
// also returns the text vector of
// the most recent purchase that has one.
func (s *PreferenceService) observe(ctx context.Context, ids []int64) (domain.AttributeCounts, []float32, error) {
	fields := append([]string{repository.FieldID}, domain.TrackedAttributes...)
	fields = append(fields, repository.FieldTextVector)

	rs, err := s.store.Query(ctx, &repository.QueryRequest{
		Collection:   s.productCollection,
		OutputFields: fields,
		Filter:       repository.FieldIn(repository.FieldID, uniqueIDs(ids)...),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load purchased products: %w", err)
	}
	if rs.Len() == 0 {
		return nil, nil, fmt.Errorf("%w: no attribute rows for products %v", domain.ErrPreferenceDataMissing, ids)
	}

	rowIDs, err := rs.Int64s(repository.FieldID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrVectorStoreUnavailable, err)
	}
	rowOf := make(map[int64]int, len(rowIDs))
	for i, id := range rowIDs {
		rowOf[id] = i
	}

	distinct := uniqueIDs(ids)
	counts := make(domain.AttributeCounts, len(domain.TrackedAttributes))
	for _, attr := range domain.TrackedAttributes {
		column, err := rs.Strings(attr)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", domain.ErrVectorStoreUnavailable, err)
		}
		values := make([]string, 0, len(distinct))
		for _, id := range distinct {
			if row, ok := rowOf[id]; ok {
				values = append(values, column[row])
			}
		}
		counts[domain.NormalizeAttributeName(attr)] = domain.CountValues(values)
	}

	vectors, err := rs.Vectors(repository.FieldTextVector)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrVectorStoreUnavailable, err)
	}
	var latest []float32
	for i := len(ids) - 1; i >= 0 && latest == nil; i-- {
		if row, ok := rowOf[ids[i]]; ok && len(vectors[row]) > 0 {
			latest = vectors[row]
		}
	}
	if latest == nil {
		return nil, nil, fmt.Errorf("%w: no text vector for products %v", domain.ErrPreferenceDataMissing, ids)
	}

	if missing := len(distinct) - len(rowOf); missing > 0 {
		logger.CtxWarn(ctx, "Some purchased products were not found: requested=%v missing=%d", ids, missing)
	}
	return counts, latest, nil
}

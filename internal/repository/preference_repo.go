package repository

import (
	"context"
	"fmt"

	"github.com/timmy/shopsearch/internal/domain"
	"github.com/timmy/shopsearch/internal/logger"
)

const (
	fieldBuyerEmail       = "buyer_email"
	fieldPreferenceVector = "product_text_vector"
)

// PreferenceSchema returns the collection layout of the preference store.
func PreferenceSchema(collection string, textDim int) CollectionSchema {
	return CollectionSchema{
		Name:           collection,
		Vectors:        map[string]int{fieldPreferenceVector: textDim},
		KeywordIndexes: []string{fieldBuyerEmail},
	}
}

// PreferenceRepository keeps one preference record per buyer in the vector
// store. Count maps are stored as JSON strings, one column per attribute.
type PreferenceRepository struct {
	store      VectorStore
	collection string
}

// NewPreferenceRepository creates a new PreferenceRepository.
// Parameters:
//   - store: vector store holding the preference collection.
//   - collection: preference collection name.
//
// Returns:
//   - *PreferenceRepository: repository instance bound to store.
func NewPreferenceRepository(store VectorStore, collection string) *PreferenceRepository {
	return &PreferenceRepository{store: store, collection: collection}
}

// Get loads the buyer's record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - buyerID: buyer email.
//
// Returns:
//   - *domain.UserPreferenceRecord: stored record, nil when none exists.
//   - bool: whether a record exists.
//   - error: non-nil if the lookup or decoding fails.
func (r *PreferenceRepository) Get(ctx context.Context, buyerID string) (*domain.UserPreferenceRecord, bool, error) {
	fields := append([]string{fieldBuyerEmail}, domain.PreferenceKeys...)
	fields = append(fields, fieldPreferenceVector)

	rs, err := r.store.Query(ctx, &QueryRequest{
		Collection:   r.collection,
		OutputFields: fields,
		Filter:       FieldEquals(fieldBuyerEmail, buyerID),
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to load preference: %w", err)
	}
	if rs.Len() == 0 {
		return nil, false, nil
	}
	if rs.Len() > 1 {
		logger.ForBuyer(buyerID).WithCollection(r.collection).WithCount(rs.Len()).
			Warn(ctx, "Multiple preference records found, using the first")
	}

	record := &domain.UserPreferenceRecord{
		BuyerID:    buyerID,
		Attributes: make(domain.AttributeCounts, len(domain.PreferenceKeys)),
	}
	for _, key := range domain.PreferenceKeys {
		values, err := rs.Strings(key)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
		}
		counts, err := domain.DecodeAttributeCountMap(values[0])
		if err != nil {
			return nil, false, fmt.Errorf("failed to decode %s: %w", key, err)
		}
		record.Attributes[key] = counts
	}

	vectors, err := rs.Vectors(fieldPreferenceVector)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read preference vector: %w", err)
	}
	record.Vector = vectors[0]

	return record, true, nil
}

// Create inserts a record for a buyer that has none.
func (r *PreferenceRepository) Create(ctx context.Context, record *domain.UserPreferenceRecord) error {
	row, err := preferenceRow(record)
	if err != nil {
		return err
	}
	if err := r.store.Insert(ctx, r.collection, []Row{row}); err != nil {
		return fmt.Errorf("failed to create preference: %w", err)
	}
	return nil
}

// Replace deletes every record of the buyer and inserts record in its place.
// If the insert fails after the delete succeeded the buyer is left without a
// record; that case is logged as a correctness-critical fault.
func (r *PreferenceRepository) Replace(ctx context.Context, record *domain.UserPreferenceRecord) error {
	row, err := preferenceRow(record)
	if err != nil {
		return err
	}

	if err := r.store.Delete(ctx, r.collection, FieldEquals(fieldBuyerEmail, record.BuyerID)); err != nil {
		return fmt.Errorf("failed to delete preference: %w", err)
	}

	if err := r.store.Insert(ctx, r.collection, []Row{row}); err != nil {
		logger.ForBuyer(record.BuyerID).WithCollection(r.collection).Critical().
			WithError(err).Error(ctx, "Preference deleted but replacement insert failed, buyer has no preference record")
		return fmt.Errorf("failed to insert replacement preference: %w", err)
	}

	logger.ForBuyer(record.BuyerID).Debug(ctx, "Preference replaced")
	return nil
}

func preferenceRow(record *domain.UserPreferenceRecord) (Row, error) {
	if record == nil || record.BuyerID == "" {
		return Row{}, fmt.Errorf("%w: preference record needs a buyer id", domain.ErrInvalidRequest)
	}

	fields := map[string]any{fieldBuyerEmail: record.BuyerID}
	for _, key := range domain.PreferenceKeys {
		encoded, err := record.Attributes[key].Encode()
		if err != nil {
			return Row{}, err
		}
		fields[key] = encoded
	}

	row := Row{Fields: fields}
	if len(record.Vector) > 0 {
		row.Vectors = map[string][]float32{fieldPreferenceVector: record.Vector}
	}
	return row, nil
}

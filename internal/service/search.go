package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/shopsearch/internal/domain"
	"github.com/timmy/shopsearch/internal/logger"
	"github.com/timmy/shopsearch/internal/repository"
)

// SearchConfig holds configuration for search service.
type SearchConfig struct {
	ProductCollection string
	ImageCollection   string
	TopK              int
	Params            repository.SearchParams
}

// SearchService turns a query into a ranked product list. Text queries hit
// the product collection directly; image-text queries search the image
// collection and then look up display fields on the product collection.
type SearchService struct {
	encoder Encoder
	store   repository.VectorStore
	cfg     SearchConfig
}

// NewSearchService creates a new search service.
// Parameters:
//   - encoder: embedding gateway.
//   - store: vector store holding the product and image collections.
//   - cfg: collections, page size and fixed search parameters.
//
// Returns:
//   - *SearchService: initialized search service.
func NewSearchService(encoder Encoder, store repository.VectorStore, cfg SearchConfig) *SearchService {
	if cfg.TopK <= 0 {
		cfg.TopK = 25
	}
	return &SearchService{encoder: encoder, store: store, cfg: cfg}
}

// Search returns products in vector store rank order with Score unset.
func (s *SearchService) Search(ctx context.Context, q domain.SearchQuery) ([]domain.Product, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidRequest)
	}
	if q.Page < 0 {
		return nil, fmt.Errorf("%w: negative page %d", domain.ErrInvalidRequest, q.Page)
	}

	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldComponent: "search",
		"mode":                string(q.Mode),
		"page":                q.Page,
	})
	start := time.Now()

	var (
		products []domain.Product
		err      error
	)
	if q.Mode == domain.SearchModeImageText {
		products, err = s.searchImages(ctx, q)
	} else {
		products, err = s.searchText(ctx, q)
	}
	if err != nil {
		return nil, err
	}

	logger.With(logger.Fields{
		logger.FieldCount:      len(products),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info(ctx, "Search completed")
	return products, nil
}

func (s *SearchService) offset(page int) int {
	return page * s.cfg.TopK
}

func (s *SearchService) searchText(ctx context.Context, q domain.SearchQuery) ([]domain.Product, error) {
	vector, err := s.encoder.EmbedText(ctx, q.Text, domain.BackendShort)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rs, err := s.store.Search(ctx, &repository.SearchRequest{
		Collection:   s.cfg.ProductCollection,
		AnnsField:    repository.FieldTextVector,
		Vector:       vector,
		OutputFields: []string{repository.FieldID, repository.FieldDisplayName, repository.FieldImageURL},
		TopK:         s.cfg.TopK,
		Offset:       s.offset(q.Page),
		Params:       s.cfg.Params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	return productsFromResult(rs)
}

func (s *SearchService) searchImages(ctx context.Context, q domain.SearchQuery) ([]domain.Product, error) {
	var (
		vector []float32
		err    error
	)
	if payload, ok := decodeImagePayload(q.Text); ok {
		logger.CtxDebug(ctx, "Query classified as image")
		vector, err = s.encoder.EmbedImage(ctx, payload, "")
	} else {
		vector, err = s.encoder.EmbedText(ctx, q.Text, domain.BackendJoint)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.store.Search(ctx, &repository.SearchRequest{
		Collection:   s.cfg.ImageCollection,
		AnnsField:    repository.FieldImageVector,
		Vector:       vector,
		OutputFields: []string{repository.FieldProductID},
		TopK:         s.cfg.TopK,
		Offset:       s.offset(q.Page),
		Params:       s.cfg.Params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search images: %w", err)
	}
	ranked, err := hits.Int64s(repository.FieldProductID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVectorStoreUnavailable, err)
	}
	ranked = uniqueIDs(ranked)
	if len(ranked) == 0 {
		return []domain.Product{}, nil
	}

	rows, err := s.store.Query(ctx, &repository.QueryRequest{
		Collection:   s.cfg.ProductCollection,
		OutputFields: []string{repository.FieldID, repository.FieldDisplayName, repository.FieldImageURL},
		Filter:       repository.FieldIn(repository.FieldID, ranked...),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	found, err := productsFromResult(rows)
	if err != nil {
		return nil, err
	}

	// Query rows come back in storage order; restore the image rank order.
	byID := make(map[int64]domain.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	products := make([]domain.Product, 0, len(ranked))
	for _, id := range ranked {
		p, ok := byID[id]
		if !ok {
			logger.CtxWarn(ctx, "Image hit references unknown product: product_id=%d", id)
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

func productsFromResult(rs *repository.ResultSet) ([]domain.Product, error) {
	ids, err := rs.Int64s(repository.FieldID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVectorStoreUnavailable, err)
	}
	names, err := rs.Strings(repository.FieldDisplayName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVectorStoreUnavailable, err)
	}
	urls, err := rs.Strings(repository.FieldImageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVectorStoreUnavailable, err)
	}

	products := make([]domain.Product, len(ids))
	for i := range ids {
		products[i] = domain.Product{ID: ids[i], Description: names[i], ImageURL: urls[i]}
	}
	return products, nil
}

// decodeImagePayload reports whether text is a base64-encoded payload and
// returns it without any data URL prefix.
func decodeImagePayload(text string) (string, bool) {
	payload := strings.TrimSpace(text)
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ";base64,")
		if idx < 0 {
			return "", false
		}
		payload = payload[idx+len(";base64,"):]
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(decoded) == 0 {
		return "", false
	}
	return payload, true
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

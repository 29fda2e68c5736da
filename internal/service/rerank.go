package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/timmy/shopsearch/internal/domain"
	"github.com/timmy/shopsearch/internal/logger"
)

// RerankService reorders search results by similarity to a buyer's
// dominant preference values.
type RerankService struct {
	encoder Encoder
	prefs   PreferenceStore
}

// NewRerankService creates a new re-ranking service.
func NewRerankService(encoder Encoder, prefs PreferenceStore) *RerankService {
	return &RerankService{encoder: encoder, prefs: prefs}
}

// Rerank scores products against the buyer's preference and sorts them by
// score, highest first. Without a buyer, a stored preference, or any
// attribute data the input is returned unchanged.
func (s *RerankService) Rerank(ctx context.Context, products []domain.Product, buyerID string) ([]domain.Product, error) {
	if buyerID == "" || len(products) == 0 {
		return products, nil
	}

	ctx = logger.SetComponent(ctx, "rerank")

	record, found, err := s.prefs.Get(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preference: %w", err)
	}
	if !found || !record.HasAttributeData() {
		logger.CtxDebug(ctx, "No preference data, keeping vector store order")
		return products, nil
	}

	dominant := record.DominantValues()
	prefVectors := make([][]float32, 0, len(dominant))
	for _, d := range dominant {
		vec, err := s.encoder.EmbedText(ctx, d.Value, domain.BackendShort)
		if err != nil {
			return nil, fmt.Errorf("failed to embed preference %s=%q: %w", d.Attribute, d.Value, err)
		}
		prefVectors = append(prefVectors, vec)
	}

	productVectors := make([][]float32, len(products))
	for i, p := range products {
		vec, err := s.encoder.EmbedText(ctx, p.Description, domain.BackendShort)
		if err != nil {
			return nil, fmt.Errorf("failed to embed product %d: %w", p.ID, err)
		}
		productVectors[i] = vec
	}

	return ScoreAndSort(products, productVectors, prefVectors), nil
}

// ScoreAndSort sets each product's score to the mean cosine similarity
// between its vector and every preference vector, then sorts by score in
// descending order. Ties keep their input order. productVectors[i] belongs
// to products[i]. The input slice is not modified.
func ScoreAndSort(products []domain.Product, productVectors, prefVectors [][]float32) []domain.Product {
	out := make([]domain.Product, len(products))
	copy(out, products)

	for i := range out {
		var vec []float32
		if i < len(productVectors) {
			vec = productVectors[i]
		}
		out[i].Score = meanCosineSimilarity(vec, prefVectors)
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Score > out[b].Score
	})
	return out
}

func meanCosineSimilarity(vec []float32, refs [][]float32) float64 {
	if len(refs) == 0 {
		return 0
	}
	var sum float64
	for _, ref := range refs {
		sum += cosineSimilarity(vec, ref)
	}
	return sum / float64(len(refs))
}

// cosineSimilarity returns 1 - cosine distance. Mismatched lengths and zero
// vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

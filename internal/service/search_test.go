package service

import (
	"context"
	"encoding/base64"
	"errors"
	"reflect"
	"testing"

	"github.com/timmy/shopsearch/internal/domain"
	"github.com/timmy/shopsearch/internal/repository"
)

var testSearchParams = repository.SearchParams{Metric: "IP", NProbe: 100, RoundDecimal: -1}

func newTestSearchService(enc Encoder, store repository.VectorStore, topK int) *SearchService {
	return NewSearchService(enc, store, SearchConfig{
		ProductCollection: "product",
		ImageCollection:   "product_image",
		TopK:              topK,
		Params:            testSearchParams,
	})
}

func productIDs(products []domain.Product) []int64 {
	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	return ids
}

func TestSearchText(t *testing.T) {
	enc := &fakeEncoder{vectors: map[string][]float32{"red shirt": {1, 0, 0}}}
	store := newFakeVectorStore()
	store.searchResults["product"] = &repository.ResultSet{
		Columns: []repository.Column{
			{Name: repository.FieldID, Values: []any{int64(7), int64(3)}},
			{Name: repository.FieldDisplayName, Values: []any{"Red Shirt", "Crimson Tee"}},
			{Name: repository.FieldImageURL, Values: []any{"https://cdn.test/7.png", nil}},
		},
		Scores: []float32{0.9, 0.8},
	}
	svc := newTestSearchService(enc, store, 2)

	got, err := svc.Search(context.Background(), domain.SearchQuery{Text: "red shirt", Mode: domain.SearchModeText, Page: 2})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	want := []domain.Product{
		{ID: 7, Description: "Red Shirt", ImageURL: "https://cdn.test/7.png"},
		{ID: 3, Description: "Crimson Tee"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Search() = %+v, want %+v", got, want)
	}

	if len(store.searches) != 1 {
		t.Fatalf("expected one search, got %d", len(store.searches))
	}
	req := store.searches[0]
	if req.Collection != "product" || req.AnnsField != repository.FieldTextVector {
		t.Errorf("search target = %s/%s", req.Collection, req.AnnsField)
	}
	if req.TopK != 2 || req.Offset != 4 {
		t.Errorf("TopK/Offset = %d/%d, want 2/4", req.TopK, req.Offset)
	}
	if req.Params != testSearchParams {
		t.Errorf("Params = %+v", req.Params)
	}
	if !reflect.DeepEqual(req.Vector, []float32{1, 0, 0}) {
		t.Errorf("Vector = %v", req.Vector)
	}
	if len(enc.calls) != 1 || enc.calls[0].backend != domain.BackendShort {
		t.Errorf("encoder calls = %+v", enc.calls)
	}
	if len(store.queries) != 0 {
		t.Errorf("text mode must not query, got %d queries", len(store.queries))
	}
}

func TestSearchImageText(t *testing.T) {
	newStore := func() *fakeVectorStore {
		store := newFakeVectorStore()
		store.searchResults["product_image"] = &repository.ResultSet{
			Columns: []repository.Column{
				{Name: repository.FieldProductID, Values: []any{int64(5), int64(9), int64(5), int64(2)}},
			},
			Scores: []float32{0.9, 0.8, 0.7, 0.6},
		}
		// Stored out of rank order; product 9 has no product row.
		store.rows["product"] = []repository.Row{
			productRow(2, "blue", "summer", "casual", "men", "Blue Shoes", nil),
			productRow(5, "blue", "winter", "sports", "women", "Navy Sneakers", nil),
			productRow(11, "red", "summer", "casual", "men", "Unrelated", nil),
		}
		return store
	}

	t.Run("text query", func(t *testing.T) {
		enc := &fakeEncoder{}
		store := newStore()
		svc := newTestSearchService(enc, store, 25)

		got, err := svc.Search(context.Background(), domain.SearchQuery{Text: "blue shoes", Mode: domain.SearchModeImageText})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if ids := productIDs(got); !reflect.DeepEqual(ids, []int64{5, 2}) {
			t.Errorf("ids = %v, want [5 2]", ids)
		}
		if got[0].Description != "Navy Sneakers" {
			t.Errorf("first product = %+v", got[0])
		}
		if len(enc.calls) != 1 || enc.calls[0].kind != "text" || enc.calls[0].backend != domain.BackendJoint {
			t.Errorf("encoder calls = %+v", enc.calls)
		}
		if req := store.searches[0]; req.Collection != "product_image" || req.AnnsField != repository.FieldImageVector || req.Offset != 0 {
			t.Errorf("search request = %+v", req)
		}
		if len(store.queries) != 1 || store.queries[0].Filter.String() != "id in [5, 9, 2]" {
			t.Errorf("queries = %+v", store.queries)
		}
	})

	t.Run("image query", func(t *testing.T) {
		enc := &fakeEncoder{}
		store := newStore()
		svc := newTestSearchService(enc, store, 25)
		payload := base64.StdEncoding.EncodeToString([]byte("\x89PNG fake image bytes"))

		for _, text := range []string{payload, "data:image/png;base64," + payload} {
			enc.calls = nil
			got, err := svc.Search(context.Background(), domain.SearchQuery{Text: text, Mode: domain.SearchModeImageText})
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if ids := productIDs(got); !reflect.DeepEqual(ids, []int64{5, 2}) {
				t.Errorf("ids = %v, want [5 2]", ids)
			}
			if len(enc.calls) != 1 || enc.calls[0].kind != "image" || enc.calls[0].input != payload {
				t.Errorf("encoder calls = %+v", enc.calls)
			}
		}
	})

	t.Run("no image hits", func(t *testing.T) {
		store := newFakeVectorStore()
		store.searchResults["product_image"] = &repository.ResultSet{
			Columns: []repository.Column{{Name: repository.FieldProductID}},
		}
		svc := newTestSearchService(&fakeEncoder{}, store, 25)
		got, err := svc.Search(context.Background(), domain.SearchQuery{Text: "nothing here", Mode: domain.SearchModeImageText})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(got) != 0 || len(store.queries) != 0 {
			t.Errorf("got %v products and %d queries", got, len(store.queries))
		}
	})
}

func TestSearchInvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		q    domain.SearchQuery
	}{
		{name: "empty", q: domain.SearchQuery{Text: ""}},
		{name: "whitespace", q: domain.SearchQuery{Text: "  \t"}},
		{name: "negative page", q: domain.SearchQuery{Text: "shirt", Page: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := &fakeEncoder{}
			store := newFakeVectorStore()
			svc := newTestSearchService(enc, store, 25)

			_, err := svc.Search(context.Background(), tt.q)
			if !errors.Is(err, domain.ErrInvalidRequest) {
				t.Fatalf("Search() error = %v, want ErrInvalidRequest", err)
			}
			if enc.callCount() != 0 || len(store.searches) != 0 {
				t.Errorf("no encoder or store call expected, got %d/%d", enc.callCount(), len(store.searches))
			}
		})
	}
}

func TestSearchPropagatesFailures(t *testing.T) {
	t.Run("encoder", func(t *testing.T) {
		enc := &fakeEncoder{err: domain.ErrEncodingUnavailable}
		svc := newTestSearchService(enc, newFakeVectorStore(), 25)
		_, err := svc.Search(context.Background(), domain.SearchQuery{Text: "shirt"})
		if !errors.Is(err, domain.ErrEncodingUnavailable) {
			t.Fatalf("Search() error = %v", err)
		}
	})

	t.Run("store", func(t *testing.T) {
		store := newFakeVectorStore()
		store.searchErr = domain.ErrVectorStoreUnavailable
		svc := newTestSearchService(&fakeEncoder{}, store, 25)
		_, err := svc.Search(context.Background(), domain.SearchQuery{Text: "shirt"})
		if !errors.Is(err, domain.ErrVectorStoreUnavailable) {
			t.Fatalf("Search() error = %v", err)
		}
	})
}

func TestDecodeImagePayload(t *testing.T) {
	tests := []struct {
		text   string
		want   string
		wantOK bool
	}{
		{text: "aGVsbG8=", want: "aGVsbG8=", wantOK: true},
		{text: "data:image/jpeg;base64,aGVsbG8=", want: "aGVsbG8=", wantOK: true},
		{text: "red shirt", wantOK: false},
		{text: "data:image/png,raw", wantOK: false},
		{text: "", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := decodeImagePayload(tt.text)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("decodeImagePayload(%q) = %q, %v", tt.text, got, ok)
			}
		})
	}
}

func TestNewSearchServiceDefaultsTopK(t *testing.T) {
	svc := NewSearchService(&fakeEncoder{}, newFakeVectorStore(), SearchConfig{})
	if svc.offset(3) != 75 {
		t.Errorf("offset(3) = %d, want 75", svc.offset(3))
	}
}

package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/timmy/shopsearch/internal/domain"
	"github.com/timmy/shopsearch/internal/repository"
)

func newCatalogStore() *fakeVectorStore {
	store := newFakeVectorStore()
	store.rows["product"] = []repository.Row{
		productRow(1, "red", "summer", "casual", "men", "Red Polo", []float32{1, 0, 0}),
		productRow(2, "red", "summer", "sports", "men", "Red Runner", []float32{0, 1, 0}),
		productRow(3, "blue", "winter", "casual", "men", "Blue Parka", []float32{0, 0, 1}),
		productRow(4, "blue", "fall", "formal", "women", "Blue Blazer", []float32{1, 1, 0}),
		productRow(5, "green", "fall", "casual", "women", "Green Scarf", []float32{0, 1, 1}),
		productRow(6, "", "", "", "", "Plain Item", nil),
	}
	return store
}

func TestRecordPurchaseFirstAndSecond(t *testing.T) {
	ctx := context.Background()
	prefs := newFakePreferenceStore()
	svc := NewPreferenceService(newCatalogStore(), prefs, "product")

	first, err := svc.RecordPurchase(ctx, domain.PurchaseEvent{BuyerID: "a@b.com", ProductIDs: []int64{1, 2, 3}})
	if err != nil {
		t.Fatalf("RecordPurchase() error = %v", err)
	}
	if want := (domain.AttributeCountMap{"red": 2, "blue": 1}); !reflect.DeepEqual(first.Attributes[domain.PrefColor], want) {
		t.Errorf("color after first purchase = %v, want %v", first.Attributes[domain.PrefColor], want)
	}
	if want := (domain.AttributeCountMap{"summer": 2, "winter": 1}); !reflect.DeepEqual(first.Attributes[domain.PrefSeason], want) {
		t.Errorf("season after first purchase = %v, want %v", first.Attributes[domain.PrefSeason], want)
	}
	if !reflect.DeepEqual(first.Vector, []float32{0, 0, 1}) {
		t.Errorf("vector = %v, want the vector of product 3", first.Vector)
	}
	if _, ok := first.Attributes["base_color"]; ok {
		t.Error("raw attribute names must not be stored")
	}

	second, err := svc.RecordPurchase(ctx, domain.PurchaseEvent{BuyerID: "a@b.com", ProductIDs: []int64{4, 5}})
	if err != nil {
		t.Fatalf("RecordPurchase() error = %v", err)
	}
	if want := (domain.AttributeCountMap{"red": 2, "blue": 2, "green": 1}); !reflect.DeepEqual(second.Attributes[domain.PrefColor], want) {
		t.Errorf("color after second purchase = %v, want %v", second.Attributes[domain.PrefColor], want)
	}
	if want := (domain.AttributeCountMap{"men": 3, "women": 2}); !reflect.DeepEqual(second.Attributes[domain.PrefGender], want) {
		t.Errorf("gender after second purchase = %v, want %v", second.Attributes[domain.PrefGender], want)
	}
	if !reflect.DeepEqual(second.Vector, []float32{0, 1, 1}) {
		t.Errorf("vector = %v, want the vector of product 5", second.Vector)
	}

	wantOps := []string{"get", "create", "get", "replace"}
	if !reflect.DeepEqual(prefs.ops, wantOps) {
		t.Errorf("store ops = %v, want %v", prefs.ops, wantOps)
	}
	// The first record handed to the store must not be mutated by the merge.
	if first.Attributes[domain.PrefColor]["blue"] != 1 {
		t.Errorf("first record was mutated: %v", first.Attributes[domain.PrefColor])
	}
}

func TestRecordPurchaseCountsDistinctProducts(t *testing.T) {
	prefs := newFakePreferenceStore()
	svc := NewPreferenceService(newCatalogStore(), prefs, "product")

	rec, err := svc.RecordPurchase(context.Background(), domain.PurchaseEvent{BuyerID: "a@b.com", ProductIDs: []int64{3, 1, 1}})
	if err != nil {
		t.Fatalf("RecordPurchase() error = %v", err)
	}
	if want := (domain.AttributeCountMap{"red": 1, "blue": 1}); !reflect.DeepEqual(rec.Attributes[domain.PrefColor], want) {
		t.Errorf("color = %v, want %v", rec.Attributes[domain.PrefColor], want)
	}
	if want := (domain.AttributeCountMap{"casual": 2}); !reflect.DeepEqual(rec.Attributes[domain.PrefUsage], want) {
		t.Errorf("usage = %v, want %v", rec.Attributes[domain.PrefUsage], want)
	}
	if !reflect.DeepEqual(rec.Vector, []float32{1, 0, 0}) {
		t.Errorf("vector = %v, want the vector of product 1", rec.Vector)
	}
}

func TestRecordPurchaseSkipsMissingVector(t *testing.T) {
	prefs := newFakePreferenceStore()
	svc := NewPreferenceService(newCatalogStore(), prefs, "product")

	rec, err := svc.RecordPurchase(context.Background(), domain.PurchaseEvent{BuyerID: "a@b.com", ProductIDs: []int64{2, 6}})
	if err != nil {
		t.Fatalf("RecordPurchase() error = %v", err)
	}
	if !reflect.DeepEqual(rec.Vector, []float32{0, 1, 0}) {
		t.Errorf("vector = %v, want the vector of product 2", rec.Vector)
	}
	if want := (domain.AttributeCountMap{"red": 1}); !reflect.DeepEqual(rec.Attributes[domain.PrefColor], want) {
		t.Errorf("empty values must not be counted, got %v", rec.Attributes[domain.PrefColor])
	}
}

func TestRecordPurchaseFailures(t *testing.T) {
	tests := []struct {
		name    string
		event   domain.PurchaseEvent
		setup   func(*fakeVectorStore, *fakePreferenceStore)
		wantErr error
	}{
		{
			name:    "missing buyer",
			event:   domain.PurchaseEvent{ProductIDs: []int64{1}},
			wantErr: domain.ErrInvalidRequest,
		},
		{
			name:    "no products",
			event:   domain.PurchaseEvent{BuyerID: "a@b.com"},
			wantErr: domain.ErrInvalidRequest,
		},
		{
			name:    "unknown products",
			event:   domain.PurchaseEvent{BuyerID: "a@b.com", ProductIDs: []int64{99}},
			wantErr: domain.ErrPreferenceDataMissing,
		},
		{
			name:    "no text vector",
			event:   domain.PurchaseEvent{BuyerID: "a@b.com", ProductIDs: []int64{6}},
			wantErr: domain.ErrPreferenceDataMissing,
		},
		{
			name:  "store unavailable",
			event: domain.PurchaseEvent{BuyerID: "a@b.com", ProductIDs: []int64{1}},
			setup: func(s *fakeVectorStore, _ *fakePreferenceStore) {
				s.queryErr = domain.ErrVectorStoreUnavailable
			},
			wantErr: domain.ErrVectorStoreUnavailable,
		},
		{
			name:  "save fails",
			event: domain.PurchaseEvent{BuyerID: "a@b.com", ProductIDs: []int64{1}},
			setup: func(_ *fakeVectorStore, p *fakePreferenceStore) {
				p.saveErr = domain.ErrVectorStoreUnavailable
			},
			wantErr: domain.ErrVectorStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newCatalogStore()
			prefs := newFakePreferenceStore()
			if tt.setup != nil {
				tt.setup(store, prefs)
			}
			svc := NewPreferenceService(store, prefs, "product")

			_, err := svc.RecordPurchase(context.Background(), tt.event)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("RecordPurchase() error = %v, want %v", err, tt.wantErr)
			}
			if len(prefs.records) != 0 {
				t.Errorf("no record should be stored, got %v", prefs.records)
			}
		})
	}
}

func TestPreferenceRequiresBuyer(t *testing.T) {
	svc := NewPreferenceService(newFakeVectorStore(), newFakePreferenceStore(), "product")
	if _, _, err := svc.Preference(context.Background(), ""); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("Preference() error = %v, want ErrInvalidRequest", err)
	}
}

package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/timmy/shopsearch/internal/domain"
	"github.com/timmy/shopsearch/internal/repository"
)

type productFixture struct {
	enc    *fakeEncoder
	store  *fakeVectorStore
	prefs  *fakePreferenceStore
	ledger *fakeLedger
	svc    *ProductService
}

func newProductFixture() *productFixture {
	f := &productFixture{
		enc: &fakeEncoder{vectors: map[string][]float32{
			"red":        {1, 0, 0},
			"Red Polo":   {1, 0, 0},
			"Blue Parka": {0, 1, 0},
		}},
		store:  newCatalogStore(),
		prefs:  newFakePreferenceStore(),
		ledger: &fakeLedger{},
	}
	f.store.searchResults["product"] = &repository.ResultSet{
		Columns: []repository.Column{
			{Name: repository.FieldID, Values: []any{int64(3), int64(1)}},
			{Name: repository.FieldDisplayName, Values: []any{"Blue Parka", "Red Polo"}},
			{Name: repository.FieldImageURL, Values: []any{"u3", "u1"}},
		},
	}
	search := newTestSearchService(f.enc, f.store, 25)
	f.svc = NewProductService(
		search,
		NewRerankService(f.enc, f.prefs),
		NewPreferenceService(f.store, f.prefs, "product"),
		f.ledger,
	)
	return f
}

func TestGetProducts(t *testing.T) {
	ctx := context.Background()

	t.Run("anonymous keeps store order", func(t *testing.T) {
		f := newProductFixture()
		got := f.svc.GetProducts(ctx, domain.SearchQuery{Text: "jacket"})
		if ids := productIDs(got); !reflect.DeepEqual(ids, []int64{3, 1}) {
			t.Errorf("ids = %v, want [3 1]", ids)
		}
	})

	t.Run("buyer with preference is re-ranked", func(t *testing.T) {
		f := newProductFixture()
		f.prefs.records["a@b.com"] = &domain.UserPreferenceRecord{
			BuyerID:    "a@b.com",
			Attributes: domain.AttributeCounts{domain.PrefColor: {"red": 3}},
		}
		got := f.svc.GetProducts(ctx, domain.SearchQuery{Text: "jacket", RequesterID: "a@b.com"})
		if ids := productIDs(got); !reflect.DeepEqual(ids, []int64{1, 3}) {
			t.Errorf("ids = %v, want [1 3]", ids)
		}
	})

	t.Run("empty query yields empty list", func(t *testing.T) {
		f := newProductFixture()
		got := f.svc.GetProducts(ctx, domain.SearchQuery{Text: " "})
		if got == nil || len(got) != 0 {
			t.Errorf("GetProducts() = %#v, want empty non-nil list", got)
		}
		if f.enc.callCount() != 0 {
			t.Errorf("encoder called %d times", f.enc.callCount())
		}
	})

	t.Run("encoder failure yields empty list", func(t *testing.T) {
		f := newProductFixture()
		f.enc.err = domain.ErrEncodingUnavailable
		if got := f.svc.GetProducts(ctx, domain.SearchQuery{Text: "jacket"}); len(got) != 0 {
			t.Errorf("GetProducts() = %v, want empty", got)
		}
	})

	t.Run("re-rank failure yields empty list", func(t *testing.T) {
		f := newProductFixture()
		f.prefs.getErr = domain.ErrVectorStoreUnavailable
		if got := f.svc.GetProducts(ctx, domain.SearchQuery{Text: "jacket", RequesterID: "a@b.com"}); len(got) != 0 {
			t.Errorf("GetProducts() = %v, want empty", got)
		}
	})
}

func TestBuyProducts(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f := newProductFixture()
		status := f.svc.BuyProducts(ctx, domain.PurchaseEvent{BuyerID: "a@b.com", ProductIDs: []int64{1, 3}})
		if status != domain.PurchaseStatusSuccess {
			t.Fatalf("BuyProducts() = %s", status)
		}
		if _, ok := f.prefs.records["a@b.com"]; !ok {
			t.Error("preference not stored")
		}
		if len(f.ledger.records) != 1 {
			t.Fatalf("ledger records = %d, want 1", len(f.ledger.records))
		}
		rec := f.ledger.records[0]
		if rec.ID == "" || rec.Status != domain.PurchaseStatusSuccess || rec.ErrorMsg != "" {
			t.Errorf("ledger record = %+v", rec)
		}
		if !reflect.DeepEqual([]int64(rec.ProductIDs), []int64{1, 3}) {
			t.Errorf("ledger product ids = %v", rec.ProductIDs)
		}
	})

	t.Run("missing data fails", func(t *testing.T) {
		f := newProductFixture()
		status := f.svc.BuyProducts(ctx, domain.PurchaseEvent{BuyerID: "a@b.com", ProductIDs: []int64{42}})
		if status != domain.PurchaseStatusFailed {
			t.Fatalf("BuyProducts() = %s", status)
		}
		if len(f.ledger.records) != 1 || f.ledger.records[0].ErrorMsg == "" {
			t.Errorf("failed purchase must be recorded with its error, got %+v", f.ledger.records)
		}
	})

	t.Run("ledger failure does not change status", func(t *testing.T) {
		f := newProductFixture()
		f.ledger.createErr = errors.New("db down")
		status := f.svc.BuyProducts(ctx, domain.PurchaseEvent{BuyerID: "a@b.com", ProductIDs: []int64{1}})
		if status != domain.PurchaseStatusSuccess {
			t.Fatalf("BuyProducts() = %s", status)
		}
	})

	t.Run("missing buyer is not recorded", func(t *testing.T) {
		f := newProductFixture()
		status := f.svc.BuyProducts(ctx, domain.PurchaseEvent{ProductIDs: []int64{1}})
		if status != domain.PurchaseStatusFailed {
			t.Fatalf("BuyProducts() = %s", status)
		}
		if len(f.ledger.records) != 0 {
			t.Errorf("ledger records = %d, want 0", len(f.ledger.records))
		}
	})

	t.Run("empty product list fails", func(t *testing.T) {
		f := newProductFixture()
		status := f.svc.BuyProducts(ctx, domain.PurchaseEvent{BuyerID: "a@b.com", ProductIDs: []int64{}})
		if status != domain.PurchaseStatusFailed {
			t.Fatalf("BuyProducts() = %s, want Failed", status)
		}
	})
}

func TestPurchaseHistory(t *testing.T) {
	f := newProductFixture()
	ctx := context.Background()
	f.svc.BuyProducts(ctx, domain.PurchaseEvent{BuyerID: "a@b.com", ProductIDs: []int64{1}})
	f.svc.BuyProducts(ctx, domain.PurchaseEvent{BuyerID: "c@d.com", ProductIDs: []int64{3}})
	f.svc.BuyProducts(ctx, domain.PurchaseEvent{BuyerID: "a@b.com", ProductIDs: []int64{3}})

	got, err := f.svc.PurchaseHistory(ctx, "a@b.com", 10, 0)
	if err != nil {
		t.Fatalf("PurchaseHistory() error = %v", err)
	}
	if len(got) != 2 || got[0].ProductIDs[0] != 3 {
		t.Errorf("PurchaseHistory() = %+v", got)
	}
}

func TestFailureCategory(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{domain.ErrInvalidRequest, "invalid_request"},
		{domain.ErrEncodingUnavailable, "encoding_unavailable"},
		{domain.ErrVectorStoreUnavailable, "vector_store_unavailable"},
		{domain.ErrPreferenceDataMissing, "preference_data_missing"},
		{errors.New("other"), "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := failureCategory(tt.err); got != tt.want {
				t.Errorf("failureCategory(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

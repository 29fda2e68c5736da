package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/timmy/shopsearch/internal/domain"
	"github.com/timmy/shopsearch/internal/repository"
)

var defaultFakeVector = []float32{0.1, 0.2, 0.3}

type encoderCall struct {
	kind    string // "text" or "image"
	input   string
	backend domain.Backend
	caption string
}

// fakeEncoder returns canned vectors keyed by input text.
type fakeEncoder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	image   []float32
	err     error
	calls   []encoderCall
}

func (f *fakeEncoder) EmbedText(_ context.Context, text string, backend domain.Backend) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, encoderCall{kind: "text", input: text, backend: backend})
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return defaultFakeVector, nil
}

func (f *fakeEncoder) EmbedImage(_ context.Context, base64Image, caption string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, encoderCall{kind: "image", input: base64Image, backend: domain.BackendJoint, caption: caption})
	if f.err != nil {
		return nil, f.err
	}
	if f.image != nil {
		return f.image, nil
	}
	return defaultFakeVector, nil
}

func (f *fakeEncoder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeVectorStore keeps rows per collection in memory. Search returns a
// canned result per collection.
type fakeVectorStore struct {
	mu            sync.Mutex
	rows          map[string][]repository.Row
	searchResults map[string]*repository.ResultSet
	searches      []repository.SearchRequest
	queries       []repository.QueryRequest
	searchErr     error
	queryErr      error
	insertErr     map[string]error
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{
		rows:          map[string][]repository.Row{},
		searchResults: map[string]*repository.ResultSet{},
		insertErr:     map[string]error{},
	}
}

func (f *fakeVectorStore) Search(_ context.Context, req *repository.SearchRequest) (*repository.ResultSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, *req)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if rs, ok := f.searchResults[req.Collection]; ok {
		return rs, nil
	}
	return &repository.ResultSet{}, nil
}

func (f *fakeVectorStore) Query(_ context.Context, req *repository.QueryRequest) (*repository.ResultSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, *req)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	rs := &repository.ResultSet{Columns: make([]repository.Column, len(req.OutputFields))}
	for i, name := range req.OutputFields {
		rs.Columns[i].Name = name
	}
	for _, row := range f.rows[req.Collection] {
		if !req.Filter.Matches(row.Fields) {
			continue
		}
		for i := range rs.Columns {
			name := rs.Columns[i].Name
			if vec, ok := row.Vectors[name]; ok {
				rs.Columns[i].Values = append(rs.Columns[i].Values, vec)
				continue
			}
			rs.Columns[i].Values = append(rs.Columns[i].Values, row.Fields[name])
		}
	}
	return rs, nil
}

func (f *fakeVectorStore) Insert(_ context.Context, collection string, rows []repository.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.insertErr[collection]; err != nil {
		return err
	}
	f.rows[collection] = append(f.rows[collection], rows...)
	return nil
}

func (f *fakeVectorStore) Delete(_ context.Context, collection string, filter repository.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if filter.IsZero() {
		return errors.New("refusing to delete without filter")
	}
	kept := f.rows[collection][:0]
	for _, row := range f.rows[collection] {
		if !filter.Matches(row.Fields) {
			kept = append(kept, row)
		}
	}
	f.rows[collection] = kept
	return nil
}

func (f *fakeVectorStore) count(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[collection])
}

// fakePreferenceStore keeps preference records in a map.
type fakePreferenceStore struct {
	records map[string]*domain.UserPreferenceRecord
	ops     []string
	getErr  error
	saveErr error
}

func newFakePreferenceStore() *fakePreferenceStore {
	return &fakePreferenceStore{records: map[string]*domain.UserPreferenceRecord{}}
}

func (f *fakePreferenceStore) Get(_ context.Context, buyerID string) (*domain.UserPreferenceRecord, bool, error) {
	f.ops = append(f.ops, "get")
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	rec, ok := f.records[buyerID]
	return rec, ok, nil
}

func (f *fakePreferenceStore) Create(_ context.Context, record *domain.UserPreferenceRecord) error {
	f.ops = append(f.ops, "create")
	if f.saveErr != nil {
		return f.saveErr
	}
	f.records[record.BuyerID] = record
	return nil
}

func (f *fakePreferenceStore) Replace(_ context.Context, record *domain.UserPreferenceRecord) error {
	f.ops = append(f.ops, "replace")
	if f.saveErr != nil {
		return f.saveErr
	}
	f.records[record.BuyerID] = record
	return nil
}

// fakeLedger records purchase entries.
type fakeLedger struct {
	records   []domain.PurchaseRecord
	createErr error
}

func (f *fakeLedger) Create(_ context.Context, record *domain.PurchaseRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.records = append(f.records, *record)
	return nil
}

func (f *fakeLedger) ListByBuyer(_ context.Context, buyerEmail string, limit, offset int) ([]domain.PurchaseRecord, error) {
	var out []domain.PurchaseRecord
	for i := len(f.records) - 1; i >= 0; i-- {
		if f.records[i].BuyerEmail == buyerEmail {
			out = append(out, f.records[i])
		}
	}
	if offset >= len(out) {
		return []domain.PurchaseRecord{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// fakeImageStore keeps stored product images in memory.
type fakeImageStore struct {
	mu      sync.Mutex
	objects map[int64][]byte
	uploads int
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{objects: map[int64][]byte{}}
}

func (f *fakeImageStore) PutImage(_ context.Context, productID int64, png []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[productID]; !ok {
		f.objects[productID] = png
		f.uploads++
	}
	return f.ImageURL(productID), nil
}

func (f *fakeImageStore) ImageURL(productID int64) string {
	return fmt.Sprintf("https://cdn.test/products/%d.png", productID)
}

// productRow builds a product collection row the way ingestion writes it.
func productRow(id int64, color, season, usage, gender, name string, vec []float32) repository.Row {
	return repository.Row{
		ID: uint64(id),
		Fields: map[string]any{
			repository.FieldID:          id,
			repository.FieldGender:      gender,
			repository.FieldBaseColor:   color,
			repository.FieldSeason:      season,
			repository.FieldUsage:       usage,
			repository.FieldDisplayName: name,
			repository.FieldImageURL:    "https://cdn.test/products/" + name + ".png",
		},
		Vectors: map[string][]float32{repository.FieldTextVector: vec},
	}
}

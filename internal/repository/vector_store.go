package repository

import (
	"context"
	"fmt"
)

// VectorStore is the vector database capability used by the search and
// preference pipelines. Implementations rank results themselves; callers
// must not re-sort them, and must not rely on row order being stable across
// separate calls.
type VectorStore interface {
	// Search runs a nearest-neighbour search on one vector field.
	Search(ctx context.Context, req *SearchRequest) (*ResultSet, error)
	// Query returns every row matching an exact scalar filter.
	Query(ctx context.Context, req *QueryRequest) (*ResultSet, error)
	// Insert writes rows to a collection.
	Insert(ctx context.Context, collection string, rows []Row) error
	// Delete removes every row matching filter.
	Delete(ctx context.Context, collection string, filter Filter) error
}

// SearchParams are passed through to the store unchanged.
type SearchParams struct {
	Metric       string // IP, COSINE or L2
	NProbe       int
	RoundDecimal int // negative disables score rounding
}

// SearchRequest describes one similarity search.
type SearchRequest struct {
	Collection   string
	AnnsField    string
	Vector       []float32
	OutputFields []string
	Filter       Filter
	TopK         int
	Offset       int
	Params       SearchParams
}

// QueryRequest describes one exact-match lookup.
type QueryRequest struct {
	Collection   string
	OutputFields []string
	Filter       Filter
}

// Row is one record to insert. A zero ID lets the store assign one.
type Row struct {
	ID      uint64
	Fields  map[string]any
	Vectors map[string][]float32
}

// Column holds the values of one output field. Values are int64, float64,
// string, []float32 or nil.
type Column struct {
	Name   string
	Values []any
}

// ResultSet is a column-oriented result. The i-th value of every column and
// the i-th score belong to the same record. Columns appear in the order the
// output fields were requested.
type ResultSet struct {
	Columns []Column
	Scores  []float32
}

// NewResultSet builds a ResultSet from columns and checks their alignment.
func NewResultSet(columns ...Column) (*ResultSet, error) {
	rs := &ResultSet{Columns: columns}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

func newEmptyResultSet(fields []string) *ResultSet {
	rs := &ResultSet{Columns: make([]Column, len(fields))}
	for i, f := range fields {
		rs.Columns[i] = Column{Name: f}
	}
	return rs
}

// Len returns the number of records.
func (r *ResultSet) Len() int {
	if r == nil || len(r.Columns) == 0 {
		return 0
	}
	return len(r.Columns[0].Values)
}

// Validate reports an error when columns disagree on length.
func (r *ResultSet) Validate() error {
	n := r.Len()
	for _, c := range r.Columns {
		if len(c.Values) != n {
			return fmt.Errorf("column %q has %d values, expected %d", c.Name, len(c.Values), n)
		}
	}
	if len(r.Scores) != 0 && len(r.Scores) != n {
		return fmt.Errorf("result has %d scores for %d rows", len(r.Scores), n)
	}
	return nil
}

// Column returns the named column.
func (r *ResultSet) Column(name string) (*Column, bool) {
	if r == nil {
		return nil, false
	}
	for i := range r.Columns {
		if r.Columns[i].Name == name {
			return &r.Columns[i], true
		}
	}
	return nil, false
}

// Int64s returns the named column as integers.
func (r *ResultSet) Int64s(name string) ([]int64, error) {
	col, ok := r.Column(name)
	if !ok {
		return nil, fmt.Errorf("column %q not in result", name)
	}
	out := make([]int64, len(col.Values))
	for i, v := range col.Values {
		switch n := v.(type) {
		case int64:
			out[i] = n
		case int:
			out[i] = int64(n)
		case float64:
			out[i] = int64(n)
		default:
			return nil, fmt.Errorf("column %q row %d: %T is not an integer", name, i, v)
		}
	}
	return out, nil
}

// Strings returns the named column as strings. Missing values become "".
func (r *ResultSet) Strings(name string) ([]string, error) {
	col, ok := r.Column(name)
	if !ok {
		return nil, fmt.Errorf("column %q not in result", name)
	}
	out := make([]string, len(col.Values))
	for i, v := range col.Values {
		switch s := v.(type) {
		case string:
			out[i] = s
		case nil:
		default:
			return nil, fmt.Errorf("column %q row %d: %T is not a string", name, i, v)
		}
	}
	return out, nil
}

// Vectors returns the named column as float vectors.
func (r *ResultSet) Vectors(name string) ([][]float32, error) {
	col, ok := r.Column(name)
	if !ok {
		return nil, fmt.Errorf("column %q not in result", name)
	}
	out := make([][]float32, len(col.Values))
	for i, v := range col.Values {
		vec, ok := v.([]float32)
		if !ok && v != nil {
			return nil, fmt.Errorf("column %q row %d: %T is not a vector", name, i, v)
		}
		out[i] = vec
	}
	return out, nil
}

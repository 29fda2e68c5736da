package repository

import (
	"strconv"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"
)

type filterOp int

const (
	filterNone filterOp = iota
	filterIn
	filterEquals
)

// Filter is a single scalar predicate on one field. The zero value matches
// everything.
type Filter struct {
	field   string
	op      filterOp
	ints    []int64
	keyword string
}

// FieldIn matches rows whose integer field is one of values.
func FieldIn(field string, values ...int64) Filter {
	return Filter{field: field, op: filterIn, ints: append([]int64(nil), values...)}
}

// FieldEquals matches rows whose string field equals value.
func FieldEquals(field, value string) Filter {
	return Filter{field: field, op: filterEquals, keyword: value}
}

// IsZero reports whether f has no predicate.
func (f Filter) IsZero() bool { return f.op == filterNone }

// Field returns the filtered field name.
func (f Filter) Field() string { return f.field }

// String renders f as a boolean expression, e.g. `id in [1, 2]`.
func (f Filter) String() string {
	switch f.op {
	case filterIn:
		parts := make([]string, len(f.ints))
		for i, v := range f.ints {
			parts[i] = strconv.FormatInt(v, 10)
		}
		return f.field + " in [" + strings.Join(parts, ", ") + "]"
	case filterEquals:
		return f.field + " == " + strconv.Quote(f.keyword)
	default:
		return ""
	}
}

// Matches evaluates f in memory against a row's scalar fields, with the same
// semantics Qdrant applies to the converted condition. QdrantStore never
// calls it; in-memory VectorStore implementations used by package tests
// filter their rows with it. Integer fields may be int or int64.
func (f Filter) Matches(fields map[string]any) bool {
	switch f.op {
	case filterIn:
		var got int64
		switch v := fields[f.field].(type) {
		case int64:
			got = v
		case int:
			got = int64(v)
		default:
			return false
		}
		for _, want := range f.ints {
			if got == want {
				return true
			}
		}
		return false
	case filterEquals:
		s, ok := fields[f.field].(string)
		return ok && s == f.keyword
	default:
		return true
	}
}

// toQdrant converts f into a Qdrant filter. A zero Filter yields nil.
func (f Filter) toQdrant() *pb.Filter {
	var cond *pb.Condition
	switch f.op {
	case filterIn:
		cond = &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: f.field,
					Match: &pb.Match{
						MatchValue: &pb.Match_Integers{
							Integers: &pb.RepeatedIntegers{Integers: f.ints},
						},
					},
				},
			},
		}
	case filterEquals:
		cond = &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: f.field,
					Match: &pb.Match{
						MatchValue: &pb.Match_Keyword{Keyword: f.keyword},
					},
				},
			},
		}
	default:
		return nil
	}
	return &pb.Filter{Must: []*pb.Condition{cond}}
}

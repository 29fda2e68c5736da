package service

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/timmy/shopsearch/internal/domain"
)

const (
	singleVectorDepth = 1 // [0.1, 0.2, ...]
	batchVectorDepth  = 2 // [[0.1, 0.2, ...], ...]
)

// parseVectorPayload decodes a vector field of an encoder response. The
// encoders return the array literal wrapped in a JSON string; a bare JSON
// array is accepted too. The literal must be nested exactly depth levels
// deep, otherwise the payload is rejected.
func parseVectorPayload(raw json.RawMessage, depth int) ([][]float32, error) {
	data := bytes.TrimSpace(raw)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("%w: vector field is missing", domain.ErrEncodingUnavailable)
	}

	if data[0] == '"' {
		var literal string
		if err := json.Unmarshal(data, &literal); err != nil {
			return nil, fmt.Errorf("%w: vector field is not a valid string: %v", domain.ErrEncodingUnavailable, err)
		}
		data = bytes.TrimSpace([]byte(literal))
	}

	if got := nestingDepth(data); got != depth {
		return nil, fmt.Errorf("%w: expected vector nesting depth %d, got %d", domain.ErrEncodingUnavailable, depth, got)
	}

	switch depth {
	case singleVectorDepth:
		var vec []float32
		if err := json.Unmarshal(data, &vec); err != nil {
			return nil, fmt.Errorf("%w: malformed vector: %v", domain.ErrEncodingUnavailable, err)
		}
		return [][]float32{vec}, nil
	case batchVectorDepth:
		var batch [][]float32
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("%w: malformed vector batch: %v", domain.ErrEncodingUnavailable, err)
		}
		return batch, nil
	default:
		return nil, fmt.Errorf("unsupported vector nesting depth %d", depth)
	}
}

// nestingDepth counts the opening brackets before the first scalar.
func nestingDepth(data []byte) int {
	depth := 0
	for _, c := range data {
		switch c {
		case '[':
			depth++
		case ' ', '\t', '\n', '\r':
		default:
			return depth
		}
	}
	return depth
}

// firstVector returns the only vector of a single-item response and checks
// its dimensionality.
func firstVector(vectors [][]float32, dimensions int) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no vector returned", domain.ErrEncodingUnavailable)
	}
	vec := vectors[0]
	if dimensions > 0 && len(vec) != dimensions {
		return nil, fmt.Errorf("%w: expected %d dimensions, got %d", domain.ErrEncodingUnavailable, dimensions, len(vec))
	}
	return vec, nil
}

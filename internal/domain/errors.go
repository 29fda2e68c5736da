package domain

import "errors"

// Failure categories shared by the search and purchase pipelines. Callers
// test for them with errors.Is; concrete errors wrap one of these.
var (
	// ErrEncodingUnavailable means a remote embedding call failed or its
	// payload could not be parsed.
	ErrEncodingUnavailable = errors.New("encoding unavailable")

	// ErrVectorStoreUnavailable means a search, query, insert or delete
	// against the vector store failed.
	ErrVectorStoreUnavailable = errors.New("vector store unavailable")

	// ErrPreferenceDataMissing means attribute or preference rows were
	// absent where the operation required them.
	ErrPreferenceDataMissing = errors.New("preference data missing")

	// ErrInvalidRequest covers empty query text, a missing buyer id or an
	// empty product id list.
	ErrInvalidRequest = errors.New("invalid request")
)

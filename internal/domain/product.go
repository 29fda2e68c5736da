package domain

// Product is the search-result view of a catalog item.
type Product struct {
	ID          int64   `json:"id"`
	Description string  `json:"description"`
	ImageURL    string  `json:"image_url"`
	Score       float64 `json:"score"`
}

// SearchMode selects how a query is embedded and which collection it hits.
type SearchMode string

const (
	SearchModeText      SearchMode = "TEXT_EMBEDDING"
	SearchModeImageText SearchMode = "IMAGE_TEXT_EMBEDDING"
)

// ParseSearchMode maps a wire value to a SearchMode. Anything that is not
// the image-text mode falls back to text mode.
func ParseSearchMode(s string) SearchMode {
	if SearchMode(s) == SearchModeImageText {
		return SearchModeImageText
	}
	return SearchModeText
}

// SearchQuery is one search request.
// Text may carry a base64-encoded image when Mode is SearchModeImageText.
type SearchQuery struct {
	Text        string
	Mode        SearchMode
	Page        int
	RequesterID string
}

// Backend identifies one of the two remote embedding services.
type Backend string

const (
	// BackendShort is the short-vector text encoder (384 dims by default).
	BackendShort Backend = "short"
	// BackendJoint is the joint image/text encoder (512 dims by default).
	BackendJoint Backend = "joint"
)

// PurchaseStatus is the outcome reported for a purchase request.
type PurchaseStatus string

const (
	PurchaseStatusSuccess PurchaseStatus = "Success"
	PurchaseStatusFailed  PurchaseStatus = "Failed"
)

// PurchaseEvent lists the products a buyer bought, oldest first.
type PurchaseEvent struct {
	BuyerID    string
	ProductIDs []int64
}

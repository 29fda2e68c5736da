package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/shopsearch/internal/domain"
	"github.com/timmy/shopsearch/internal/logger"
)

// ProductAPI is the request-level product service.
type ProductAPI interface {
	GetProducts(ctx context.Context, q domain.SearchQuery) []domain.Product
	BuyProducts(ctx context.Context, event domain.PurchaseEvent) domain.PurchaseStatus
	Preference(ctx context.Context, buyerID string) (*domain.UserPreferenceRecord, bool, error)
	PurchaseHistory(ctx context.Context, buyerID string, limit, offset int) ([]domain.PurchaseRecord, error)
}

// ProductHandler handles search, purchase, and preference endpoints.
type ProductHandler struct {
	products ProductAPI
}

// NewProductHandler creates a new product handler.
// Parameters:
//   - products: product service instance.
// Returns:
//   - *ProductHandler: initialized handler.
func NewProductHandler(products ProductAPI) *ProductHandler {
	return &ProductHandler{products: products}
}

// SearchRequest is the body of POST /api/v1/products/search.
type SearchRequest struct {
	Query     string `json:"query"`
	Mode      string `json:"mode"`
	Page      int    `json:"page"`
	UserEmail string `json:"user_email"`
}

// SearchResponse lists matching products in rank order.
type SearchResponse struct {
	Products []domain.Product `json:"products"`
	Total    int              `json:"total"`
}

// PurchaseRequest is the body of POST /api/v1/purchases.
type PurchaseRequest struct {
	BuyerEmail string  `json:"buyer_email"`
	ProductIDs []int64 `json:"product_ids"`
}

// PurchaseResponse reports whether the purchase updated the buyer's preference.
type PurchaseResponse struct {
	Status domain.PurchaseStatus `json:"status"`
}

// PreferenceResponse is a buyer's stored preference.
type PreferenceResponse struct {
	BuyerEmail string                 `json:"buyer_email"`
	Attributes domain.AttributeCounts `json:"attributes"`
	Dominant   []domain.DominantValue `json:"dominant"`
}

const errMalformedBody = "Request body must be a JSON object"

// Search handles POST /api/v1/products/search.
// An empty query yields an empty product list.
func (h *ProductHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.CtxWarn(c.Request.Context(), "Invalid search request: client_ip=%s, error=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": errMalformedBody})
		return
	}

	products := h.products.GetProducts(c.Request.Context(), domain.SearchQuery{
		Text:        req.Query,
		Mode:        domain.ParseSearchMode(req.Mode),
		Page:        req.Page,
		RequesterID: req.UserEmail,
	})
	c.JSON(http.StatusOK, SearchResponse{Products: products, Total: len(products)})
}

// Purchase handles POST /api/v1/purchases.
func (h *ProductHandler) Purchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.CtxWarn(c.Request.Context(), "Invalid purchase request: client_ip=%s, error=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": errMalformedBody})
		return
	}

	// A missing buyer or an empty product list is rejected by the service,
	// which reports it as a Failed purchase.

	status := h.products.BuyProducts(c.Request.Context(), domain.PurchaseEvent{
		BuyerID:    req.BuyerEmail,
		ProductIDs: req.ProductIDs,
	})
	c.JSON(http.StatusOK, PurchaseResponse{Status: status})
}

// PurchaseHistory handles GET /api/v1/purchases.
// Parameters:
//   - c: Gin request context with buyer_email, limit, and offset query parameters.
// Returns: none (writes JSON response).
func (h *ProductHandler) PurchaseHistory(c *gin.Context) {
	buyer := c.Query("buyer_email")
	if buyer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'buyer_email' is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	ctx := c.Request.Context()
	records, err := h.products.PurchaseHistory(ctx, buyer, limit, offset)
	if err != nil {
		logger.CtxError(ctx, "Failed to list purchases: buyer_email=%s, error=%v", buyer, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list purchases"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"purchases": records,
		"limit":     limit,
		"offset":    offset,
	})
}

// GetPreference handles GET /api/v1/preferences/:buyer_email.
func (h *ProductHandler) GetPreference(c *gin.Context) {
	buyer := c.Param("buyer_email")
	ctx := c.Request.Context()

	record, found, err := h.products.Preference(ctx, buyer)
	if err != nil {
		logger.CtxError(ctx, "Failed to load preference: buyer_email=%s, error=%v", buyer, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load preference"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "No preference recorded for buyer"})
		return
	}

	c.JSON(http.StatusOK, PreferenceResponse{
		BuyerEmail: record.BuyerID,
		Attributes: record.Attributes,
		Dominant:   record.DominantValues(),
	})
}

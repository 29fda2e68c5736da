package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/shopsearch/internal/api/handler"
	"github.com/timmy/shopsearch/internal/api/middleware"
	"github.com/timmy/shopsearch/internal/logger"
)

// RouterConfig holds the HTTP layer settings.
type RouterConfig struct {
	Mode   string
	CORS   middleware.CORSConfig
	Health map[string]handler.HealthCheck
}

// SetupRouter configures the Gin router with all routes. admin may be nil,
// in which case the admin routes are not registered.
func SetupRouter(
	cfg RouterConfig,
	log *logger.Logger,
	products handler.ProductAPI,
	admin *handler.AdminHandler,
) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(cfg.Health)
	productHandler := handler.NewProductHandler(products)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/products/search", productHandler.Search)

		v1.POST("/purchases", productHandler.Purchase)
		v1.GET("/purchases", productHandler.PurchaseHistory)

		v1.GET("/preferences/:buyer_email", productHandler.GetPreference)

		if admin != nil {
			adminGroup := v1.Group("/admin")
			adminGroup.POST("/ingest", admin.TriggerIngest)
			adminGroup.GET("/ingest/status", admin.GetIngestStatus)
			adminGroup.GET("/jobs/:id", admin.GetJob)
		}
	}

	return r
}

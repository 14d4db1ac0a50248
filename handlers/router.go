package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"lookbook/api/cache"
	"lookbook/api/middleware"
	"lookbook/api/utils"
)

// RouterConfig carries everything NewRouter wires into the engine.
type RouterConfig struct {
	FEOrigin        string
	TrackRateLimit  int
	TrackRateWindow time.Duration
	JWT             *utils.JWTManager
	Cache           cache.Cacher

	Auth      *AuthHandlers
	Analytics *AnalyticsHandlers
	Catalog   *CatalogHandlers
	Retailers *RetailerHandlers
	Redirects *RedirectHandlers
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORSMiddleware(cfg.FEOrigin))

	r.GET("/health", HealthCheck(cfg.Cache))

	r.GET("/products", cfg.Catalog.ListProducts)
	r.GET("/products/:id", cfg.Catalog.GetProduct)
	r.GET("/moodboards", cfg.Catalog.ListMoodboards)
	r.GET("/moodboards/:id", cfg.Catalog.GetMoodboard)

	r.GET("/go/:productId", cfg.Redirects.Interstitial)

	requireAdmin := middleware.AuthRequired(cfg.JWT)

	api := r.Group("/api")
	{
		api.GET("/go/:productId", cfg.Redirects.ResolveJSON)
		api.POST("/analytics/track", middleware.RateLimitByIP(cfg.TrackRateLimit, cfg.TrackRateWindow), cfg.Analytics.TrackEvent)

		stats := api.Group("/analytics", requireAdmin)
		{
			stats.GET("/timeseries", cfg.Analytics.GetTimeSeries)
			stats.GET("/categories", cfg.Analytics.GetCategories)
			stats.GET("/funnel", cfg.Analytics.GetFunnel)
			stats.GET("/trends", cfg.Analytics.GetTrends)
		}
	}

	admin := r.Group("/admin")
	{
		// Authentication Endpoints (no authentication required)
		admin.POST("/login", cfg.Auth.Login)
		admin.POST("/logout", cfg.Auth.Logout)

		protected := admin.Group("", requireAdmin)
		{
			protected.POST("/users", cfg.Auth.CreateAdmin)

			analyticsGroup := protected.Group("/analytics")
			{
				analyticsGroup.GET("/overview", cfg.Analytics.GetOverview)
				analyticsGroup.GET("/users", cfg.Analytics.GetUserBehavior)
				analyticsGroup.GET("/products", cfg.Analytics.GetTopProducts)
				analyticsGroup.GET("/products/:productId", cfg.Analytics.GetProductDetail)
				analyticsGroup.GET("/moodboards", cfg.Analytics.GetMoodboards)
				analyticsGroup.GET("/recent-activity", cfg.Analytics.GetRecentActivity)
			}

			protected.POST("/products", cfg.Catalog.CreateProduct)
			protected.PUT("/products/:id", cfg.Catalog.UpdateProduct)
			protected.DELETE("/products/:id", cfg.Catalog.DeleteProduct)
			protected.POST("/moodboards", cfg.Catalog.CreateMoodboard)
			protected.DELETE("/moodboards/:id", cfg.Catalog.DeleteMoodboard)

			protected.GET("/retailers", cfg.Retailers.ListRetailers)
			protected.POST("/retailers", cfg.Retailers.AddRetailer)
			protected.POST("/retailers/test-url", cfg.Retailers.TestURL)
			protected.PATCH("/retailers/:domain", cfg.Retailers.ToggleRetailer)
			protected.DELETE("/retailers/:domain", cfg.Retailers.DeleteRetailer)
		}
	}

	return r
}

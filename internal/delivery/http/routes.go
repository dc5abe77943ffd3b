package http

import (
	"github.com/gin-gonic/gin"
	"github.com/orderguard/backend/config"
	"github.com/sirupsen/logrus"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger *logrus.Logger) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	maxUpload := cfg.Server.MaxUploadMB << 20
	router.MaxMultipartMemory = maxUpload

	// Global middleware
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	v1.Use(OrganizationMiddleware())
	{
		upload := UploadLimitMiddleware(maxUpload)

		priceBooks := v1.Group("/pricebooks")
		{
			priceBooks.GET("", handler.ListPriceBooks)
			priceBooks.POST("", upload, handler.CreatePriceBook)
			priceBooks.GET("/:id", handler.GetPriceBook)
			priceBooks.PUT("/:id", upload, handler.ReplacePriceBook)
			priceBooks.DELETE("/:id", handler.DeletePriceBook)
		}

		orders := v1.Group("/orders")
		{
			orders.GET("", handler.ListOrders)
			orders.POST("", upload, handler.ProcessOrder)
			orders.GET("/:id", handler.GetOrder)
			orders.GET("/:id/report", handler.GetOrderReport)
			orders.GET("/:id/export", handler.ExportOrder)
			orders.DELETE("/:id", handler.DeleteOrder)
		}
	}

	return router
}

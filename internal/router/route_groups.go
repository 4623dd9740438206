package router

import (
	"cafe_inventory/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupUnmappedItemRoutes sets up the ledger review routes.
func SetupUnmappedItemRoutes(apiGroup *gin.RouterGroup, h *handlers.UnmappedItemHandler) {
	items := apiGroup.Group("/unmapped-items")
	{
		items.GET("", h.ListUnmappedItems)
		items.POST("/bulk", h.BulkUnmappedItems)
		items.GET("/:id", h.GetUnmappedItem)
		items.POST("/:id/link", h.LinkUnmappedItem)
		items.POST("/:id/create", h.CreateFromUnmappedItem)
		items.POST("/:id/ignore", h.IgnoreUnmappedItem)
	}
}

// SetupImportRoutes sets up import runs and their logs.
func SetupImportRoutes(apiGroup *gin.RouterGroup, h *handlers.ImportHandler) {
	apiGroup.POST("/imports/:source", h.RunImport)
	apiGroup.GET("/import-logs", h.ListImportLogs)
}

// SetupOrderRoutes sets up the imported order routes.
func SetupOrderRoutes(apiGroup *gin.RouterGroup, h *handlers.OrderHandler) {
	orders := apiGroup.Group("/orders")
	{
		orders.GET("", h.GetOrders)
		orders.GET("/:id", h.GetOrderByID)
	}
}

// SetupReportRoutes sets up the usage reports.
func SetupReportRoutes(apiGroup *gin.RouterGroup, h *handlers.ReportHandler) {
	apiGroup.GET("/reports/usage", h.GetUsageReport)
}

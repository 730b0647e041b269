package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/infrastructure/http/v1/handlers"
)

func registerMovementRoutes(rg *gin.RouterGroup, h *handlers.MovementHandler) {
	rg.POST("/movements", h.Append)
	rg.GET("/movements", h.List)
	rg.GET("/movements/:id", h.Get)
	rg.POST("/movements/:id/compensate", h.Compensate)
}

func registerStockRoutes(rg *gin.RouterGroup, h *handlers.StockHandler) {
	rg.GET("/balances", h.GetBalances)
	rg.GET("/stock-at", h.GetStockAt)
}

func registerReconciliationRoutes(rg *gin.RouterGroup, h *handlers.ReconciliationHandler) {
	rg.GET("", h.Compare)
	rg.GET("/detail", h.Detail)
	rg.GET("/export", h.Export)
}

func registerAdminRoutes(rg *gin.RouterGroup, h *handlers.AdminHandler) {
	rg.GET("/balances/verify", h.VerifyBalances)
	rg.POST("/balances/rebuild", h.RebuildBalances)
}

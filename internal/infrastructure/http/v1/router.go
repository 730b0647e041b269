// Package v1 provides HTTP API version 1.
package v1

import (
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/domain/reconstruct"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/pkg/logger"
)

// RouterConfig holds the services the API exposes.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Location decides which calendar day a date parameter names
	Location *time.Location

	// DB backs the readiness check
	DB handlers.Pinger

	AppName string
	Version string

	Ledger         *ledger.Service
	Balances       *balance.Store
	Reconstruct    *reconstruct.Service
	Reconciliation *reconciliation.Service

	// DebugMode keeps gin's debug output
	DebugMode bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.DebugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// order matters: recovery first, errors rendered last
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.AppName, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	base := handlers.NewBaseHandler(cfg.Location)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.IdempotencyKey())
	{
		registerMovementRoutes(v1, handlers.NewMovementHandler(base, cfg.Ledger))
		registerStockRoutes(v1, handlers.NewStockHandler(base, cfg.Balances, cfg.Reconstruct))
		registerReconciliationRoutes(v1.Group("/reconciliation"),
			handlers.NewReconciliationHandler(base, cfg.Reconciliation))
		registerAdminRoutes(v1.Group("/admin"), handlers.NewAdminHandler(base, cfg.Balances))
	}

	return router
}

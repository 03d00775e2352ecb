// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Pool is the database connection pool (for health checks)
	Pool *postgres.Pool

	// Logger for request logging
	Logger *logger.Logger

	// LedgerService handles ledger writes and reads
	LedgerService *ledger.Service

	// ReportsService handles aggregate queries
	ReportsService *reports.Service
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	// API v1
	baseHandler := handlers.NewBaseHandler()
	api := router.Group("/api/v1")
	api.Use(middleware.Actor())
	{
		ledgerHandler := handlers.NewLedgerHandler(baseHandler, cfg.LedgerService)
		ledgerHandler.RegisterRoutes(api.Group("/ledger"))

		reportsHandler := handlers.NewReportsHandler(baseHandler, cfg.ReportsService)
		reportsHandler.RegisterRoutes(api.Group("/reports"))
	}

	return router
}

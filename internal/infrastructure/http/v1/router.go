// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"storeflow/internal/app"
	"storeflow/internal/core/idempotency"
	"storeflow/internal/infrastructure/http/v1/handlers"
	"storeflow/internal/infrastructure/http/v1/middleware"
	"storeflow/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	Services *app.Services

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator validates bearer tokens when AuthRequired is set
	JWTValidator middleware.JWTValidator
	AuthRequired bool

	// Idempotency enables X-Idempotency-Key replay when non-nil
	Idempotency idempotency.Store

	// StorageName and DB feed the readiness probe; DB is nil for the memory driver
	StorageName string
	DB          handlers.Pinger

	// Development keeps gin in debug mode
	Development bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.StorageName, cfg.DB)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	api := router.Group("/api/v1")
	if cfg.AuthRequired && cfg.JWTValidator != nil {
		api.Use(middleware.Auth(cfg.JWTValidator))
	} else {
		if cfg.JWTValidator != nil {
			api.Use(middleware.OptionalAuth(cfg.JWTValidator))
		}
		api.Use(middleware.LocalUser())
	}
	if cfg.Idempotency != nil {
		api.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()
	registerInventoryRoutes(api, base, cfg.Services)
	registerDocumentRoutes(api, base, cfg.Services)
	registerReportRoutes(api, base, cfg.Services)

	return router
}

var (
	kitchenOnly = middleware.RequireRole(middleware.RoleKitchen)
	storeOnly   = middleware.RequireRole(middleware.RoleStore)

	kitchen = []gin.HandlerFunc{kitchenOnly}
	store   = []gin.HandlerFunc{storeOnly}
)

// registerInventoryRoutes registers ledger and lot endpoints.
func registerInventoryRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, svc *app.Services) {
	inv := handlers.NewInventoryHandler(base, svc.Ledger)
	inventory := rg.Group("/inventory")
	{
		inventory.GET("/balances", inv.GetBalances)
		inventory.GET("/transactions", inv.GetTransactions)
		inventory.POST("/adjust", kitchenOnly, inv.Adjust)
		inventory.POST("/production", kitchenOnly, inv.RecordProduction)
		inventory.POST("/reserve", kitchenOnly, inv.Reserve)
		inventory.POST("/release", kitchenOnly, inv.Release)
	}

	lotHandler := handlers.NewLotHandler(base, svc.Lots)
	lotsGroup := rg.Group("/lots")
	{
		lotsGroup.GET("", lotHandler.List)
		lotsGroup.POST("", kitchenOnly, lotHandler.Create)
		lotsGroup.GET("/:id", lotHandler.Get)
		lotsGroup.PUT("/:id", kitchenOnly, lotHandler.Update)
	}
}

// registerDocumentRoutes registers the workflow documents.
func registerDocumentRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, svc *app.Services) {
	// --- ORDERS ---
	{
		h := handlers.NewOrderHandler(base, svc.Orders, svc.Fulfillment)
		group := rg.Group("/orders")
		RegisterDocumentRoutes(group, h, store,
			DocumentAction{Path: "submit", Handler: h.Submit, Guards: store},
			DocumentAction{Path: "approve", Handler: h.Approve, Guards: kitchen},
			DocumentAction{Path: "cancel", Handler: h.Cancel},
			DocumentAction{Path: "recompute-fulfillment", Handler: h.RecomputeFulfillment},
		)
		group.POST("/:id/lines", storeOnly, h.AddLine)
	}

	// --- SHIPMENTS ---
	{
		h := handlers.NewShipmentHandler(base, svc.Shipments)
		RegisterDocumentRoutes(rg.Group("/shipments"), h, kitchen,
			DocumentAction{Path: "pick", Handler: h.Pick, Guards: kitchen},
			DocumentAction{Path: "dispatch", Handler: h.Dispatch, Guards: kitchen},
			DocumentAction{Path: "in-transit", Handler: h.MarkInTransit, Guards: kitchen},
			DocumentAction{Path: "cancel", Handler: h.Cancel, Guards: kitchen},
		)
	}

	// --- RECEIPTS ---
	{
		h := handlers.NewReceiptHandler(base, svc.Receipts)
		RegisterDocumentRoutes(rg.Group("/receipts"), h, store,
			DocumentAction{Path: "confirm", Handler: h.Confirm, Guards: store},
			DocumentAction{Path: "cancel", Handler: h.Cancel, Guards: store},
		)
	}

	// --- RETURNS ---
	{
		h := handlers.NewReturnHandler(base, svc.Returns)
		RegisterDocumentRoutes(rg.Group("/returns"), h, store,
			DocumentAction{Path: "approve", Handler: h.Approve, Guards: kitchen},
			DocumentAction{Path: "reject", Handler: h.Reject, Guards: kitchen},
			DocumentAction{Path: "process", Handler: h.Process, Guards: kitchen},
		)
	}
}

// registerReportRoutes registers consolidation and alert endpoints.
func registerReportRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, svc *app.Services) {
	consolidationHandler := handlers.NewConsolidationHandler(base, svc.Consolidation)
	group := rg.Group("/consolidation")
	{
		group.POST("/generate", kitchenOnly, consolidationHandler.Generate)
		group.GET("", consolidationHandler.List)
	}

	alertHandler := handlers.NewAlertHandler(base, svc.Alerts)
	alertsGroup := rg.Group("/alerts")
	{
		alertsGroup.GET("/expiry", alertHandler.Expiry)
		alertsGroup.GET("/low-stock", alertHandler.LowStock)
	}
}

package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// ReportsHandler handles HTTP requests for ledger reports.
type ReportsHandler struct {
	*BaseHandler
	service *reports.Service
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *BaseHandler, service *reports.Service) *ReportsHandler {
	return &ReportsHandler{
		BaseHandler: base,
		service:     service,
	}
}

// GetLowStock handles GET /reports/low-stock
func (h *ReportsHandler) GetLowStock(c *gin.Context) {
	items, err := h.service.GetLowStock(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := make([]dto.LowStockItemResponse, len(items))
	for i, item := range items {
		resp[i] = dto.FromLowStockItem(item)
	}
	h.OK(c, dto.ListResponse{Items: resp, TotalCount: len(resp)})
}

// GetExpiringLots handles GET /reports/expiring-lots
func (h *ReportsHandler) GetExpiringLots(c *gin.Context) {
	withinDays := h.ParseIntQuery(c, "withinDays", 0)

	lots, err := h.service.GetExpiringLots(c.Request.Context(), withinDays)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := make([]dto.ExpiringLotResponse, len(lots))
	for i, lot := range lots {
		resp[i] = dto.FromExpiringLot(lot)
	}
	h.OK(c, dto.ListResponse{Items: resp, TotalCount: len(resp)})
}

// GetStats handles GET /reports/stats
func (h *ReportsHandler) GetStats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromStats(stats))
}

// RegisterRoutes registers report routes.
func (h *ReportsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/low-stock", h.GetLowStock)
	rg.GET("/expiring-lots", h.GetExpiringLots)
	rg.GET("/stats", h.GetStats)
}

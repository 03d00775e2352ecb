package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// LedgerHandler handles HTTP requests for ledger operations.
type LedgerHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(base *BaseHandler, service *ledger.Service) *LedgerHandler {
	return &LedgerHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Receive handles POST /ledger/receive
func (h *LedgerHandler) Receive(c *gin.Context) {
	var req dto.ReceiveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	variantID, err := id.Parse(req.VariantID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid variantId format"))
		return
	}

	unitCost, err := types.NewMoneyFromString(req.UnitCost)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid unitCost format"))
		return
	}

	input := ledger.ReceiveInput{
		VariantID:       variantID,
		Quantity:        req.Quantity,
		UnitCost:        unitCost,
		BatchNumber:     req.BatchNumber,
		ManufactureDate: req.ManufactureDate,
		ExpiryDate:      req.ExpiryDate,
		ActorID:         h.ActorID(c),
	}
	if req.PurchaseOrderLineID != nil {
		parsed, err := id.Parse(*req.PurchaseOrderLineID)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid purchaseOrderLineId format"))
			return
		}
		input.PurchaseOrderLineID = &parsed
	}

	result, err := h.service.Receive(c.Request.Context(), input)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ReceiveResponse{
		LotID:    result.LotID.String(),
		NewStock: result.NewStock,
	})
}

// Adjust handles POST /ledger/adjust
func (h *LedgerHandler) Adjust(c *gin.Context) {
	var req dto.AdjustRequest
	if !h.BindJSON(c, &req) {
		return
	}

	variantID, err := id.Parse(req.VariantID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid variantId format"))
		return
	}

	input := ledger.AdjustInput{
		VariantID:      variantID,
		QuantityChange: req.QuantityChange,
		Reason:         ledger.Reason(req.Reason),
		ReferenceType:  req.ReferenceType,
		ActorID:        h.ActorID(c),
	}
	if req.LotID != nil {
		parsed, err := id.Parse(*req.LotID)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid lotId format"))
			return
		}
		input.LotID = &parsed
	}
	if req.ReferenceID != nil {
		parsed, err := id.Parse(*req.ReferenceID)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid referenceId format"))
			return
		}
		input.ReferenceID = &parsed
	}

	result, err := h.service.Adjust(c.Request.Context(), input)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := dto.AdjustResponse{NewStock: result.NewStock}
	if !id.IsNil(result.AdjustmentID) {
		resp.AdjustmentID = result.AdjustmentID.String()
	}
	c.JSON(http.StatusCreated, resp)
}

// Deduct handles POST /ledger/deduct
func (h *LedgerHandler) Deduct(c *gin.Context) {
	var req dto.DeductRequest
	if !h.BindJSON(c, &req) {
		return
	}

	variantID, err := id.Parse(req.VariantID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid variantId format"))
		return
	}

	input := ledger.DeductInput{
		VariantID:     variantID,
		Quantity:      req.Quantity,
		Reason:        ledger.Reason(req.Reason),
		ReferenceType: req.ReferenceType,
		ActorID:       h.ActorID(c),
	}
	if req.ReferenceID != nil {
		parsed, err := id.Parse(*req.ReferenceID)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid referenceId format"))
			return
		}
		input.ReferenceID = &parsed
	}

	deducted, err := h.service.Deduct(c.Request.Context(), input)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.DeductResponse{Deducted: deducted})
}

// Restore handles POST /ledger/restore
func (h *LedgerHandler) Restore(c *gin.Context) {
	var req dto.RestoreRequest
	if !h.BindJSON(c, &req) {
		return
	}

	variantID, err := id.Parse(req.VariantID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid variantId format"))
		return
	}

	origRefID, err := id.Parse(req.OriginalReferenceID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid originalReferenceId format"))
		return
	}

	input := ledger.RestoreInput{
		VariantID:             variantID,
		OriginalReferenceType: req.OriginalReferenceType,
		OriginalReferenceID:   origRefID,
		Quantity:              req.Quantity,
		NewReason:             ledger.Reason(req.NewReason),
		NewReferenceType:      req.NewReferenceType,
		ActorID:               h.ActorID(c),
	}
	if req.NewReferenceID != nil {
		parsed, err := id.Parse(*req.NewReferenceID)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid newReferenceId format"))
			return
		}
		input.NewReferenceID = &parsed
	}

	restored, err := h.service.Restore(c.Request.Context(), input)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.RestoreResponse{Restored: restored})
}

// GetStock handles GET /ledger/stock/:variantId
func (h *LedgerHandler) GetStock(c *gin.Context) {
	variantID, ok := h.ParseIDParam(c, "variantId")
	if !ok {
		return
	}

	stock, err := h.service.GetStock(c.Request.Context(), variantID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.StockResponse{
		VariantID: variantID.String(),
		Stock:     stock,
	})
}

// GetStockBatch handles POST /ledger/stock/batch
func (h *LedgerHandler) GetStockBatch(c *gin.Context) {
	var req dto.StockBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}

	variantIDs := make([]id.ID, 0, len(req.VariantIDs))
	for _, s := range req.VariantIDs {
		parsed, err := id.Parse(s)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid variant id format").WithDetail("id", s))
			return
		}
		variantIDs = append(variantIDs, parsed)
	}

	stocks, err := h.service.GetStockBatch(c.Request.Context(), variantIDs)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := dto.StockBatchResponse{Stocks: make(map[string]int64, len(stocks))}
	for variantID, stock := range stocks {
		resp.Stocks[variantID.String()] = stock
	}
	h.OK(c, resp)
}

// GetLots handles GET /ledger/lots/:variantId
func (h *LedgerHandler) GetLots(c *gin.Context) {
	variantID, ok := h.ParseIDParam(c, "variantId")
	if !ok {
		return
	}

	lots, err := h.service.GetLots(c.Request.Context(), variantID)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.LotResponse, len(lots))
	for i, ls := range lots {
		items[i] = dto.FromLotStock(ls)
	}
	h.OK(c, dto.ListResponse{Items: items, TotalCount: len(items)})
}

// GetAdjustments handles GET /ledger/adjustments/:variantId
func (h *LedgerHandler) GetAdjustments(c *gin.Context) {
	variantID, ok := h.ParseIDParam(c, "variantId")
	if !ok {
		return
	}

	filter := ledger.AdjustmentFilter{
		Limit:  h.ParseIntQuery(c, "limit", 50),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}

	if lotStr := c.Query("lotId"); lotStr != "" {
		parsed, err := id.Parse(lotStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid lotId format"))
			return
		}
		filter.LotID = &parsed
	}
	if reasonStr := c.Query("reason"); reasonStr != "" {
		reason := ledger.Reason(reasonStr)
		if !reason.Valid() {
			h.Error(c, apperror.NewUnknownReason(reasonStr))
			return
		}
		filter.Reason = &reason
	}

	adjs, err := h.service.GetAdjustments(c.Request.Context(), variantID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.AdjustmentResponse, len(adjs))
	for i, a := range adjs {
		items[i] = dto.FromAdjustment(a)
	}
	h.OK(c, dto.ListResponse{
		Items:      items,
		TotalCount: len(items),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// RegisterRoutes registers ledger routes.
func (h *LedgerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/receive", h.Receive)
	rg.POST("/adjust", h.Adjust)
	rg.POST("/deduct", h.Deduct)
	rg.POST("/restore", h.Restore)
	rg.GET("/stock/:variantId", h.GetStock)
	rg.POST("/stock/batch", h.GetStockBatch)
	rg.GET("/lots/:variantId", h.GetLots)
	rg.GET("/adjustments/:variantId", h.GetAdjustments)
}

package dto

import (
	"time"

	"stockledger/internal/domain/ledger"
)

// --- Requests ---

// ReceiveRequest for POST /ledger/receive.
type ReceiveRequest struct {
	VariantID           string     `json:"variantId" binding:"required,uuid"`
	Quantity            int64      `json:"quantity" binding:"required,gt=0"`
	UnitCost            string     `json:"unitCost" binding:"required"`
	BatchNumber         *string    `json:"batchNumber"`
	ManufactureDate     *time.Time `json:"manufactureDate"`
	ExpiryDate          *time.Time `json:"expiryDate"`
	PurchaseOrderLineID *string    `json:"purchaseOrderLineId" binding:"omitempty,uuid"`
}

// AdjustRequest for POST /ledger/adjust.
type AdjustRequest struct {
	VariantID      string  `json:"variantId" binding:"required,uuid"`
	LotID          *string `json:"lotId" binding:"omitempty,uuid"`
	QuantityChange int64   `json:"quantityChange" binding:"required"`
	Reason         string  `json:"reason" binding:"required"`
	ReferenceType  *string `json:"referenceType"`
	ReferenceID    *string `json:"referenceId" binding:"omitempty,uuid"`
}

// DeductRequest for POST /ledger/deduct.
type DeductRequest struct {
	VariantID     string  `json:"variantId" binding:"required,uuid"`
	Quantity      int64   `json:"quantity" binding:"required,gt=0"`
	Reason        string  `json:"reason" binding:"required"`
	ReferenceType *string `json:"referenceType"`
	ReferenceID   *string `json:"referenceId" binding:"omitempty,uuid"`
}

// RestoreRequest for POST /ledger/restore.
type RestoreRequest struct {
	VariantID             string  `json:"variantId" binding:"required,uuid"`
	OriginalReferenceType string  `json:"originalReferenceType" binding:"required"`
	OriginalReferenceID   string  `json:"originalReferenceId" binding:"required,uuid"`
	Quantity              int64   `json:"quantity" binding:"required,gt=0"`
	NewReason             string  `json:"newReason" binding:"required"`
	NewReferenceType      *string `json:"newReferenceType"`
	NewReferenceID        *string `json:"newReferenceId" binding:"omitempty,uuid"`
}

// StockBatchRequest for POST /ledger/stock/batch.
type StockBatchRequest struct {
	VariantIDs []string `json:"variantIds" binding:"required,min=1,max=500,dive,uuid"`
}

// --- Responses ---

// ReceiveResponse reports the created lot and the stock after commit.
type ReceiveResponse struct {
	LotID    string `json:"lotId"`
	NewStock int64  `json:"newStock"`
}

// AdjustResponse reports the created adjustment and the stock after commit.
// AdjustmentID is empty when the movement was spread over multiple rows.
type AdjustResponse struct {
	AdjustmentID string `json:"adjustmentId,omitempty"`
	NewStock     int64  `json:"newStock"`
}

// DeductResponse reports the quantity deducted.
type DeductResponse struct {
	Deducted int64 `json:"deducted"`
}

// RestoreResponse reports the quantity restored.
type RestoreResponse struct {
	Restored int64 `json:"restored"`
}

// StockResponse is derived stock for one variant.
type StockResponse struct {
	VariantID string `json:"variantId"`
	Stock     int64  `json:"stock"`
}

// StockBatchResponse maps variant ids to derived stock.
type StockBatchResponse struct {
	Stocks map[string]int64 `json:"stocks"`
}

// LotResponse is one lot with its remaining quantity.
type LotResponse struct {
	ID                  string     `json:"id"`
	VariantID           string     `json:"variantId"`
	Quantity            int64      `json:"quantity"`
	Remaining           int64      `json:"remaining"`
	UnitCost            string     `json:"unitCost"`
	BatchNumber         *string    `json:"batchNumber,omitempty"`
	ManufactureDate     *time.Time `json:"manufactureDate,omitempty"`
	ExpiryDate          *time.Time `json:"expiryDate,omitempty"`
	PurchaseOrderLineID *string    `json:"purchaseOrderLineId,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
}

// FromLotStock creates LotResponse from ledger.LotStock.
func FromLotStock(ls ledger.LotStock) LotResponse {
	resp := LotResponse{
		ID:              ls.ID.String(),
		VariantID:       ls.VariantID.String(),
		Quantity:        ls.Quantity,
		Remaining:       ls.Remaining,
		UnitCost:        ls.UnitCost.String(),
		BatchNumber:     ls.BatchNumber,
		ManufactureDate: ls.ManufactureDate,
		ExpiryDate:      ls.ExpiryDate,
		CreatedAt:       ls.CreatedAt,
	}
	if ls.PurchaseOrderLineID != nil {
		s := ls.PurchaseOrderLineID.String()
		resp.PurchaseOrderLineID = &s
	}
	return resp
}

// AdjustmentResponse is one adjustment row.
type AdjustmentResponse struct {
	ID             string    `json:"id"`
	VariantID      string    `json:"variantId"`
	LotID          *string   `json:"lotId,omitempty"`
	QuantityChange int64     `json:"quantityChange"`
	Reason         string    `json:"reason"`
	ReferenceType  *string   `json:"referenceType,omitempty"`
	ReferenceID    *string   `json:"referenceId,omitempty"`
	ActorID        string    `json:"actorId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// FromAdjustment creates AdjustmentResponse from ledger.Adjustment.
func FromAdjustment(a ledger.Adjustment) AdjustmentResponse {
	resp := AdjustmentResponse{
		ID:             a.ID.String(),
		VariantID:      a.VariantID.String(),
		QuantityChange: a.QuantityChange,
		Reason:         string(a.Reason),
		ReferenceType:  a.ReferenceType,
		ActorID:        a.ActorID,
		CreatedAt:      a.CreatedAt,
	}
	if a.LotID != nil {
		s := a.LotID.String()
		resp.LotID = &s
	}
	if a.ReferenceID != nil {
		s := a.ReferenceID.String()
		resp.ReferenceID = &s
	}
	return resp
}

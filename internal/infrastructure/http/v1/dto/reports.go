package dto

import (
	"time"

	"stockledger/internal/domain/reports"
)

// LowStockItemResponse is one variant at or below its alert threshold.
type LowStockItemResponse struct {
	VariantID string `json:"variantId"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Stock     int64  `json:"stock"`
	Threshold int64  `json:"threshold"`
}

// FromLowStockItem creates LowStockItemResponse from reports.LowStockItem.
func FromLowStockItem(item reports.LowStockItem) LowStockItemResponse {
	return LowStockItemResponse{
		VariantID: item.VariantID.String(),
		SKU:       item.SKU,
		Name:      item.Name,
		Stock:     item.Stock,
		Threshold: item.Threshold,
	}
}

// ExpiringLotResponse is one lot expiring within the query horizon.
type ExpiringLotResponse struct {
	LotID       string    `json:"lotId"`
	VariantID   string    `json:"variantId"`
	BatchNumber *string   `json:"batchNumber,omitempty"`
	ExpiryDate  time.Time `json:"expiryDate"`
	Remaining   int64     `json:"remaining"`
}

// FromExpiringLot creates ExpiringLotResponse from reports.ExpiringLot.
func FromExpiringLot(lot reports.ExpiringLot) ExpiringLotResponse {
	return ExpiringLotResponse{
		LotID:       lot.LotID.String(),
		VariantID:   lot.VariantID.String(),
		BatchNumber: lot.BatchNumber,
		ExpiryDate:  lot.ExpiryDate,
		Remaining:   lot.Remaining,
	}
}

// StatsResponse holds global ledger totals.
type StatsResponse struct {
	TotalLots        int64  `json:"totalLots"`
	TotalAdjustments int64  `json:"totalAdjustments"`
	VariantsTracked  int64  `json:"variantsTracked"`
	UnitsOnHand      int64  `json:"unitsOnHand"`
	InventoryValue   string `json:"inventoryValue"`
}

// FromStats creates StatsResponse from reports.Stats.
func FromStats(s reports.Stats) StatsResponse {
	return StatsResponse{
		TotalLots:        s.TotalLots,
		TotalAdjustments: s.TotalAdjustments,
		VariantsTracked:  s.VariantsTracked,
		UnitsOnHand:      s.UnitsOnHand,
		InventoryValue:   s.InventoryValue.String(),
	}
}

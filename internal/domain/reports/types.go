// Package reports provides read-only aggregate queries over the ledger:
// low-stock alerts, expiring lots, and global totals.
package reports

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// LowStockItem is a variant whose derived stock is at or below its alert
// threshold.
type LowStockItem struct {
	VariantID id.ID  `db:"variant_id" json:"variantId"`
	SKU       string `db:"sku" json:"sku"`
	Name      string `db:"name" json:"name"`
	Stock     int64  `db:"stock" json:"stock"`
	Threshold int64  `db:"alert_threshold" json:"threshold"`
}

// ExpiringLot is a lot whose expiry date falls inside the query horizon and
// which still has unconsumed quantity.
type ExpiringLot struct {
	LotID       id.ID     `db:"lot_id" json:"lotId"`
	VariantID   id.ID     `db:"variant_id" json:"variantId"`
	BatchNumber *string   `db:"batch_number" json:"batchNumber,omitempty"`
	ExpiryDate  time.Time `db:"expiry_date" json:"expiryDate"`
	Remaining   int64     `db:"remaining" json:"remaining"`
}

// Stats holds global totals over the ledger as of one consistent snapshot.
type Stats struct {
	TotalLots        int64       `db:"total_lots" json:"totalLots"`
	TotalAdjustments int64       `db:"total_adjustments" json:"totalAdjustments"`
	VariantsTracked  int64       `db:"variants_tracked" json:"variantsTracked"`
	UnitsOnHand      int64       `db:"units_on_hand" json:"unitsOnHand"`
	InventoryValue   types.Money `db:"inventory_value" json:"inventoryValue"`
}

// ExpiryFilter bounds the expiring-lots query.
type ExpiryFilter struct {
	WithinDays int
	Limit      int
}

package reports

import (
	"context"
)

// Repository defines the aggregate queries backing the reports service.
// All queries are read-only and reflect a consistent snapshot as of one
// statement; there is no write path.
type Repository interface {
	// GetLowStock returns variants at or below their alert threshold.
	GetLowStock(ctx context.Context) ([]LowStockItem, error)

	// GetExpiringLots returns lots with remaining quantity whose expiry
	// date falls within the horizon, soonest first.
	GetExpiringLots(ctx context.Context, filter ExpiryFilter) ([]ExpiringLot, error)

	// GetStats returns global ledger totals.
	GetStats(ctx context.Context) (Stats, error)
}

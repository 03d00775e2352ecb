package ledger

import (
	"context"

	"stockledger/internal/core/id"
)

// Repository defines storage operations for the ledger.
// Both tables are append-only: there are no update or delete operations.
type Repository interface {
	// Write operations (must run inside a transaction)

	// CreateLot inserts a lot record.
	CreateLot(ctx context.Context, lot *Lot) error

	// CreateAdjustment inserts a single adjustment row.
	CreateAdjustment(ctx context.Context, adj *Adjustment) error

	// CreateAdjustments batch inserts adjustment rows (FIFO/LIFO walks
	// produce one row per touched lot).
	CreateAdjustments(ctx context.Context, adjs []Adjustment) error

	// LockVariant takes a row lock on the variant for the duration of the
	// current transaction, so concurrent writers against the same variant
	// serialize. Returns NotFound for unknown variants.
	LockVariant(ctx context.Context, variantID id.ID) error

	// Projection / reads

	// GetStock derives current stock for a variant:
	// sum of lot quantities plus counting adjustments. Inside a
	// transaction it reflects that transaction's own uncommitted writes.
	GetStock(ctx context.Context, variantID id.ID) (int64, error)

	// GetStockBatch derives stock for many variants in one query.
	// Variants with no records map to zero.
	GetStockBatch(ctx context.Context, variantIDs []id.ID) (map[id.ID]int64, error)

	// GetLot returns a single lot. NotFound if missing.
	GetLot(ctx context.Context, lotID id.ID) (Lot, error)

	// GetLots returns all lots of a variant with per-lot remaining
	// quantity, oldest first.
	GetLots(ctx context.Context, variantID id.ID) ([]LotStock, error)

	// GetOpenLots returns lots with remaining > 0, oldest first.
	// This is the FIFO consumption source.
	GetOpenLots(ctx context.Context, variantID id.ID) ([]LotStock, error)

	// GetAdjustments returns adjustment history for a variant, newest
	// first, paginated.
	GetAdjustments(ctx context.Context, variantID id.ID, filter AdjustmentFilter) ([]Adjustment, error)

	// GetAdjustmentsByReference returns adjustments posted against a
	// business reference for a variant, newest first. This is the LIFO
	// restoration source.
	GetAdjustmentsByReference(ctx context.Context, variantID id.ID, refType string, refID id.ID) ([]Adjustment, error)
}

// AdjustmentFilter for paginated history queries.
type AdjustmentFilter struct {
	LotID  *id.ID
	Reason *Reason
	Limit  int
	Offset int
}

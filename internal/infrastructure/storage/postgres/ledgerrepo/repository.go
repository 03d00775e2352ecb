// Package ledgerrepo implements ledger.Repository on PostgreSQL.
//
// Both tables are append-only. Stock is never stored: every read derives it
// from SUM(lots.quantity) plus SUM(adjustments.quantity_change) over counting
// rows, so the projection cannot drift from the event history.
package ledgerrepo

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

// Rows with this reason mirror a lot receipt and are excluded from every
// stock sum; the received units already count through the lot's quantity.
const nonCountingReason = string(ledger.ReasonReceiptConfirmation)

var adjustmentColumns = []string{
	"id", "variant_id", "lot_id", "quantity_change",
	"reason", "reference_type", "reference_id", "actor_id", "created_at",
}

// Repository is the PostgreSQL implementation of ledger.Repository.
type Repository struct {
	txManager *postgres.TxManager
	batch     *postgres.BatchInserter
	builder   sq.StatementBuilderType
}

var _ ledger.Repository = (*Repository)(nil)

// NewRepository creates a ledger repository.
func NewRepository(txManager *postgres.TxManager) *Repository {
	return &Repository{
		txManager: txManager,
		batch:     postgres.NewBatchInserter(txManager),
		builder:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// CreateLot inserts a lot record.
func (r *Repository) CreateLot(ctx context.Context, lot *ledger.Lot) error {
	query, args, err := r.builder.
		Insert("lots").
		Columns("id", "variant_id", "quantity", "unit_cost",
			"batch_number", "manufacture_date", "expiry_date",
			"purchase_order_line_id", "created_at").
		Values(lot.ID, lot.VariantID, lot.Quantity, lot.UnitCost,
			lot.BatchNumber, lot.ManufactureDate, lot.ExpiryDate,
			lot.PurchaseOrderLineID, lot.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert lot query: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert lot: %w", err)
	}
	return nil
}

// CreateAdjustment inserts a single adjustment row.
func (r *Repository) CreateAdjustment(ctx context.Context, adj *ledger.Adjustment) error {
	query, args, err := r.builder.
		Insert("adjustments").
		Columns(adjustmentColumns...).
		Values(adj.ID, adj.VariantID, adj.LotID, adj.QuantityChange,
			adj.Reason, adj.ReferenceType, adj.ReferenceID,
			adj.ActorID, adj.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert adjustment query: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert adjustment: %w", err)
	}
	return nil
}

// CreateAdjustments batch inserts adjustment rows. Inside a transaction it
// uses the COPY protocol; a FIFO walk over many lots stays one round trip.
func (r *Repository) CreateAdjustments(ctx context.Context, adjs []ledger.Adjustment) error {
	if len(adjs) == 0 {
		return nil
	}
	if len(adjs) == 1 {
		return r.CreateAdjustment(ctx, &adjs[0])
	}

	rows := make([][]any, 0, len(adjs))
	for i := range adjs {
		a := &adjs[i]
		rows = append(rows, []any{
			a.ID, a.VariantID, a.LotID, a.QuantityChange,
			a.Reason, a.ReferenceType, a.ReferenceID,
			a.ActorID, a.CreatedAt,
		})
	}

	n, err := r.batch.CopyFromSlice(ctx, "adjustments", adjustmentColumns, rows)
	if err != nil {
		return fmt.Errorf("copy adjustments: %w", err)
	}
	if n != int64(len(adjs)) {
		return fmt.Errorf("copy adjustments: inserted %d of %d rows", n, len(adjs))
	}
	return nil
}

// LockVariant takes a row lock on the variant for the duration of the current
// transaction. Concurrent writers against the same variant queue here, which
// keeps read-sum-then-insert sequences serial per variant.
func (r *Repository) LockVariant(ctx context.Context, variantID id.ID) error {
	var locked id.ID
	err := r.txManager.GetQuerier(ctx).
		QueryRow(ctx, "SELECT id FROM variants WHERE id = $1 FOR UPDATE", variantID).
		Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NewNotFound("variant", variantID.String())
	}
	if err != nil {
		return fmt.Errorf("lock variant: %w", err)
	}
	return nil
}

// GetStock derives current stock for a variant.
func (r *Repository) GetStock(ctx context.Context, variantID id.ID) (int64, error) {
	// SUM over bigint widens to numeric, hence the casts.
	const query = `
		SELECT COALESCE((SELECT SUM(quantity) FROM lots WHERE variant_id = $1), 0)::bigint
		     + COALESCE((SELECT SUM(quantity_change) FROM adjustments
		                  WHERE variant_id = $1 AND reason <> $2), 0)::bigint AS stock`

	var stock int64
	err := r.txManager.GetQuerier(ctx).
		QueryRow(ctx, query, variantID, nonCountingReason).
		Scan(&stock)
	if err != nil {
		return 0, fmt.Errorf("get stock: %w", err)
	}
	return stock, nil
}

// GetStockBatch derives stock for many variants in one query. Variants with
// no records map to zero.
func (r *Repository) GetStockBatch(ctx context.Context, variantIDs []id.ID) (map[id.ID]int64, error) {
	result := make(map[id.ID]int64, len(variantIDs))
	if len(variantIDs) == 0 {
		return result, nil
	}
	for _, v := range variantIDs {
		result[v] = 0
	}

	const query = `
		SELECT variant_id, SUM(qty)::bigint AS stock
		FROM (
			SELECT variant_id, quantity AS qty
			FROM lots WHERE variant_id = ANY($1)
			UNION ALL
			SELECT variant_id, quantity_change
			FROM adjustments WHERE variant_id = ANY($1) AND reason <> $2
		) movements
		GROUP BY variant_id`

	var rows []struct {
		VariantID id.ID `db:"variant_id"`
		Stock     int64 `db:"stock"`
	}
	err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, query, variantIDs, nonCountingReason)
	if err != nil {
		return nil, fmt.Errorf("get stock batch: %w", err)
	}

	for _, row := range rows {
		result[row.VariantID] = row.Stock
	}
	return result, nil
}

// GetLot returns a single lot.
func (r *Repository) GetLot(ctx context.Context, lotID id.ID) (ledger.Lot, error) {
	query, args, err := r.builder.
		Select("id", "variant_id", "quantity", "unit_cost",
			"batch_number", "manufacture_date", "expiry_date",
			"purchase_order_line_id", "created_at").
		From("lots").
		Where(sq.Eq{"id": lotID}).
		ToSql()
	if err != nil {
		return ledger.Lot{}, fmt.Errorf("build get lot query: %w", err)
	}

	var lot ledger.Lot
	err = pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &lot, query, args...)
	if pgxscan.NotFound(err) {
		return ledger.Lot{}, apperror.NewNotFound("lot", lotID.String())
	}
	if err != nil {
		return ledger.Lot{}, fmt.Errorf("get lot: %w", err)
	}
	return lot, nil
}

// lotStockQuery joins lots with their counting lot-scoped adjustments and
// computes remaining per lot. Ordered oldest first with the time-ordered id
// as tiebreaker, which is the FIFO consumption order.
const lotStockQuery = `
	SELECT l.id, l.variant_id, l.quantity, l.unit_cost,
	       l.batch_number, l.manufacture_date, l.expiry_date,
	       l.purchase_order_line_id, l.created_at,
	       (l.quantity + COALESCE(SUM(a.quantity_change) FILTER (WHERE a.reason <> $2), 0))::bigint AS remaining
	FROM lots l
	LEFT JOIN adjustments a ON a.lot_id = l.id
	WHERE l.variant_id = $1
	GROUP BY l.id`

// GetLots returns all lots of a variant with per-lot remaining, oldest first.
func (r *Repository) GetLots(ctx context.Context, variantID id.ID) ([]ledger.LotStock, error) {
	query := lotStockQuery + `
	ORDER BY l.created_at, l.id`

	var lots []ledger.LotStock
	err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &lots, query, variantID, nonCountingReason)
	if err != nil {
		return nil, fmt.Errorf("get lots: %w", err)
	}
	return lots, nil
}

// GetOpenLots returns lots with remaining > 0, oldest first. The variant row
// lock taken by writers makes the read stable; FOR UPDATE is not possible on
// a grouped query and not needed here.
func (r *Repository) GetOpenLots(ctx context.Context, variantID id.ID) ([]ledger.LotStock, error) {
	query := lotStockQuery + `
	HAVING l.quantity + COALESCE(SUM(a.quantity_change) FILTER (WHERE a.reason <> $2), 0) > 0
	ORDER BY l.created_at, l.id`

	var lots []ledger.LotStock
	err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &lots, query, variantID, nonCountingReason)
	if err != nil {
		return nil, fmt.Errorf("get open lots: %w", err)
	}
	return lots, nil
}

// GetAdjustments returns adjustment history for a variant, newest first.
func (r *Repository) GetAdjustments(ctx context.Context, variantID id.ID, filter ledger.AdjustmentFilter) ([]ledger.Adjustment, error) {
	builder := r.builder.
		Select(adjustmentColumns...).
		From("adjustments").
		Where(sq.Eq{"variant_id": variantID}).
		OrderBy("created_at DESC", "id DESC")

	if filter.LotID != nil {
		builder = builder.Where(sq.Eq{"lot_id": *filter.LotID})
	}
	if filter.Reason != nil {
		builder = builder.Where(sq.Eq{"reason": *filter.Reason})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get adjustments query: %w", err)
	}

	var adjs []ledger.Adjustment
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &adjs, query, args...); err != nil {
		return nil, fmt.Errorf("get adjustments: %w", err)
	}
	return adjs, nil
}

// GetAdjustmentsByReference returns adjustments posted against a business
// reference, newest first. Restoration walks this list, so the order is the
// LIFO reversal order.
func (r *Repository) GetAdjustmentsByReference(ctx context.Context, variantID id.ID, refType string, refID id.ID) ([]ledger.Adjustment, error) {
	query, args, err := r.builder.
		Select(adjustmentColumns...).
		From("adjustments").
		Where(sq.Eq{
			"variant_id":     variantID,
			"reference_type": refType,
			"reference_id":   refID,
		}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get adjustments by reference query: %w", err)
	}

	var adjs []ledger.Adjustment
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &adjs, query, args...); err != nil {
		return nil, fmt.Errorf("get adjustments by reference: %w", err)
	}
	return adjs, nil
}

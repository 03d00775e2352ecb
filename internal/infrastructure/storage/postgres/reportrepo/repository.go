// Package reportrepo implements reports.Repository on PostgreSQL.
package reportrepo

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/storage/postgres"
)

const nonCountingReason = string(ledger.ReasonReceiptConfirmation)

// Repository is the PostgreSQL implementation of reports.Repository.
type Repository struct {
	txManager *postgres.TxManager
}

var _ reports.Repository = (*Repository)(nil)

// NewRepository creates a reports repository.
func NewRepository(txManager *postgres.TxManager) *Repository {
	return &Repository{txManager: txManager}
}

// GetLowStock returns variants at or below their alert threshold, most
// depleted first. Variants with a zero threshold opted out of alerting.
func (r *Repository) GetLowStock(ctx context.Context) ([]reports.LowStockItem, error) {
	const query = `
		SELECT v.id AS variant_id, v.sku, v.name, v.alert_threshold,
		       (COALESCE(l.total, 0) + COALESCE(a.total, 0))::bigint AS stock
		FROM variants v
		LEFT JOIN (
			SELECT variant_id, SUM(quantity) AS total
			FROM lots GROUP BY variant_id
		) l ON l.variant_id = v.id
		LEFT JOIN (
			SELECT variant_id, SUM(quantity_change) AS total
			FROM adjustments WHERE reason <> $1 GROUP BY variant_id
		) a ON a.variant_id = v.id
		WHERE v.alert_threshold > 0
		  AND COALESCE(l.total, 0) + COALESCE(a.total, 0) <= v.alert_threshold
		ORDER BY stock, v.sku`

	var items []reports.LowStockItem
	err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &items, query, nonCountingReason)
	if err != nil {
		return nil, fmt.Errorf("select low stock: %w", err)
	}
	return items, nil
}

// GetExpiringLots returns lots with remaining quantity whose expiry date
// falls within the horizon, soonest first.
func (r *Repository) GetExpiringLots(ctx context.Context, filter reports.ExpiryFilter) ([]reports.ExpiringLot, error) {
	const query = `
		SELECT l.id AS lot_id, l.variant_id, l.batch_number, l.expiry_date,
		       (l.quantity + COALESCE(SUM(a.quantity_change) FILTER (WHERE a.reason <> $1), 0))::bigint AS remaining
		FROM lots l
		LEFT JOIN adjustments a ON a.lot_id = l.id
		WHERE l.expiry_date IS NOT NULL
		  AND l.expiry_date <= NOW() + make_interval(days => $2)
		GROUP BY l.id
		HAVING l.quantity + COALESCE(SUM(a.quantity_change) FILTER (WHERE a.reason <> $1), 0) > 0
		ORDER BY l.expiry_date, l.id
		LIMIT $3`

	var lots []reports.ExpiringLot
	err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &lots, query,
		nonCountingReason, filter.WithinDays, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("select expiring lots: %w", err)
	}
	return lots, nil
}

// GetStats returns global ledger totals. Valuation prices each lot's
// remaining units at that lot's own receipt cost.
func (r *Repository) GetStats(ctx context.Context) (reports.Stats, error) {
	const query = `
		WITH lot_remaining AS (
			SELECT l.id, l.variant_id, l.unit_cost,
			       l.quantity + COALESCE(SUM(a.quantity_change) FILTER (WHERE a.reason <> $1), 0) AS remaining
			FROM lots l
			LEFT JOIN adjustments a ON a.lot_id = l.id
			GROUP BY l.id
		)
		SELECT
			(SELECT COUNT(*) FROM lots) AS total_lots,
			(SELECT COUNT(*) FROM adjustments) AS total_adjustments,
			(SELECT COUNT(DISTINCT variant_id) FROM (
				SELECT variant_id FROM lots
				UNION
				SELECT variant_id FROM adjustments
			) tracked) AS variants_tracked,
			COALESCE((SELECT SUM(quantity) FROM lots), 0)::bigint
			  + COALESCE((SELECT SUM(quantity_change) FROM adjustments WHERE reason <> $1), 0)::bigint AS units_on_hand,
			COALESCE((SELECT SUM(remaining * unit_cost) FROM lot_remaining WHERE remaining > 0), 0) AS inventory_value`

	var stats reports.Stats
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &stats, query, nonCountingReason)
	if err != nil {
		return reports.Stats{}, fmt.Errorf("select stats: %w", err)
	}
	return stats, nil
}

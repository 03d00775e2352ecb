package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

// MovementEntry is one row of the movement-history feed.
type MovementEntry struct {
	ID            id.ID                   `db:"id"`
	VariantID     id.ID                   `db:"variant_id"`
	Category      ledger.MovementCategory `db:"category"`
	Quantity      int64                   `db:"quantity"`
	ReferenceType string                  `db:"reference_type"`
	ReferenceID   string                  `db:"reference_id"`
	CreatedAt     time.Time               `db:"created_at"`
}

// MovementHistory persists movement notifications into the movement_history
// feed table. One entry per logical operation, not per ledger row.
type MovementHistory struct {
	txManager *TxManager
	builder   sq.StatementBuilderType
}

var _ ledger.MovementSink = (*MovementHistory)(nil)

// NewMovementHistory creates a movement-history sink.
func NewMovementHistory(txManager *TxManager) *MovementHistory {
	return &MovementHistory{
		txManager: txManager,
		builder:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// RecordMovement appends one feed entry.
func (h *MovementHistory) RecordMovement(ctx context.Context, ev ledger.MovementEvent) error {
	query, args, err := h.builder.
		Insert("movement_history").
		Columns("id", "variant_id", "category", "quantity",
			"reference_type", "reference_id", "created_at").
		Values(id.New(), ev.VariantID, ev.Category, ev.Quantity,
			ev.ReferenceType, ev.ReferenceID, time.Now().UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert movement query: %w", err)
	}

	if _, err := h.txManager.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// GetHistory returns the feed for a variant, newest first.
func (h *MovementHistory) GetHistory(ctx context.Context, variantID id.ID, limit int) ([]MovementEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query, args, err := h.builder.
		Select("id", "variant_id", "category", "quantity",
			"reference_type", "reference_id", "created_at").
		From("movement_history").
		Where(sq.Eq{"variant_id": variantID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build movement history query: %w", err)
	}

	var entries []MovementEntry
	if err := pgxscan.Select(ctx, h.txManager.GetQuerier(ctx), &entries, query, args...); err != nil {
		return nil, fmt.Errorf("select movement history: %w", err)
	}
	return entries, nil
}

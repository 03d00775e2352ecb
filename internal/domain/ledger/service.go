package ledger

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/pkg/logger"
)

// Service orchestrates ledger writes: one atomic transaction per request,
// precondition validation up front, side-effect notifications after commit.
// All dependencies are injected at construction; there is no ambient state.
type Service struct {
	repo       Repository
	txManager  tx.Manager
	dispatcher *Dispatcher
}

// NewService creates a new ledger service.
func NewService(repo Repository, txManager tx.Manager, dispatcher *Dispatcher) *Service {
	return &Service{
		repo:       repo,
		txManager:  txManager,
		dispatcher: dispatcher,
	}
}

// ReceiveInput describes a batch of stock entering inventory.
type ReceiveInput struct {
	VariantID           id.ID
	Quantity            int64
	UnitCost            types.Money
	BatchNumber         *string
	ManufactureDate     *time.Time
	ExpiryDate          *time.Time
	PurchaseOrderLineID *id.ID
	ActorID             string
}

// ReceiveResult reports the created lot and the derived stock after commit.
type ReceiveResult struct {
	LotID    id.ID `json:"lotId"`
	NewStock int64 `json:"newStock"`
}

// Receive creates a lot plus its paired receipt-confirmation adjustment in
// one transaction. The confirmation row makes the receipt visible in the
// adjustment history without affecting derived stock (the lot's quantity
// already carries the units).
func (s *Service) Receive(ctx context.Context, in ReceiveInput) (ReceiveResult, error) {
	if in.ActorID == "" {
		return ReceiveResult{}, apperror.NewValidation("actor_id is required")
	}

	lot := &Lot{
		ID:                  id.New(),
		VariantID:           in.VariantID,
		Quantity:            in.Quantity,
		UnitCost:            in.UnitCost,
		BatchNumber:         in.BatchNumber,
		ManufactureDate:     in.ManufactureDate,
		ExpiryDate:          in.ExpiryDate,
		PurchaseOrderLineID: in.PurchaseOrderLineID,
		CreatedAt:           time.Now().UTC(),
	}
	if err := lot.Validate(); err != nil {
		return ReceiveResult{}, err
	}

	var refType *string
	if in.PurchaseOrderLineID != nil {
		t := RefTypePurchaseOrderLine
		refType = &t
	}
	confirmation := newAdjustment(
		in.VariantID, &lot.ID, in.Quantity, ReasonReceiptConfirmation,
		refType, in.PurchaseOrderLineID, in.ActorID, lot.CreatedAt,
	)

	var newStock int64
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockVariant(ctx, in.VariantID); err != nil {
			return err
		}
		if err := s.repo.CreateLot(ctx, lot); err != nil {
			return fmt.Errorf("create lot: %w", err)
		}
		if err := s.repo.CreateAdjustment(ctx, &confirmation); err != nil {
			return fmt.Errorf("create receipt confirmation: %w", err)
		}
		stock, err := s.repo.GetStock(ctx, in.VariantID)
		if err != nil {
			return fmt.Errorf("derive stock: %w", err)
		}
		newStock = stock
		return nil
	})
	if err != nil {
		return ReceiveResult{}, err
	}

	s.dispatcher.Dispatch(ctx, []Event{
		MovementEvent{
			VariantID:     in.VariantID,
			Category:      MovementPurchase,
			Quantity:      in.Quantity,
			ReferenceType: derefStr(refType),
			ReferenceID:   refIDString(in.PurchaseOrderLineID),
		},
		AuditEvent{
			Action:     AuditActionCreate,
			ActorID:    in.ActorID,
			EntityType: EntityTypeLot,
			EntityID:   lot.ID,
			After:      lotAuditData(lot),
		},
	})

	logger.Info(ctx, "stock received",
		"variant_id", in.VariantID,
		"lot_id", lot.ID,
		"quantity", in.Quantity,
		"new_stock", newStock,
	)

	return ReceiveResult{LotID: lot.ID, NewStock: newStock}, nil
}

// AdjustInput describes a single requested stock movement.
type AdjustInput struct {
	VariantID      id.ID
	LotID          *id.ID
	QuantityChange int64
	Reason         Reason
	ReferenceType  *string
	ReferenceID    *id.ID
	ActorID        string
}

// AdjustResult reports the created adjustment (id 0 when the request was
// delegated to a multi-row FIFO deduction) and the derived stock after commit.
type AdjustResult struct {
	AdjustmentID id.ID `json:"adjustmentId"`
	NewStock     int64 `json:"newStock"`
}

// Adjust posts one signed stock movement. Negative changes are pre-checked
// against derived stock before any transaction opens: a foreseeable
// insufficient-stock failure should not cost a begin/rollback cycle.
// A negative change with no lot named delegates to the FIFO deduction.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (AdjustResult, error) {
	if !in.Reason.Valid() {
		return AdjustResult{}, apperror.NewUnknownReason(string(in.Reason))
	}
	if in.Reason == ReasonReceiptConfirmation {
		return AdjustResult{}, apperror.NewValidation("receipt-confirmation adjustments are created by Receive only")
	}
	if in.QuantityChange == 0 {
		return AdjustResult{}, apperror.NewValidation("quantity_change must be non-zero")
	}
	if in.ActorID == "" {
		return AdjustResult{}, apperror.NewValidation("actor_id is required")
	}

	if in.QuantityChange < 0 {
		available, err := s.repo.GetStock(ctx, in.VariantID)
		if err != nil {
			return AdjustResult{}, fmt.Errorf("derive stock: %w", err)
		}
		if available+in.QuantityChange < 0 {
			return AdjustResult{}, apperror.NewInsufficientStock(
				in.VariantID.String(), -in.QuantityChange, available)
		}

		if in.LotID == nil {
			_, newStock, err := s.deduct(ctx, DeductInput{
				VariantID:     in.VariantID,
				Quantity:      -in.QuantityChange,
				Reason:        in.Reason,
				ReferenceType: in.ReferenceType,
				ReferenceID:   in.ReferenceID,
				ActorID:       in.ActorID,
			})
			if err != nil {
				return AdjustResult{}, err
			}
			// Multiple rows were written; there is no single id to return.
			return AdjustResult{AdjustmentID: id.Nil(), NewStock: newStock}, nil
		}
	}

	if in.LotID != nil {
		lot, err := s.repo.GetLot(ctx, *in.LotID)
		if err != nil {
			return AdjustResult{}, err
		}
		if lot.VariantID != in.VariantID {
			return AdjustResult{}, apperror.NewValidation("lot does not belong to variant").
				WithDetail("lot_id", in.LotID.String()).
				WithDetail("variant_id", in.VariantID.String())
		}
	}

	adj := newAdjustment(
		in.VariantID, in.LotID, in.QuantityChange, in.Reason,
		in.ReferenceType, in.ReferenceID, in.ActorID, time.Now().UTC(),
	)

	var newStock int64
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockVariant(ctx, in.VariantID); err != nil {
			return err
		}
		if in.QuantityChange < 0 {
			// Re-check under the variant lock: the pre-check above ran
			// against a possibly stale figure.
			available, err := s.repo.GetStock(ctx, in.VariantID)
			if err != nil {
				return fmt.Errorf("derive stock: %w", err)
			}
			if available+in.QuantityChange < 0 {
				return apperror.NewInsufficientStock(
					in.VariantID.String(), -in.QuantityChange, available)
			}
		}
		if err := s.repo.CreateAdjustment(ctx, &adj); err != nil {
			return fmt.Errorf("create adjustment: %w", err)
		}
		stock, err := s.repo.GetStock(ctx, in.VariantID)
		if err != nil {
			return fmt.Errorf("derive stock: %w", err)
		}
		newStock = stock
		return nil
	})
	if err != nil {
		return AdjustResult{}, err
	}

	s.dispatcher.Dispatch(ctx, []Event{
		MovementEvent{
			VariantID:     in.VariantID,
			Category:      movementCategory(in.Reason),
			Quantity:      in.QuantityChange,
			ReferenceType: derefStr(in.ReferenceType),
			ReferenceID:   refIDString(in.ReferenceID),
		},
		AuditEvent{
			Action:     AuditActionCreate,
			ActorID:    in.ActorID,
			EntityType: EntityTypeAdjustment,
			EntityID:   adj.ID,
			After:      adjustmentAuditData(&adj),
		},
	})

	logger.Info(ctx, "stock adjusted",
		"variant_id", in.VariantID,
		"adjustment_id", adj.ID,
		"quantity_change", in.QuantityChange,
		"reason", in.Reason,
		"new_stock", newStock,
	)

	return AdjustResult{AdjustmentID: adj.ID, NewStock: newStock}, nil
}

// DeductInput describes a lot-agnostic stock decrease.
type DeductInput struct {
	VariantID     id.ID
	Quantity      int64
	Reason        Reason
	ReferenceType *string
	ReferenceID   *id.ID
	ActorID       string
}

// Deduct consumes stock oldest-lot-first. Each touched lot gets its own
// negative adjustment row so per-lot cost attribution survives; any
// remainder past the last open lot becomes one headless row, letting stock
// go negative rather than failing after partial success.
//
// Quantity <= 0 is a no-op returning zero, not an error.
func (s *Service) Deduct(ctx context.Context, in DeductInput) (int64, error) {
	deducted, _, err := s.deduct(ctx, in)
	return deducted, err
}

func (s *Service) deduct(ctx context.Context, in DeductInput) (int64, int64, error) {
	if in.Quantity <= 0 {
		return 0, 0, nil
	}
	if !in.Reason.Valid() {
		return 0, 0, apperror.NewUnknownReason(string(in.Reason))
	}
	if in.Reason == ReasonReceiptConfirmation {
		return 0, 0, apperror.NewValidation("receipt-confirmation adjustments are created by Receive only")
	}
	if in.ActorID == "" {
		return 0, 0, apperror.NewValidation("actor_id is required")
	}

	var (
		newStock int64
		events   []Event
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		events = events[:0]

		if err := s.repo.LockVariant(ctx, in.VariantID); err != nil {
			return err
		}

		lots, err := s.repo.GetOpenLots(ctx, in.VariantID)
		if err != nil {
			return fmt.Errorf("load open lots: %w", err)
		}

		now := time.Now().UTC()
		remaining := in.Quantity
		adjs := make([]Adjustment, 0, len(lots)+1)
		for _, ls := range lots {
			if remaining == 0 {
				break
			}
			take := min(remaining, ls.Remaining)
			lotID := ls.ID
			adjs = append(adjs, newAdjustment(
				in.VariantID, &lotID, -take, in.Reason,
				in.ReferenceType, in.ReferenceID, in.ActorID, now,
			))
			remaining -= take
		}
		if remaining > 0 {
			adjs = append(adjs, newAdjustment(
				in.VariantID, nil, -remaining, in.Reason,
				in.ReferenceType, in.ReferenceID, in.ActorID, now,
			))
		}

		if err := s.repo.CreateAdjustments(ctx, adjs); err != nil {
			return fmt.Errorf("create adjustments: %w", err)
		}

		stock, err := s.repo.GetStock(ctx, in.VariantID)
		if err != nil {
			return fmt.Errorf("derive stock: %w", err)
		}
		newStock = stock

		for i := range adjs {
			events = append(events, AuditEvent{
				Action:     AuditActionCreate,
				ActorID:    in.ActorID,
				EntityType: EntityTypeAdjustment,
				EntityID:   adjs[i].ID,
				After:      adjustmentAuditData(&adjs[i]),
			})
		}
		// One movement event for the whole call: history readers see a
		// single logical decrease no matter how many lots were touched.
		events = append(events, MovementEvent{
			VariantID:     in.VariantID,
			Category:      movementCategory(in.Reason),
			Quantity:      -in.Quantity,
			ReferenceType: derefStr(in.ReferenceType),
			ReferenceID:   refIDString(in.ReferenceID),
		})
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	s.dispatcher.Dispatch(ctx, events)

	logger.Info(ctx, "stock deducted",
		"variant_id", in.VariantID,
		"quantity", in.Quantity,
		"reason", in.Reason,
		"new_stock", newStock,
	)

	return in.Quantity, newStock, nil
}

// RestoreInput describes a reversal of prior deductions tied to a
// business reference.
type RestoreInput struct {
	VariantID             id.ID
	OriginalReferenceType string
	OriginalReferenceID   id.ID
	Quantity              int64
	NewReason             Reason
	NewReferenceType      *string
	NewReferenceID        *id.ID
	ActorID               string
}

// Restore puts stock back by reversing the deductions previously posted
// against (originalReferenceType, originalReferenceID), newest deduction
// first. Reversing in LIFO order keeps per-lot bookkeeping consistent with
// how FIFO consumed the lots. Quantity beyond what was ever deducted lands
// in one headless positive row.
//
// Quantity <= 0 is a no-op returning zero, not an error.
func (s *Service) Restore(ctx context.Context, in RestoreInput) (int64, error) {
	if in.Quantity <= 0 {
		return 0, nil
	}
	if !in.NewReason.Valid() {
		return 0, apperror.NewUnknownReason(string(in.NewReason))
	}
	if in.NewReason == ReasonReceiptConfirmation {
		return 0, apperror.NewValidation("receipt-confirmation adjustments are created by Receive only")
	}
	if in.OriginalReferenceType == "" {
		return 0, apperror.NewValidation("original reference type is required")
	}
	if in.ActorID == "" {
		return 0, apperror.NewValidation("actor_id is required")
	}

	var (
		newStock int64
		events   []Event
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		events = events[:0]

		if err := s.repo.LockVariant(ctx, in.VariantID); err != nil {
			return err
		}

		prior, err := s.repo.GetAdjustmentsByReference(
			ctx, in.VariantID, in.OriginalReferenceType, in.OriginalReferenceID)
		if err != nil {
			return fmt.Errorf("load prior adjustments: %w", err)
		}

		now := time.Now().UTC()
		remaining := in.Quantity
		adjs := make([]Adjustment, 0, len(prior)+1)
		for _, p := range prior {
			if remaining == 0 {
				break
			}
			if p.QuantityChange >= 0 {
				// Only prior deductions are restorable.
				continue
			}
			give := min(remaining, -p.QuantityChange)
			adjs = append(adjs, newAdjustment(
				in.VariantID, p.LotID, give, in.NewReason,
				in.NewReferenceType, in.NewReferenceID, in.ActorID, now,
			))
			remaining -= give
		}
		if remaining > 0 {
			adjs = append(adjs, newAdjustment(
				in.VariantID, nil, remaining, in.NewReason,
				in.NewReferenceType, in.NewReferenceID, in.ActorID, now,
			))
		}

		if err := s.repo.CreateAdjustments(ctx, adjs); err != nil {
			return fmt.Errorf("create adjustments: %w", err)
		}

		stock, err := s.repo.GetStock(ctx, in.VariantID)
		if err != nil {
			return fmt.Errorf("derive stock: %w", err)
		}
		newStock = stock

		for i := range adjs {
			events = append(events, AuditEvent{
				Action:     AuditActionCreate,
				ActorID:    in.ActorID,
				EntityType: EntityTypeAdjustment,
				EntityID:   adjs[i].ID,
				After:      adjustmentAuditData(&adjs[i]),
			})
		}
		events = append(events, MovementEvent{
			VariantID:     in.VariantID,
			Category:      movementCategory(in.NewReason),
			Quantity:      in.Quantity,
			ReferenceType: derefStr(in.NewReferenceType),
			ReferenceID:   refIDString(in.NewReferenceID),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.dispatcher.Dispatch(ctx, events)

	logger.Info(ctx, "stock restored",
		"variant_id", in.VariantID,
		"quantity", in.Quantity,
		"original_reference_type", in.OriginalReferenceType,
		"original_reference_id", in.OriginalReferenceID,
		"new_stock", newStock,
	)

	return in.Quantity, nil
}

// --- Read operations (no transaction) ---

// GetStock derives current stock for a variant.
func (s *Service) GetStock(ctx context.Context, variantID id.ID) (int64, error) {
	return s.repo.GetStock(ctx, variantID)
}

// GetStockBatch derives stock for many variants in one query.
func (s *Service) GetStockBatch(ctx context.Context, variantIDs []id.ID) (map[id.ID]int64, error) {
	if len(variantIDs) == 0 {
		return map[id.ID]int64{}, nil
	}
	return s.repo.GetStockBatch(ctx, variantIDs)
}

// GetLots returns a variant's lots with per-lot remaining quantity,
// oldest first.
func (s *Service) GetLots(ctx context.Context, variantID id.ID) ([]LotStock, error) {
	return s.repo.GetLots(ctx, variantID)
}

// GetAdjustments returns adjustment history, newest first.
func (s *Service) GetAdjustments(ctx context.Context, variantID id.ID, filter AdjustmentFilter) ([]Adjustment, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}
	return s.repo.GetAdjustments(ctx, variantID, filter)
}

// --- helpers ---

func movementCategory(r Reason) MovementCategory {
	switch r {
	case ReasonSale:
		return MovementSale
	case ReasonReturn:
		return MovementReturn
	default:
		return MovementAdjustment
	}
}

func lotAuditData(l *Lot) map[string]any {
	data := map[string]any{
		"variant_id": l.VariantID.String(),
		"quantity":   l.Quantity,
		"unit_cost":  l.UnitCost.String(),
	}
	if l.BatchNumber != nil {
		data["batch_number"] = *l.BatchNumber
	}
	if l.ExpiryDate != nil {
		data["expiry_date"] = l.ExpiryDate.Format(time.RFC3339)
	}
	if l.PurchaseOrderLineID != nil {
		data["purchase_order_line_id"] = l.PurchaseOrderLineID.String()
	}
	return data
}

func adjustmentAuditData(a *Adjustment) map[string]any {
	data := map[string]any{
		"variant_id":      a.VariantID.String(),
		"quantity_change": a.QuantityChange,
		"reason":          string(a.Reason),
	}
	if a.LotID != nil {
		data["lot_id"] = a.LotID.String()
	}
	if a.ReferenceType != nil {
		data["reference_type"] = *a.ReferenceType
	}
	if a.ReferenceID != nil {
		data["reference_id"] = a.ReferenceID.String()
	}
	return data
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func refIDString(ref *id.ID) string {
	if ref == nil {
		return ""
	}
	return ref.String()
}

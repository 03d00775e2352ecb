// Package ledger implements the inventory ledger engine: append-only lots and
// adjustments, with current stock always derived and never stored.
package ledger

import (
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Reason classifies why an adjustment exists. Closed enum: values outside
// this set are rejected before any write.
type Reason string

const (
	ReasonSale                Reason = "sale"
	ReasonReturn              Reason = "return"
	ReasonReceiptConfirmation Reason = "receipt-confirmation"
	ReasonSpoilage            Reason = "spoilage"
	ReasonDamage              Reason = "damage"
	ReasonTheft               Reason = "theft"
	ReasonCorrection          Reason = "correction"
)

// Valid reports whether the reason belongs to the closed enum.
func (r Reason) Valid() bool {
	switch r {
	case ReasonSale, ReasonReturn, ReasonReceiptConfirmation,
		ReasonSpoilage, ReasonDamage, ReasonTheft, ReasonCorrection:
		return true
	}
	return false
}

// Reference types pointing back at external business events.
const (
	RefTypeSaleLine          = "sale-line"
	RefTypeReturn            = "return"
	RefTypeManualAdjustment  = "manual-adjustment"
	RefTypePurchaseOrderLine = "purchase-order-line"
)

// Entity type names used in audit events.
const (
	EntityTypeLot        = "lot"
	EntityTypeAdjustment = "adjustment"
)

// Lot represents one batch of stock received at a point in time.
// Quantity and UnitCost are immutable after creation; consumption against a
// lot is expressed only through adjustments, never by mutating the lot.
type Lot struct {
	ID        id.ID `db:"id" json:"id"`
	VariantID id.ID `db:"variant_id" json:"variantId"`

	// Quantity received. Always > 0, never changes.
	Quantity int64 `db:"quantity" json:"quantity"`

	// UnitCost at time of receipt. Used for valuation, not pricing.
	UnitCost types.Money `db:"unit_cost" json:"unitCost"`

	BatchNumber     *string    `db:"batch_number" json:"batchNumber,omitempty"`
	ManufactureDate *time.Time `db:"manufacture_date" json:"manufactureDate,omitempty"`
	ExpiryDate      *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`

	// PurchaseOrderLineID links back to the purchasing event, if any.
	PurchaseOrderLineID *id.ID `db:"purchase_order_line_id" json:"purchaseOrderLineId,omitempty"`

	// CreatedAt is the FIFO ordering key.
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Validate checks lot invariants at creation time.
func (l *Lot) Validate() error {
	if id.IsNil(l.VariantID) {
		return apperror.NewValidation("variant_id is required")
	}
	if l.Quantity <= 0 {
		return apperror.NewValidation("lot quantity must be positive")
	}
	if l.UnitCost.IsNegative() {
		return apperror.NewValidation("unit cost must not be negative")
	}
	return nil
}

// Adjustment represents one signed stock movement. Append-only: a correction
// is a new opposite-signed row, never an edit of a prior one.
type Adjustment struct {
	ID        id.ID `db:"id" json:"id"`
	VariantID id.ID `db:"variant_id" json:"variantId"`

	// LotID is nil for headless adjustments (movements not attributable
	// to a specific lot, e.g. a shortfall after lots are exhausted).
	LotID *id.ID `db:"lot_id" json:"lotId,omitempty"`

	// QuantityChange is signed: positive = increase, negative = decrease.
	QuantityChange int64 `db:"quantity_change" json:"quantityChange"`

	Reason Reason `db:"reason" json:"reason"`

	// ReferenceType/ReferenceID identify the external business event that
	// caused the movement (a sale line, a return, a purchase-order line).
	ReferenceType *string `db:"reference_type" json:"referenceType,omitempty"`
	ReferenceID   *id.ID  `db:"reference_id" json:"referenceId,omitempty"`

	ActorID   string    `db:"actor_id" json:"actorId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// CountsTowardStock reports whether the adjustment participates in the
// derived-stock sum. Receipt-confirmation rows exist for audit visibility of
// the receipt event only; the received units are already counted through the
// lot's quantity, so including them would double-count.
func (a *Adjustment) CountsTowardStock() bool {
	return a.Reason != ReasonReceiptConfirmation
}

// LotStock pairs a lot with its remaining (unconsumed) quantity:
// lot.quantity plus the sum of lot-scoped adjustments that count toward stock.
type LotStock struct {
	Lot
	Remaining int64 `db:"remaining" json:"remaining"`
}

// newAdjustment builds an adjustment row with a fresh time-ordered id.
func newAdjustment(variantID id.ID, lotID *id.ID, change int64, reason Reason, refType *string, refID *id.ID, actorID string, at time.Time) Adjustment {
	return Adjustment{
		ID:             id.New(),
		VariantID:      variantID,
		LotID:          lotID,
		QuantityChange: change,
		Reason:         reason,
		ReferenceType:  refType,
		ReferenceID:    refID,
		ActorID:        actorID,
		CreatedAt:      at,
	}
}

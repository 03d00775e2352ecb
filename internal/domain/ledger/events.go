package ledger

import (
	"context"

	"stockledger/internal/core/id"
	"stockledger/pkg/logger"
)

// MovementCategory classifies a movement-history entry.
type MovementCategory string

const (
	MovementPurchase   MovementCategory = "purchase"
	MovementSale       MovementCategory = "sale"
	MovementReturn     MovementCategory = "return"
	MovementAdjustment MovementCategory = "adjustment"
)

// Event is a side-effect notification accumulated during a ledger write and
// dispatched strictly after the storage transaction commits.
type Event interface {
	eventKind() string
}

// MovementEvent summarizes one logical stock movement for the history feed.
// A multi-lot FIFO deduction produces a single event, not one per row.
type MovementEvent struct {
	VariantID     id.ID
	Category      MovementCategory
	Quantity      int64 // signed: the net stock change of the operation
	ReferenceType string
	ReferenceID   string
}

func (MovementEvent) eventKind() string { return "movement" }

// AuditAction represents the type of audited operation.
type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
)

// AuditEvent records who did what to which ledger entity.
type AuditEvent struct {
	Action     AuditAction
	ActorID    string
	EntityType string // "lot" or "adjustment"
	EntityID   id.ID
	Before     map[string]any
	After      map[string]any
}

func (AuditEvent) eventKind() string { return "audit" }

// MovementSink receives movement-history notifications.
// Implemented by the movement-history module; treated as fire-and-forget.
type MovementSink interface {
	RecordMovement(ctx context.Context, ev MovementEvent) error
}

// AuditSink receives audit-trail notifications.
type AuditSink interface {
	RecordCreate(ctx context.Context, actorID, entityType string, entityID id.ID, after map[string]any) error
	RecordUpdate(ctx context.Context, actorID, entityType string, entityID id.ID, before, after map[string]any) error
	RecordDelete(ctx context.Context, actorID, entityType string, entityID id.ID, before map[string]any) error
}

// Dispatcher drains accumulated events into the sinks after commit.
// Sink failures are logged and swallowed: notifications are best-effort,
// the committed ledger write is authoritative.
type Dispatcher struct {
	movements MovementSink
	audit     AuditSink
}

// NewDispatcher creates a dispatcher. Either sink may be nil, in which case
// events of that kind are dropped.
func NewDispatcher(movements MovementSink, audit AuditSink) *Dispatcher {
	return &Dispatcher{movements: movements, audit: audit}
}

// Dispatch delivers events in order. Never returns an error.
func (d *Dispatcher) Dispatch(ctx context.Context, events []Event) {
	for _, ev := range events {
		switch e := ev.(type) {
		case MovementEvent:
			if d.movements == nil {
				continue
			}
			if err := d.movements.RecordMovement(ctx, e); err != nil {
				logger.Error(ctx, "movement notification failed",
					"variant_id", e.VariantID,
					"category", e.Category,
					"error", err,
				)
			}
		case AuditEvent:
			if d.audit == nil {
				continue
			}
			var err error
			switch e.Action {
			case AuditActionCreate:
				err = d.audit.RecordCreate(ctx, e.ActorID, e.EntityType, e.EntityID, e.After)
			case AuditActionUpdate:
				err = d.audit.RecordUpdate(ctx, e.ActorID, e.EntityType, e.EntityID, e.Before, e.After)
			case AuditActionDelete:
				err = d.audit.RecordDelete(ctx, e.ActorID, e.EntityType, e.EntityID, e.Before)
			}
			if err != nil {
				logger.Error(ctx, "audit notification failed",
					"entity_type", e.EntityType,
					"entity_id", e.EntityID,
					"action", e.Action,
					"error", err,
				)
			}
		}
	}
}

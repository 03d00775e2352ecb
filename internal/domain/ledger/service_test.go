package ledger

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// memoryRepo is an in-memory Repository for service tests. Stock is derived
// by folding over the stored slices, mirroring the SQL aggregation.
type memoryRepo struct {
	variants map[id.ID]bool
	lots     []Lot
	adjs     []Adjustment

	// failOnAdjustmentInsert makes the nth adjustment insert (1-based,
	// counted across the repo's lifetime) return an error.
	failOnAdjustmentInsert int
	adjustmentInserts      int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{variants: make(map[id.ID]bool)}
}

func (r *memoryRepo) CreateLot(_ context.Context, lot *Lot) error {
	r.lots = append(r.lots, *lot)
	return nil
}

func (r *memoryRepo) CreateAdjustment(_ context.Context, adj *Adjustment) error {
	r.adjustmentInserts++
	if r.failOnAdjustmentInsert > 0 && r.adjustmentInserts >= r.failOnAdjustmentInsert {
		return fmt.Errorf("injected storage failure")
	}
	r.adjs = append(r.adjs, *adj)
	return nil
}

func (r *memoryRepo) CreateAdjustments(ctx context.Context, adjs []Adjustment) error {
	for i := range adjs {
		if err := r.CreateAdjustment(ctx, &adjs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *memoryRepo) LockVariant(_ context.Context, variantID id.ID) error {
	if !r.variants[variantID] {
		return apperror.NewNotFound("variant", variantID.String())
	}
	return nil
}

func (r *memoryRepo) GetStock(_ context.Context, variantID id.ID) (int64, error) {
	var stock int64
	for _, l := range r.lots {
		if l.VariantID == variantID {
			stock += l.Quantity
		}
	}
	for _, a := range r.adjs {
		if a.VariantID == variantID && a.CountsTowardStock() {
			stock += a.QuantityChange
		}
	}
	return stock, nil
}

func (r *memoryRepo) GetStockBatch(ctx context.Context, variantIDs []id.ID) (map[id.ID]int64, error) {
	out := make(map[id.ID]int64, len(variantIDs))
	for _, v := range variantIDs {
		stock, err := r.GetStock(ctx, v)
		if err != nil {
			return nil, err
		}
		out[v] = stock
	}
	return out, nil
}

func (r *memoryRepo) GetLot(_ context.Context, lotID id.ID) (Lot, error) {
	for _, l := range r.lots {
		if l.ID == lotID {
			return l, nil
		}
	}
	return Lot{}, apperror.NewNotFound("lot", lotID.String())
}

func (r *memoryRepo) remaining(lot *Lot) int64 {
	rem := lot.Quantity
	for _, a := range r.adjs {
		if a.LotID != nil && *a.LotID == lot.ID && a.CountsTowardStock() {
			rem += a.QuantityChange
		}
	}
	return rem
}

func (r *memoryRepo) GetLots(_ context.Context, variantID id.ID) ([]LotStock, error) {
	var out []LotStock
	for i := range r.lots {
		if r.lots[i].VariantID != variantID {
			continue
		}
		out = append(out, LotStock{Lot: r.lots[i], Remaining: r.remaining(&r.lots[i])})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *memoryRepo) GetOpenLots(ctx context.Context, variantID id.ID) ([]LotStock, error) {
	all, err := r.GetLots(ctx, variantID)
	if err != nil {
		return nil, err
	}
	open := all[:0]
	for _, ls := range all {
		if ls.Remaining > 0 {
			open = append(open, ls)
		}
	}
	return open, nil
}

func (r *memoryRepo) GetAdjustments(_ context.Context, variantID id.ID, filter AdjustmentFilter) ([]Adjustment, error) {
	var out []Adjustment
	for _, a := range r.adjs {
		if a.VariantID != variantID {
			continue
		}
		if filter.LotID != nil && (a.LotID == nil || *a.LotID != *filter.LotID) {
			continue
		}
		if filter.Reason != nil && a.Reason != *filter.Reason {
			continue
		}
		out = append(out, a)
	}
	sortNewestFirst(out)
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryRepo) GetAdjustmentsByReference(_ context.Context, variantID id.ID, refType string, refID id.ID) ([]Adjustment, error) {
	var out []Adjustment
	for _, a := range r.adjs {
		if a.VariantID != variantID || a.ReferenceType == nil || a.ReferenceID == nil {
			continue
		}
		if *a.ReferenceType == refType && *a.ReferenceID == refID {
			out = append(out, a)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// sortNewestFirst orders by created_at descending with the time-ordered id
// as tiebreaker, matching the postgres repository's ordering.
func sortNewestFirst(adjs []Adjustment) {
	sort.Slice(adjs, func(i, j int) bool {
		if !adjs[i].CreatedAt.Equal(adjs[j].CreatedAt) {
			return adjs[i].CreatedAt.After(adjs[j].CreatedAt)
		}
		return adjs[i].ID.String() > adjs[j].ID.String()
	})
}

// memoryTxManager snapshots repo state before fn and restores it when fn
// fails, giving the same all-or-nothing behavior as a database rollback.
type memoryTxManager struct {
	repo *memoryRepo
}

func (m *memoryTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	lots := slices.Clone(m.repo.lots)
	adjs := slices.Clone(m.repo.adjs)
	if err := fn(ctx); err != nil {
		m.repo.lots = lots
		m.repo.adjs = adjs
		return err
	}
	return nil
}

// captureSinks records dispatched notifications, optionally failing.
type captureSinks struct {
	movements []MovementEvent
	audits    []AuditEvent
	fail      bool
}

func (c *captureSinks) RecordMovement(_ context.Context, ev MovementEvent) error {
	if c.fail {
		return fmt.Errorf("movement sink down")
	}
	c.movements = append(c.movements, ev)
	return nil
}

func (c *captureSinks) RecordCreate(_ context.Context, actorID, entityType string, entityID id.ID, after map[string]any) error {
	if c.fail {
		return fmt.Errorf("audit sink down")
	}
	c.audits = append(c.audits, AuditEvent{
		Action: AuditActionCreate, ActorID: actorID,
		EntityType: entityType, EntityID: entityID, After: after,
	})
	return nil
}

func (c *captureSinks) RecordUpdate(_ context.Context, actorID, entityType string, entityID id.ID, before, after map[string]any) error {
	return nil
}

func (c *captureSinks) RecordDelete(_ context.Context, actorID, entityType string, entityID id.ID, before map[string]any) error {
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *captureSinks, id.ID) {
	t.Helper()
	repo := newMemoryRepo()
	sinks := &captureSinks{}
	svc := NewService(repo, &memoryTxManager{repo: repo}, NewDispatcher(sinks, sinks))
	variant := id.New()
	repo.variants[variant] = true
	return svc, repo, sinks, variant
}

func receive(t *testing.T, svc *Service, variant id.ID, qty int64) ReceiveResult {
	t.Helper()
	res, err := svc.Receive(context.Background(), ReceiveInput{
		VariantID: variant,
		Quantity:  qty,
		UnitCost:  types.MustMoney("2.50"),
		ActorID:   "tester",
	})
	require.NoError(t, err)
	return res
}

func TestReceive_NoDoubleCounting(t *testing.T) {
	svc, repo, sinks, variant := newTestService(t)
	ctx := context.Background()

	res := receive(t, svc, variant, 10)
	require.False(t, id.IsNil(res.LotID))
	assert.Equal(t, int64(10), res.NewStock)

	stock, err := svc.GetStock(ctx, variant)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stock, "receipt confirmation must not add a second 10")

	// The paired confirmation row exists for audit visibility.
	require.Len(t, repo.adjs, 1)
	conf := repo.adjs[0]
	assert.Equal(t, ReasonReceiptConfirmation, conf.Reason)
	assert.Equal(t, int64(10), conf.QuantityChange)
	require.NotNil(t, conf.LotID)
	assert.Equal(t, res.LotID, *conf.LotID)

	// Purchase movement plus lot-create audit were dispatched post-commit.
	require.Len(t, sinks.movements, 1)
	assert.Equal(t, MovementPurchase, sinks.movements[0].Category)
	assert.Equal(t, int64(10), sinks.movements[0].Quantity)
	require.Len(t, sinks.audits, 1)
	assert.Equal(t, EntityTypeLot, sinks.audits[0].EntityType)
}

func TestReceive_Validation(t *testing.T) {
	svc, repo, _, variant := newTestService(t)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{VariantID: variant, Quantity: 0, UnitCost: types.Zero(), ActorID: "tester"})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)

	_, err = svc.Receive(ctx, ReceiveInput{VariantID: variant, Quantity: 5, UnitCost: types.Zero()})
	require.Error(t, err)

	assert.Empty(t, repo.lots, "failed validation must not write")
	assert.Empty(t, repo.adjs)
}

func TestReceive_UnknownVariant(t *testing.T) {
	svc, repo, _, _ := newTestService(t)

	_, err := svc.Receive(context.Background(), ReceiveInput{
		VariantID: id.New(), Quantity: 5, UnitCost: types.Zero(), ActorID: "tester",
	})
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
	assert.Empty(t, repo.lots)
}

func TestConservation(t *testing.T) {
	svc, _, _, variant := newTestService(t)
	ctx := context.Background()

	receive(t, svc, variant, 10)
	receive(t, svc, variant, 5)

	deducted, err := svc.Deduct(ctx, DeductInput{
		VariantID: variant, Quantity: 7, Reason: ReasonSale, ActorID: "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), deducted)

	_, err = svc.Adjust(ctx, AdjustInput{
		VariantID: variant, QuantityChange: 3, Reason: ReasonCorrection, ActorID: "tester",
	})
	require.NoError(t, err)

	res, err := svc.Adjust(ctx, AdjustInput{
		VariantID: variant, QuantityChange: -2, Reason: ReasonDamage, ActorID: "tester",
	})
	require.NoError(t, err)

	// 10 + 5 - 7 + 3 - 2
	assert.Equal(t, int64(9), res.NewStock)
	stock, err := svc.GetStock(ctx, variant)
	require.NoError(t, err)
	assert.Equal(t, int64(9), stock)
}

func TestDeduct_FIFOOrder(t *testing.T) {
	svc, repo, _, variant := newTestService(t)
	ctx := context.Background()

	first := receive(t, svc, variant, 5)
	second := receive(t, svc, variant, 5)

	deducted, err := svc.Deduct(ctx, DeductInput{
		VariantID: variant, Quantity: 7, Reason: ReasonSale, ActorID: "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), deducted)

	lots, err := svc.GetLots(ctx, variant)
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, first.LotID, lots[0].ID)
	assert.Equal(t, int64(0), lots[0].Remaining, "oldest lot fully exhausted")
	assert.Equal(t, second.LotID, lots[1].ID)
	assert.Equal(t, int64(3), lots[1].Remaining)

	// One negative row per touched lot, never collapsed.
	var rows []Adjustment
	for _, a := range repo.adjs {
		if a.Reason == ReasonSale {
			rows = append(rows, a)
		}
	}
	require.Len(t, rows, 2)
	assert.Equal(t, int64(-5), rows[0].QuantityChange)
	assert.Equal(t, first.LotID, *rows[0].LotID)
	assert.Equal(t, int64(-2), rows[1].QuantityChange)
	assert.Equal(t, second.LotID, *rows[1].LotID)
}

func TestDeduct_HeadlessShortfall(t *testing.T) {
	svc, repo, sinks, variant := newTestService(t)
	ctx := context.Background()

	receive(t, svc, variant, 7)

	deducted, err := svc.Deduct(ctx, DeductInput{
		VariantID: variant, Quantity: 100, Reason: ReasonSale, ActorID: "tester",
	})
	require.NoError(t, err, "shortfall must not fail the deduction")
	assert.Equal(t, int64(100), deducted)

	stock, err := svc.GetStock(ctx, variant)
	require.NoError(t, err)
	assert.Equal(t, int64(-93), stock)

	var headless []Adjustment
	for _, a := range repo.adjs {
		if a.LotID == nil {
			headless = append(headless, a)
		}
	}
	require.Len(t, headless, 1)
	assert.Equal(t, int64(-93), headless[0].QuantityChange)

	// Still one movement event for the whole logical decrease.
	require.Len(t, sinks.movements, 2) // purchase + sale
	assert.Equal(t, MovementSale, sinks.movements[1].Category)
	assert.Equal(t, int64(-100), sinks.movements[1].Quantity)
}

func TestAdjust_InsufficientStockPrecheck(t *testing.T) {
	svc, repo, _, variant := newTestService(t)
	ctx := context.Background()

	receive(t, svc, variant, 3)
	before := len(repo.adjs)

	_, err := svc.Adjust(ctx, AdjustInput{
		VariantID: variant, QuantityChange: -5, Reason: ReasonDamage, ActorID: "tester",
	})
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, int64(3), appErr.Details["available"])
	assert.Equal(t, int64(5), appErr.Details["requested"])

	assert.Len(t, repo.adjs, before, "pre-check failure must create zero rows")
}

func TestAdjust_LotScoped(t *testing.T) {
	svc, _, _, variant := newTestService(t)
	ctx := context.Background()

	res := receive(t, svc, variant, 10)

	adjRes, err := svc.Adjust(ctx, AdjustInput{
		VariantID: variant, LotID: &res.LotID, QuantityChange: -4,
		Reason: ReasonSpoilage, ActorID: "tester",
	})
	require.NoError(t, err)
	assert.False(t, id.IsNil(adjRes.AdjustmentID), "single-row adjust returns a real id")
	assert.Equal(t, int64(6), adjRes.NewStock)

	lots, err := svc.GetLots(ctx, variant)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, int64(6), lots[0].Remaining)
}

func TestAdjust_DelegatesToFIFO(t *testing.T) {
	svc, repo, _, variant := newTestService(t)
	ctx := context.Background()

	receive(t, svc, variant, 5)
	receive(t, svc, variant, 5)

	res, err := svc.Adjust(ctx, AdjustInput{
		VariantID: variant, QuantityChange: -7, Reason: ReasonSale, ActorID: "tester",
	})
	require.NoError(t, err)
	assert.True(t, id.IsNil(res.AdjustmentID), "multi-row deduction returns synthetic id 0")
	assert.Equal(t, int64(3), res.NewStock)

	var saleRows int
	for _, a := range repo.adjs {
		if a.Reason == ReasonSale {
			saleRows++
		}
	}
	assert.Equal(t, 2, saleRows)
}

func TestAdjust_Validation(t *testing.T) {
	svc, repo, _, variant := newTestService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, AdjustInput{
		VariantID: variant, QuantityChange: 1, Reason: "shrinkage", ActorID: "tester",
	})
	require.Error(t, err)
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, apperror.CodeUnknownReason, appErr.Code)

	_, err = svc.Adjust(ctx, AdjustInput{
		VariantID: variant, QuantityChange: 0, Reason: ReasonCorrection, ActorID: "tester",
	})
	require.Error(t, err)

	_, err = svc.Adjust(ctx, AdjustInput{
		VariantID: variant, QuantityChange: 1, Reason: ReasonReceiptConfirmation, ActorID: "tester",
	})
	require.Error(t, err, "receipt-confirmation is reserved for Receive")

	assert.Empty(t, repo.adjs, "rejected requests never touch storage")
}

func TestRestore_ReversesLIFO(t *testing.T) {
	svc, repo, _, variant := newTestService(t)
	ctx := context.Background()

	first := receive(t, svc, variant, 3)
	second := receive(t, svc, variant, 4)

	saleRef := id.New()
	refType := RefTypeSaleLine
	_, err := svc.Deduct(ctx, DeductInput{
		VariantID: variant, Quantity: 3, Reason: ReasonSale,
		ReferenceType: &refType, ReferenceID: &saleRef, ActorID: "tester",
	})
	require.NoError(t, err)
	_, err = svc.Deduct(ctx, DeductInput{
		VariantID: variant, Quantity: 4, Reason: ReasonSale,
		ReferenceType: &refType, ReferenceID: &saleRef, ActorID: "tester",
	})
	require.NoError(t, err)

	restored, err := svc.Restore(ctx, RestoreInput{
		VariantID:             variant,
		OriginalReferenceType: refType,
		OriginalReferenceID:   saleRef,
		Quantity:              5,
		NewReason:             ReasonReturn,
		ActorID:               "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), restored)

	// Newest deduction reversed first: 4 back onto the second lot, then
	// 1 onto the first.
	var returns []Adjustment
	for _, a := range repo.adjs {
		if a.Reason == ReasonReturn {
			returns = append(returns, a)
		}
	}
	require.Len(t, returns, 2)
	assert.Equal(t, int64(4), returns[0].QuantityChange)
	assert.Equal(t, second.LotID, *returns[0].LotID)
	assert.Equal(t, int64(1), returns[1].QuantityChange)
	assert.Equal(t, first.LotID, *returns[1].LotID)

	lots, err := svc.GetLots(ctx, variant)
	require.NoError(t, err)
	assert.Equal(t, int64(1), lots[0].Remaining)
	assert.Equal(t, int64(4), lots[1].Remaining)

	stock, err := svc.GetStock(ctx, variant)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stock)
}

func TestRestore_HeadlessRemainder(t *testing.T) {
	svc, repo, _, variant := newTestService(t)
	ctx := context.Background()

	receive(t, svc, variant, 10)

	saleRef := id.New()
	refType := RefTypeSaleLine
	_, err := svc.Deduct(ctx, DeductInput{
		VariantID: variant, Quantity: 2, Reason: ReasonSale,
		ReferenceType: &refType, ReferenceID: &saleRef, ActorID: "tester",
	})
	require.NoError(t, err)

	restored, err := svc.Restore(ctx, RestoreInput{
		VariantID:             variant,
		OriginalReferenceType: refType,
		OriginalReferenceID:   saleRef,
		Quantity:              6,
		NewReason:             ReasonReturn,
		ActorID:               "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), restored)

	var headless []Adjustment
	for _, a := range repo.adjs {
		if a.LotID == nil && a.Reason == ReasonReturn {
			headless = append(headless, a)
		}
	}
	require.Len(t, headless, 1)
	assert.Equal(t, int64(4), headless[0].QuantityChange)

	stock, err := svc.GetStock(ctx, variant)
	require.NoError(t, err)
	assert.Equal(t, int64(14), stock)
}

func TestNoOps(t *testing.T) {
	svc, repo, _, variant := newTestService(t)
	ctx := context.Background()

	receive(t, svc, variant, 5)
	before := len(repo.adjs)

	for _, qty := range []int64{0, -3} {
		deducted, err := svc.Deduct(ctx, DeductInput{
			VariantID: variant, Quantity: qty, Reason: ReasonSale, ActorID: "tester",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(0), deducted)
	}

	restored, err := svc.Restore(ctx, RestoreInput{
		VariantID:             variant,
		OriginalReferenceType: RefTypeSaleLine,
		OriginalReferenceID:   id.New(),
		Quantity:              0,
		NewReason:             ReasonReturn,
		ActorID:               "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), restored)

	assert.Len(t, repo.adjs, before, "no-ops never write rows")
}

func TestDeduct_AtomicUnderFailure(t *testing.T) {
	svc, repo, _, variant := newTestService(t)
	ctx := context.Background()

	receive(t, svc, variant, 5)
	receive(t, svc, variant, 5)

	stockBefore, err := svc.GetStock(ctx, variant)
	require.NoError(t, err)
	rowsBefore := len(repo.adjs)

	// Fail on the second row of the multi-lot walk.
	repo.failOnAdjustmentInsert = repo.adjustmentInserts + 2

	_, err = svc.Deduct(ctx, DeductInput{
		VariantID: variant, Quantity: 8, Reason: ReasonSale, ActorID: "tester",
	})
	require.Error(t, err)

	repo.failOnAdjustmentInsert = 0
	stockAfter, err := svc.GetStock(ctx, variant)
	require.NoError(t, err)
	assert.Equal(t, stockBefore, stockAfter, "partial FIFO rows must not survive")
	assert.Len(t, repo.adjs, rowsBefore)
}

func TestDispatch_SinkFailureNotPropagated(t *testing.T) {
	svc, repo, sinks, variant := newTestService(t)
	ctx := context.Background()

	sinks.fail = true

	res, err := svc.Receive(ctx, ReceiveInput{
		VariantID: variant, Quantity: 5, UnitCost: types.Zero(), ActorID: "tester",
	})
	require.NoError(t, err, "notification failure must not fail the ledger write")
	assert.Equal(t, int64(5), res.NewStock)
	assert.Len(t, repo.lots, 1, "the mutation is authoritative")

	_, err = svc.Deduct(ctx, DeductInput{
		VariantID: variant, Quantity: 2, Reason: ReasonSale, ActorID: "tester",
	})
	require.NoError(t, err)
}

func TestGetAdjustments_Pagination(t *testing.T) {
	svc, _, _, variant := newTestService(t)
	ctx := context.Background()

	receive(t, svc, variant, 100)
	for i := 0; i < 4; i++ {
		_, err := svc.Deduct(ctx, DeductInput{
			VariantID: variant, Quantity: 1, Reason: ReasonSale, ActorID: "tester",
		})
		require.NoError(t, err)
	}

	page, err := svc.GetAdjustments(ctx, variant, AdjustmentFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)

	rest, err := svc.GetAdjustments(ctx, variant, AdjustmentFilter{Limit: 10, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, rest, 3) // 2 remaining sales + receipt confirmation

	reason := ReasonSale
	sales, err := svc.GetAdjustments(ctx, variant, AdjustmentFilter{Reason: &reason})
	require.NoError(t, err)
	assert.Len(t, sales, 4)
}

func TestGetStockBatch(t *testing.T) {
	svc, repo, _, variant := newTestService(t)
	ctx := context.Background()

	other := id.New()
	repo.variants[other] = true

	receive(t, svc, variant, 8)

	stocks, err := svc.GetStockBatch(ctx, []id.ID{variant, other})
	require.NoError(t, err)
	assert.Equal(t, int64(8), stocks[variant])
	assert.Equal(t, int64(0), stocks[other], "untracked variants derive to zero")

	empty, err := svc.GetStockBatch(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

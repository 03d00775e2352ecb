package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

func TestReasonValid(t *testing.T) {
	valid := []Reason{
		ReasonSale, ReasonReturn, ReasonReceiptConfirmation,
		ReasonSpoilage, ReasonDamage, ReasonTheft, ReasonCorrection,
	}
	for _, r := range valid {
		assert.True(t, r.Valid(), "reason %q should be valid", r)
	}

	assert.False(t, Reason("shrinkage").Valid())
	assert.False(t, Reason("").Valid())
	assert.False(t, Reason("SALE").Valid())
}

func TestCountsTowardStock(t *testing.T) {
	confirmation := Adjustment{Reason: ReasonReceiptConfirmation}
	assert.False(t, confirmation.CountsTowardStock())

	sale := Adjustment{Reason: ReasonSale}
	assert.True(t, sale.CountsTowardStock())

	correction := Adjustment{Reason: ReasonCorrection}
	assert.True(t, correction.CountsTowardStock())
}

func TestLotValidate(t *testing.T) {
	base := Lot{
		ID:        id.New(),
		VariantID: id.New(),
		Quantity:  10,
		UnitCost:  types.MustMoney("2.50"),
	}
	assert.NoError(t, base.Validate())

	noVariant := base
	noVariant.VariantID = id.Nil()
	assert.Error(t, noVariant.Validate())

	zeroQty := base
	zeroQty.Quantity = 0
	assert.Error(t, zeroQty.Validate())

	negQty := base
	negQty.Quantity = -1
	assert.Error(t, negQty.Validate())

	negCost := base
	negCost.UnitCost = types.MustMoney("-0.01")
	assert.Error(t, negCost.Validate())

	freeCost := base
	freeCost.UnitCost = types.Zero()
	assert.NoError(t, freeCost.Validate())
}

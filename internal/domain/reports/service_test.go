package reports

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

type stubRepo struct {
	lowStock   []LowStockItem
	expiring   []ExpiringLot
	stats      Stats
	lastFilter ExpiryFilter
}

func (s *stubRepo) GetLowStock(ctx context.Context) ([]LowStockItem, error) {
	return s.lowStock, nil
}

func (s *stubRepo) GetExpiringLots(ctx context.Context, filter ExpiryFilter) ([]ExpiringLot, error) {
	s.lastFilter = filter
	return s.expiring, nil
}

func (s *stubRepo) GetStats(ctx context.Context) (Stats, error) {
	return s.stats, nil
}

func TestGetExpiringLots_DefaultHorizon(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	_, err := svc.GetExpiringLots(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, defaultExpiryHorizonDays, repo.lastFilter.WithinDays)

	_, err = svc.GetExpiringLots(context.Background(), -5)
	require.NoError(t, err)
	assert.Equal(t, defaultExpiryHorizonDays, repo.lastFilter.WithinDays)
}

func TestGetExpiringLots_HorizonTooLarge(t *testing.T) {
	svc := NewService(&stubRepo{})

	_, err := svc.GetExpiringLots(context.Background(), 366)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestGetExpiringLots_PassesHorizonThrough(t *testing.T) {
	repo := &stubRepo{
		expiring: []ExpiringLot{{LotID: id.New(), VariantID: id.New(), Remaining: 3}},
	}
	svc := NewService(repo)

	lots, err := svc.GetExpiringLots(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, 90, repo.lastFilter.WithinDays)
	assert.Len(t, lots, 1)
}

func TestGetStats(t *testing.T) {
	repo := &stubRepo{
		stats: Stats{
			TotalLots:       4,
			UnitsOnHand:     120,
			InventoryValue:  types.MustMoney("360.00"),
			VariantsTracked: 2,
		},
	}
	svc := NewService(repo)

	stats, err := svc.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalLots)
	assert.True(t, stats.InventoryValue.Equal(types.MustMoney("360")))
}

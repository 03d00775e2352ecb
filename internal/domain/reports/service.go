package reports

import (
	"context"
	"fmt"

	"stockledger/internal/core/apperror"
)

const (
	defaultExpiryHorizonDays = 30
	maxExpiryHorizonDays     = 365
)

// Service provides ledger report operations.
type Service struct {
	repo Repository
}

// NewService creates a new reports service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetLowStock lists variants at or below their alert threshold.
func (s *Service) GetLowStock(ctx context.Context) ([]LowStockItem, error) {
	items, err := s.repo.GetLowStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("get low stock: %w", err)
	}
	return items, nil
}

// GetExpiringLots lists lots expiring within the horizon.
// A non-positive horizon defaults to 30 days.
func (s *Service) GetExpiringLots(ctx context.Context, withinDays int) ([]ExpiringLot, error) {
	if withinDays <= 0 {
		withinDays = defaultExpiryHorizonDays
	}
	if withinDays > maxExpiryHorizonDays {
		return nil, apperror.NewValidation(
			fmt.Sprintf("expiry horizon must not exceed %d days", maxExpiryHorizonDays))
	}

	lots, err := s.repo.GetExpiringLots(ctx, ExpiryFilter{
		WithinDays: withinDays,
		Limit:      1000,
	})
	if err != nil {
		return nil, fmt.Errorf("get expiring lots: %w", err)
	}
	return lots, nil
}

// GetStats returns global ledger totals.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("get stats: %w", err)
	}
	return stats, nil
}

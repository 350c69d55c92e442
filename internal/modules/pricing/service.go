// README: Pricing service quotes delivery fee and tax for a new order.
package pricing

import (
	"context"

	"quickbite/internal/types"
)

type TierSource interface {
	GetTiers(ctx context.Context) ([]FeeTier, error)
}

type Service struct {
	store TierSource
}

func NewService(store TierSource) *Service {
	return &Service{store: store}
}

// Quote returns the delivery fee for the given distance and the tax on the
// subtotal. Falls back to the built-in tier table when no rates are stored.
func (s *Service) Quote(ctx context.Context, distanceKm float64, subtotal types.Money) (fee, tax types.Money, err error) {
	tiers := defaultTiers
	if s.store != nil {
		if stored, serr := s.store.GetTiers(ctx); serr == nil && len(stored) > 0 {
			tiers = stored
		}
	}

	feePaise := tiers[len(tiers)-1].Fee
	for _, t := range tiers {
		if t.UptoKm > 0 && distanceKm <= t.UptoKm {
			feePaise = t.Fee
			break
		}
	}

	fee = types.Rupees(feePaise)
	tax = types.Rupees(subtotal.Amount * taxBasisPoints / 10000)
	return fee, tax, nil
}

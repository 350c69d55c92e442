// README: GeoMatcher computes the eligible candidate set for a pickup point and city label.
package matching

import (
	"context"

	"quickbite/internal/config"
	"quickbite/internal/geo"
	"quickbite/internal/types"
)

// GeoIndex answers proximity queries over online drivers.
type GeoIndex interface {
	NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error)
}

// DriverDirectory applies eligibility and city filtering to candidate ids.
type DriverDirectory interface {
	FilterEligible(ctx context.Context, ids []types.ID, cityToken string) ([]types.ID, error)
	EligibleInCity(ctx context.Context, cityToken string) ([]types.ID, error)
}

type Service struct {
	index   GeoIndex
	drivers DriverDirectory
	cfg     config.DispatchConfig

	broaden map[string]bool
}

func NewService(index GeoIndex, drivers DriverDirectory, cfg config.DispatchConfig) *Service {
	broaden := make(map[string]bool, len(cfg.BroadenCities))
	for _, c := range cfg.BroadenCities {
		broaden[geo.CanonicalCity(c)] = true
	}
	return &Service{index: index, drivers: drivers, cfg: cfg, broaden: broaden}
}

// FindCandidates returns the drivers an order offer should fan out to.
// The result carries no ranking: every candidate is notified simultaneously.
//
// Primary pass: eligible drivers within the proximity radius whose canonical
// city matches the merchant's (drivers without a city pass on proximity
// alone). Fallback pass: when the primary pass is empty, or the city sits in
// the configured broaden set, every eligible driver in the canonical city is
// merged in regardless of distance. An empty result is not an error; the
// order simply stays unassigned until a driver finds it via the available
// list.
func (s *Service) FindCandidates(ctx context.Context, pickup types.Point, merchantCity string) ([]types.ID, error) {
	token := geo.CanonicalCity(merchantCity)

	nearby, err := s.index.NearbyDrivers(ctx, pickup, s.cfg.RadiusKm)
	if err != nil {
		return nil, err
	}
	primary, err := s.drivers.FilterEligible(ctx, nearby, token)
	if err != nil {
		return nil, err
	}

	if len(primary) > 0 && !s.broaden[token] {
		return primary, nil
	}
	if token == "" {
		return primary, nil
	}

	cityWide, err := s.drivers.EligibleInCity(ctx, token)
	if err != nil {
		return nil, err
	}
	return mergeUnique(primary, cityWide), nil
}

func mergeUnique(a, b []types.ID) []types.ID {
	seen := make(map[types.ID]bool, len(a)+len(b))
	out := make([]types.ID, 0, len(a)+len(b))
	for _, set := range [][]types.ID{a, b} {
		for _, id := range set {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

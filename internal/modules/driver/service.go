// README: Driver service: presence, sessions, profile snapshots, earnings.
package driver

import (
	"context"
	"errors"
	"time"

	"quickbite/internal/geo"
	"quickbite/internal/modules/order"
	"quickbite/internal/types"
)

var ErrNotEligible = errors.New("driver not eligible")

// GeoIndex mirrors driver presence into the proximity index used by matching.
type GeoIndex interface {
	AddDriver(ctx context.Context, id types.ID, p types.Point) error
	RemoveDriver(ctx context.Context, id types.ID) error
}

type Service struct {
	store Store
	index GeoIndex
}

func NewService(store Store, index GeoIndex) *Service {
	return &Service{store: store, index: index}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return s.store.Get(ctx, id)
}

// GoOnline flips the online flag, opens a session interval, and registers the
// driver in the GEO index so proximity queries can see them.
func (s *Service) GoOnline(ctx context.Context, id types.ID, p types.Point) error {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if d.OpStatus != OpActive {
		return ErrNotEligible
	}
	if err := s.store.SetOnline(ctx, id, true); err != nil {
		return err
	}
	if !p.Zero() {
		_ = s.store.UpdateLocation(ctx, id, p)
	} else {
		// No fix from the device yet; fall back to the last stored position
		// rather than registering the driver at the GEO origin.
		p = d.Position
	}
	if !p.Zero() {
		if err := s.index.AddDriver(ctx, id, p); err != nil {
			return err
		}
	}
	if !d.Online {
		return s.store.OpenSession(ctx, id, time.Now())
	}
	return nil
}

func (s *Service) GoOffline(ctx context.Context, id types.ID) error {
	if err := s.store.SetOnline(ctx, id, false); err != nil {
		return err
	}
	if err := s.index.RemoveDriver(ctx, id); err != nil {
		return err
	}
	return s.store.CloseSession(ctx, id, time.Now())
}

func (s *Service) UpdateLocation(ctx context.Context, id types.ID, p types.Point) error {
	if err := s.store.UpdateLocation(ctx, id, p); err != nil {
		return err
	}
	return s.index.AddDriver(ctx, id, p)
}

func (s *Service) UpdateCity(ctx context.Context, id types.ID, city string) error {
	return s.store.UpdateCity(ctx, id, city, geo.CanonicalCity(city))
}

func (s *Service) UpdatePushToken(ctx context.Context, id types.ID, token string) error {
	return s.store.UpdatePushToken(ctx, id, token)
}

func (s *Service) OnlineHours(ctx context.Context, id types.ID, since time.Time) (float64, error) {
	return s.store.OnlineHours(ctx, id, since)
}

// Details satisfies order.DriverDirectory: the profile snapshot stored on the
// order at acceptance time.
func (s *Service) Details(ctx context.Context, id types.ID) (order.DriverDetails, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return order.DriverDetails{}, err
	}
	if !d.Eligible() {
		return order.DriverDetails{}, ErrNotEligible
	}
	return order.DriverDetails{Name: d.Name, Phone: d.Phone, Vehicle: d.Vehicle}, nil
}

// CreditEarnings satisfies order.DriverDirectory for the delivery credit.
func (s *Service) CreditEarnings(ctx context.Context, id types.ID, amount types.Money) error {
	return s.store.CreditEarnings(ctx, id, amount)
}

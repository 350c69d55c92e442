// README: DispatchCoordinator orchestrates matching, fanout, and the order lifecycle.
package dispatch

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"quickbite/internal/config"
	"quickbite/internal/geo"
	"quickbite/internal/modules/driver"
	"quickbite/internal/modules/order"
	"quickbite/internal/types"
)

// Matcher computes the candidate set for an offer fanout.
type Matcher interface {
	FindCandidates(ctx context.Context, pickup types.Point, merchantCity string) ([]types.ID, error)
}

// Broadcaster is the fanout surface the coordinator drives. All methods are
// side-effect only; the coordinator never fails an operation over them.
type Broadcaster interface {
	Offer(ctx context.Context, o *order.Order, candidates []types.ID, cityToken string)
	Taken(ctx context.Context, orderID, winner types.ID, notified []types.ID)
	Withdraw(ctx context.Context, orderID types.ID, reason string)
	StatusChanged(ctx context.Context, o *order.Order)
}

// Orders is the lifecycle surface the coordinator drives.
type Orders interface {
	Create(ctx context.Context, cmd order.CreateCommand) (*order.Order, error)
	Accept(ctx context.Context, cmd order.AcceptCommand) (*order.Order, error)
	Advance(ctx context.Context, cmd order.AdvanceCommand) (*order.Order, error)
	Cancel(ctx context.Context, cmd order.CancelCommand) (*order.Order, error)
	Get(ctx context.Context, id types.ID) (*order.Order, error)
	ListUnassignedSince(ctx context.Context, since time.Time) ([]*order.Order, error)
}

// DriverLookup resolves the requesting driver for the available-orders query.
type DriverLookup interface {
	Get(ctx context.Context, id types.ID) (*driver.Driver, error)
}

// DispatchRecorder keeps best-effort bookkeeping of who was offered what. The
// notified set drives targeted withdrawals after an accept; the dispatch time
// feeds the accept-latency log line.
type DispatchRecorder interface {
	RecordDispatch(ctx context.Context, orderID types.ID, driverIDs []types.ID) error
	NotifiedDrivers(ctx context.Context, orderID types.ID) ([]types.ID, error)
	GetDispatchedAt(ctx context.Context, orderID types.ID) (time.Time, bool, error)
}

// Geocoder resolves a free-text address into coordinates when the client did
// not supply them, and a point back to a city label when the merchant record
// carries none. Optional; a nil geocoder skips both.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (types.Point, error)
	ReverseCity(ctx context.Context, p types.Point) (string, error)
}

type Coordinator struct {
	orders   Orders
	matcher  Matcher
	fanout   Broadcaster
	drivers  DriverLookup
	recorder DispatchRecorder
	geocoder Geocoder
	cfg      config.DispatchConfig
	log      *logrus.Logger
}

type CoordinatorDeps struct {
	Orders   Orders
	Matcher  Matcher
	Fanout   Broadcaster
	Drivers  DriverLookup
	Recorder DispatchRecorder
	Geocoder Geocoder
	Config   config.DispatchConfig
	Log      *logrus.Logger
}

func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	return &Coordinator{
		orders:   deps.Orders,
		matcher:  deps.Matcher,
		fanout:   deps.Fanout,
		drivers:  deps.Drivers,
		recorder: deps.Recorder,
		geocoder: deps.Geocoder,
		cfg:      deps.Config,
		log:      deps.Log,
	}
}

// PlaceOrder creates the order and fans the offer out to candidates. Candidate
// computation and fanout are side effects of creation: their failure leaves a
// placed, unassigned order that drivers can still discover via ListAvailable.
func (c *Coordinator) PlaceOrder(ctx context.Context, cmd order.CreateCommand) (*order.Order, error) {
	if cmd.Address.Position.Zero() && cmd.Address.Line != "" && c.geocoder != nil {
		if p, err := c.geocoder.Geocode(ctx, cmd.Address.Line+", "+cmd.Address.City); err == nil {
			cmd.Address.Position = p
		} else {
			c.log.WithError(err).Warn("address geocoding failed")
		}
	}
	// A blank merchant city would leave the order without a city token and
	// cost it the city-wide fallback pass, so recover the label from the
	// pickup point when we can.
	if cmd.MerchantCity == "" && !cmd.Pickup.Zero() && c.geocoder != nil {
		if city, err := c.geocoder.ReverseCity(ctx, cmd.Pickup); err == nil {
			cmd.MerchantCity = city
		} else {
			c.log.WithError(err).WithField("merchant_id", cmd.MerchantID).Warn("merchant city reverse geocoding failed")
		}
	}

	o, err := c.orders.Create(ctx, cmd)
	if err != nil {
		return nil, err
	}

	candidates, err := c.matcher.FindCandidates(ctx, o.Pickup, o.MerchantCity)
	if err != nil {
		c.log.WithError(err).WithField("order_id", o.ID).Warn("candidate computation failed")
		candidates = nil
	}
	if len(candidates) == 0 {
		c.log.WithFields(logrus.Fields{
			"order_id": o.ID,
			"city":     o.CityToken,
		}).Info("no dispatch candidates; order stays unassigned")
	}

	c.fanout.Offer(ctx, o, candidates, o.CityToken)
	if c.recorder != nil && len(candidates) > 0 {
		if rerr := c.recorder.RecordDispatch(ctx, o.ID, candidates); rerr != nil {
			c.log.WithError(rerr).WithField("order_id", o.ID).Warn("dispatch record failed")
		}
	}
	return o, nil
}

// Accept forwards the atomic claim and, on success, withdraws the offer from
// every other driver's view. A lost race propagates unchanged so the handler
// can return the structured rejection.
func (c *Coordinator) Accept(ctx context.Context, orderID, driverID types.ID) (*order.Order, error) {
	o, err := c.orders.Accept(ctx, order.AcceptCommand{OrderID: orderID, DriverID: driverID})
	if err != nil {
		return nil, err
	}
	var notified []types.ID
	if c.recorder != nil {
		if ids, nerr := c.recorder.NotifiedDrivers(ctx, o.ID); nerr == nil {
			notified = ids
		}
		if at, ok, derr := c.recorder.GetDispatchedAt(ctx, o.ID); derr == nil && ok {
			c.log.WithFields(logrus.Fields{
				"order_id":  o.ID,
				"driver_id": driverID,
				"wait":      time.Since(at).String(),
			}).Info("order accepted")
		}
	}
	c.fanout.Taken(ctx, o.ID, driverID, notified)
	return o, nil
}

func (c *Coordinator) Cancel(ctx context.Context, orderID, customerID types.ID) (*order.Order, error) {
	o, err := c.orders.Cancel(ctx, order.CancelCommand{OrderID: orderID, CustomerID: customerID})
	if err != nil {
		return nil, err
	}
	c.fanout.Withdraw(ctx, o.ID, "cancelled")
	return o, nil
}

func (c *Coordinator) Advance(ctx context.Context, cmd order.AdvanceCommand) (*order.Order, error) {
	o, err := c.orders.Advance(ctx, cmd)
	if err != nil {
		return nil, err
	}
	c.fanout.StatusChanged(ctx, o)
	return o, nil
}

func (c *Coordinator) Get(ctx context.Context, id types.ID) (*order.Order, error) {
	return c.orders.Get(ctx, id)
}

// ListAvailable re-derives eligibility per request instead of replaying the
// original fanout: a driver who came online after the offer went out must
// still see it. An order qualifies when it is recent, unassigned, and either
// within the proximity radius of the driver or in the driver's canonical
// city.
func (c *Coordinator) ListAvailable(ctx context.Context, driverID types.ID) ([]*order.Order, error) {
	d, err := c.drivers.Get(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if !d.Eligible() {
		return nil, driver.ErrNotEligible
	}

	since := time.Now().Add(-c.cfg.AvailableWindow)
	orders, err := c.orders.ListUnassignedSince(ctx, since)
	if err != nil {
		return nil, err
	}

	out := make([]*order.Order, 0, len(orders))
	for _, o := range orders {
		if c.visibleTo(d, o) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (c *Coordinator) visibleTo(d *driver.Driver, o *order.Order) bool {
	if o.CityToken != "" && o.CityToken == d.CityToken {
		return true
	}
	if geo.DistanceKm(d.Position, o.Pickup) <= c.cfg.RadiusKm {
		// Proximity alone carries the order only when a city side is unknown
		// or the tokens agree; the token comparison above already handled
		// agreement.
		return o.CityToken == "" || d.CityToken == ""
	}
	return false
}

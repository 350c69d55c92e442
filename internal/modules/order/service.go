// README: Order service implements lifecycle transitions; accept is the correctness-critical path.
package order

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"quickbite/internal/geo"
	"quickbite/internal/types"
)

var (
	ErrNotFound     = errors.New("order not found")
	ErrInvalidState = errors.New("invalid state transition")
	ErrConflict     = errors.New("order state conflict")
	ErrForbidden    = errors.New("actor not allowed")
	ErrBadRequest   = errors.New("bad request")
)

// TakenError is the structured rejection for a lost accept race: the order is
// already assigned and Winner identifies who got it. Clients remove the order
// from their local lists on seeing it.
type TakenError struct {
	Winner types.ID
}

func (e *TakenError) Error() string {
	return fmt.Sprintf("order already taken by driver %s", e.Winner)
}

func (e *TakenError) Is(target error) bool {
	return target == ErrConflict
}

// Pricing quotes the delivery fee and tax at creation time.
type Pricing interface {
	Quote(ctx context.Context, distanceKm float64, subtotal types.Money) (fee, tax types.Money, err error)
}

// DriverDirectory supplies the profile snapshot taken at acceptance and the
// earnings credit applied on delivery.
type DriverDirectory interface {
	Details(ctx context.Context, id types.ID) (DriverDetails, error)
	CreditEarnings(ctx context.Context, id types.ID, amount types.Money) error
}

type Service struct {
	store   Store
	pricing Pricing
	drivers DriverDirectory
	log     *logrus.Logger
}

func NewService(store Store, pricing Pricing, drivers DriverDirectory, log *logrus.Logger) *Service {
	return &Service{store: store, pricing: pricing, drivers: drivers, log: log}
}

type CreateCommand struct {
	CustomerID    types.ID
	MerchantID    types.ID
	MerchantCity  string
	Pickup        types.Point
	Items         []Item
	Address       Address
	PaymentMethod string
}

type AcceptCommand struct {
	OrderID  types.ID
	DriverID types.ID
}

type AdvanceCommand struct {
	OrderID types.ID
	ActorID types.ID
	To      Status
}

type CancelCommand struct {
	OrderID    types.ID
	CustomerID types.ID
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if cmd.CustomerID == "" || cmd.MerchantID == "" || len(cmd.Items) == 0 {
		return nil, ErrBadRequest
	}
	for _, it := range cmd.Items {
		if it.Quantity <= 0 || it.UnitPrice.Amount < 0 {
			return nil, ErrBadRequest
		}
	}

	now := time.Now()
	o := &Order{
		ID:            newID(),
		CustomerID:    cmd.CustomerID,
		MerchantID:    cmd.MerchantID,
		MerchantCity:  cmd.MerchantCity,
		CityToken:     geo.CanonicalCity(cmd.MerchantCity),
		Pickup:        cmd.Pickup,
		Items:         cmd.Items,
		Bill:          s.computeBill(ctx, cmd),
		Address:       cmd.Address,
		PaymentMethod: cmd.PaymentMethod,
		PaymentStatus: "pending",
		Status:        StatusPlaced,
		CreatedAt:     now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}
	_ = s.store.AppendTimeline(ctx, o.ID, TimelineEntry{
		Status:      StatusPlaced,
		At:          now,
		Description: "Order placed",
	})
	return o, nil
}

// Accept resolves the accept race. Exactly one caller per order observes
// success; everyone else gets a TakenError naming the winner. The preliminary
// Get below is diagnostic only; the single atomic conditional update decides.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*Order, error) {
	if cmd.OrderID == "" || cmd.DriverID == "" {
		return nil, ErrBadRequest
	}

	details, err := s.drivers.Details(ctx, cmd.DriverID)
	if err != nil {
		return nil, err
	}

	ok, err := s.store.AcceptAtomic(ctx, cmd.OrderID, cmd.DriverID, details)
	if err != nil {
		// A storage failure here must surface as a definitive failure;
		// swallowing it would make the assignment ambiguous.
		return nil, err
	}
	if !ok {
		o, gerr := s.store.Get(ctx, cmd.OrderID)
		if gerr != nil {
			return nil, gerr
		}
		if o.DriverID != nil {
			return nil, &TakenError{Winner: *o.DriverID}
		}
		// Unassigned but not placed: cancelled before anyone accepted.
		return nil, ErrInvalidState
	}

	_ = s.store.AppendTimeline(ctx, cmd.OrderID, TimelineEntry{
		Status:      StatusConfirmed,
		At:          time.Now(),
		Description: fmt.Sprintf("Accepted by %s", details.Name),
	})
	return s.store.Get(ctx, cmd.OrderID)
}

// Advance moves the order along confirmed → preparing → out_for_delivery →
// delivered. The merchant may start preparation; every later step belongs to
// the assigned driver. Delivery credits the driver's earnings exactly once,
// guarded by the conditional status update having affected a row.
func (s *Service) Advance(ctx context.Context, cmd AdvanceCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, cmd.To) || cmd.To == StatusCancelled || cmd.To == StatusConfirmed {
		return nil, ErrInvalidState
	}
	if err := s.authorizeAdvance(o, cmd); err != nil {
		return nil, err
	}

	ok, err := s.store.UpdateStatus(ctx, o.ID, o.Status, cmd.To)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}

	now := time.Now()
	_ = s.store.AppendTimeline(ctx, o.ID, TimelineEntry{
		Status:      cmd.To,
		At:          now,
		Description: transitionDescription(cmd.To),
	})

	if cmd.To == StatusDelivered && o.DriverID != nil {
		if cerr := s.drivers.CreditEarnings(ctx, *o.DriverID, o.Bill.DeliveryFee); cerr != nil {
			// The delivery already stuck; failing here would strand the order
			// in a state no retry can reach. Ops reconciles the credit off the
			// timeline record.
			s.log.WithError(cerr).WithFields(logrus.Fields{
				"order_id":  o.ID,
				"driver_id": *o.DriverID,
				"amount":    o.Bill.DeliveryFee.Amount,
			}).Error("delivery credit failed")
		}
	}
	return s.store.Get(ctx, o.ID)
}

// Cancel is customer-only and placed-only. The conditional update keeps a
// racing accept from losing an already-granted assignment.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != cmd.CustomerID {
		return nil, ErrForbidden
	}
	if o.Status != StatusPlaced {
		return nil, ErrInvalidState
	}

	ok, err := s.store.UpdateStatus(ctx, o.ID, StatusPlaced, StatusCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}

	_ = s.store.AppendTimeline(ctx, o.ID, TimelineEntry{
		Status:      StatusCancelled,
		At:          time.Now(),
		Description: "Cancelled by customer",
	})
	return s.store.Get(ctx, o.ID)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Timeline(ctx context.Context, id types.ID) ([]TimelineEntry, error) {
	return s.store.Timeline(ctx, id)
}

func (s *Service) ListUnassignedSince(ctx context.Context, since time.Time) ([]*Order, error) {
	return s.store.ListUnassignedSince(ctx, since)
}

func (s *Service) authorizeAdvance(o *Order, cmd AdvanceCommand) error {
	assignedDriver := o.DriverID != nil && *o.DriverID == cmd.ActorID
	if cmd.To == StatusPreparing {
		if cmd.ActorID == o.MerchantID || assignedDriver {
			return nil
		}
		return ErrForbidden
	}
	if !assignedDriver {
		return ErrForbidden
	}
	return nil
}

func (s *Service) computeBill(ctx context.Context, cmd CreateCommand) Bill {
	var subtotal int64
	for _, it := range cmd.Items {
		subtotal += it.UnitPrice.Amount * int64(it.Quantity)
	}
	sub := types.Rupees(subtotal)

	fee, tax := types.Rupees(0), types.Rupees(0)
	if s.pricing != nil {
		dist := geo.DistanceKm(cmd.Pickup, cmd.Address.Position)
		if f, t, err := s.pricing.Quote(ctx, dist, sub); err == nil {
			fee, tax = f, t
		}
	}
	return Bill{
		Subtotal:    sub,
		DeliveryFee: fee,
		Tax:         tax,
		Total:       sub.Add(fee).Add(tax),
	}
}

func transitionDescription(to Status) string {
	switch to {
	case StatusPreparing:
		return "Restaurant is preparing the order"
	case StatusOutForDelivery:
		return "Out for delivery"
	case StatusDelivered:
		return "Delivered"
	default:
		return string(to)
	}
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}

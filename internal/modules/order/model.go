// README: Order aggregate, bill breakdown, and status definitions.
package order

import (
	"time"

	"quickbite/internal/types"
)

type Status string

const (
	StatusPlaced         Status = "placed"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// Item is a line-item snapshot taken at creation; menu edits after the order
// is placed must not change what the customer agreed to pay.
type Item struct {
	ProductID types.ID    `json:"product_id"`
	Name      string      `json:"name"`
	UnitPrice types.Money `json:"unit_price"`
	Quantity  int         `json:"quantity"`
}

// Bill is computed once at creation and never recomputed.
type Bill struct {
	Subtotal    types.Money `json:"subtotal"`
	DeliveryFee types.Money `json:"delivery_fee"`
	Tax         types.Money `json:"tax"`
	Total       types.Money `json:"total"`
}

// Address is the delivery destination snapshot.
type Address struct {
	Line     string      `json:"line"`
	City     string      `json:"city"`
	Position types.Point `json:"position"`
}

// DriverDetails is captured at acceptance time so the order keeps an accurate
// historical record even if the driver later edits their profile.
type DriverDetails struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Vehicle string `json:"vehicle"`
}

// TimelineEntry records one accepted state transition. The timeline is
// append-only and strictly ordered by the actual transition sequence.
type TimelineEntry struct {
	Status      Status    `json:"status"`
	At          time.Time `json:"at"`
	Description string    `json:"description"`
}

type Order struct {
	ID            types.ID
	CustomerID    types.ID
	MerchantID    types.ID
	MerchantCity  string
	CityToken     string
	Pickup        types.Point
	Items         []Item
	Bill          Bill
	Address       Address
	PaymentMethod string
	PaymentStatus string
	Status        Status
	DriverID      *types.ID
	DriverDetails *DriverDetails
	CreatedAt     time.Time
	DeliveredAt   *time.Time
	CancelledAt   *time.Time
}

// AllowedTransitions represents the order state flow (diagram) as code.
// Placed is the only state a customer may cancel from; delivered and
// cancelled are terminal.
var AllowedTransitions = map[Status][]Status{
	StatusPlaced:         {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusPreparing},
	StatusPreparing:      {StatusOutForDelivery},
	StatusOutForDelivery: {StatusDelivered},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s Status) bool {
	return s == StatusDelivered || s == StatusCancelled
}

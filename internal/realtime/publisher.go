// README: Realtime event publishing capability; channels are addressable per driver, order, and city.
package realtime

import (
	"context"

	"quickbite/internal/types"
)

// Event is the wire shape pushed to driver and customer clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event types understood by the client apps.
const (
	EventOrderOffer     = "order_offer"
	EventOrderTaken     = "order_taken"
	EventOrderWithdrawn = "order_withdrawn"
	EventOrderStatus    = "order_status"
)

// Publisher delivers events to named channels. Delivery is best-effort with no
// persistence or replay; correctness never depends on an event arriving.
type Publisher interface {
	Publish(ctx context.Context, channel string, ev Event) error
	Close() error
}

func ChannelDriver(id types.ID) string { return "driver:" + string(id) }
func ChannelOrder(id types.ID) string  { return "order:" + string(id) }
func ChannelCity(token string) string  { return "city:" + token }

// ChannelBroadcast carries withdraw events every connected driver client
// listens on, so a taken or cancelled order disappears from all lists.
const ChannelBroadcast = "orders:withdrawn"

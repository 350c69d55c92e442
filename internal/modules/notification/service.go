// README: Fanout delivers order offers over push and realtime channels; everything here is best-effort.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quickbite/internal/modules/order"
	"quickbite/internal/push"
	"quickbite/internal/realtime"
	"quickbite/internal/types"
)

// PushTokenSource resolves candidate drivers to their registered device tokens.
type PushTokenSource interface {
	PushTokens(ctx context.Context, ids []types.ID) (map[types.ID]string, error)
}

// Fanout owns offer/withdraw broadcasting. None of its methods return errors
// to callers: an order must be created and accepted even when every push and
// every event publish fails. Failures are logged and swallowed.
type Fanout struct {
	store  Store
	gw     push.Gateway
	pub    realtime.Publisher
	tokens PushTokenSource
	log    *logrus.Logger
}

func NewFanout(store Store, gw push.Gateway, pub realtime.Publisher, tokens PushTokenSource, log *logrus.Logger) *Fanout {
	return &Fanout{store: store, gw: gw, pub: pub, tokens: tokens, log: log}
}

// offerPayload is the realtime event body for a fresh offer. The full order is
// included so driver clients can render the card without a follow-up fetch.
type offerPayload struct {
	Order *order.Order `json:"order"`
}

// Offer fans one order out to the candidate set: a push message and a persisted
// notification record per candidate with a token, a realtime event on each
// candidate's personal channel, and the same event on the city channel so
// drivers browsing the available list see it live.
func (f *Fanout) Offer(ctx context.Context, o *order.Order, candidates []types.ID, cityToken string) {
	if len(candidates) > 0 {
		f.sendPushes(ctx, o, candidates)
	}

	ev := realtime.Event{Type: realtime.EventOrderOffer, Data: offerPayload{Order: o}}
	for _, id := range candidates {
		if err := f.pub.Publish(ctx, realtime.ChannelDriver(id), ev); err != nil {
			f.log.WithError(err).WithField("driver_id", id).Warn("offer event publish failed")
		}
	}
	if cityToken != "" {
		if err := f.pub.Publish(ctx, realtime.ChannelCity(cityToken), ev); err != nil {
			f.log.WithError(err).WithField("city", cityToken).Warn("city offer publish failed")
		}
	}
}

// Taken announces the accept winner on the order's channel and withdraws the
// offer from every other driver's view. Drivers named by the original fanout
// get the withdrawal on their personal channel as well, since their apps may
// only be subscribed there.
func (f *Fanout) Taken(ctx context.Context, orderID, winner types.ID, notified []types.ID) {
	ev := realtime.Event{Type: realtime.EventOrderTaken, Data: map[string]any{
		"order_id":  orderID,
		"driver_id": winner,
	}}
	if err := f.pub.Publish(ctx, realtime.ChannelOrder(orderID), ev); err != nil {
		f.log.WithError(err).WithField("order_id", orderID).Warn("taken event publish failed")
	}
	withdrawn := realtime.Event{Type: realtime.EventOrderWithdrawn, Data: map[string]any{
		"order_id": orderID,
		"reason":   "taken",
	}}
	for _, id := range notified {
		if id == winner {
			continue
		}
		if err := f.pub.Publish(ctx, realtime.ChannelDriver(id), withdrawn); err != nil {
			f.log.WithError(err).WithField("driver_id", id).Warn("targeted withdraw publish failed")
		}
	}
	f.Withdraw(ctx, orderID, "taken")
}

// Withdraw tells every driver client still displaying the offer to drop it.
func (f *Fanout) Withdraw(ctx context.Context, orderID types.ID, reason string) {
	ev := realtime.Event{Type: realtime.EventOrderWithdrawn, Data: map[string]any{
		"order_id": orderID,
		"reason":   reason,
	}}
	if err := f.pub.Publish(ctx, realtime.ChannelBroadcast, ev); err != nil {
		f.log.WithError(err).WithField("order_id", orderID).Warn("withdraw publish failed")
	}
}

// StatusChanged notifies whoever is watching a specific order of a lifecycle step.
func (f *Fanout) StatusChanged(ctx context.Context, o *order.Order) {
	ev := realtime.Event{Type: realtime.EventOrderStatus, Data: map[string]any{
		"order_id": o.ID,
		"status":   o.Status,
	}}
	if err := f.pub.Publish(ctx, realtime.ChannelOrder(o.ID), ev); err != nil {
		f.log.WithError(err).WithField("order_id", o.ID).Warn("status event publish failed")
	}
}

func (f *Fanout) sendPushes(ctx context.Context, o *order.Order, candidates []types.ID) {
	tokens, err := f.tokens.PushTokens(ctx, candidates)
	if err != nil {
		f.log.WithError(err).Warn("push token lookup failed")
		tokens = nil
	}

	title := "New delivery nearby"
	body := fmt.Sprintf("Pickup from %s, earn ₹%d.%02d", o.MerchantCity,
		o.Bill.DeliveryFee.Amount/100, o.Bill.DeliveryFee.Amount%100)
	payload := map[string]string{
		"order_id":     string(o.ID),
		"delivery_fee": fmt.Sprintf("%d", o.Bill.DeliveryFee.Amount),
		"city":         o.CityToken,
	}

	msgs := make([]push.Message, 0, len(tokens))
	for _, id := range candidates {
		token, ok := tokens[id]
		if !ok {
			continue
		}
		msgs = append(msgs, push.Message{Token: token, Title: title, Body: body, Data: payload})
	}
	if len(msgs) > 0 {
		if err := f.gw.Send(ctx, msgs); err != nil {
			f.log.WithError(err).WithField("order_id", o.ID).Warn("push batch failed")
		}
	}

	// The record persists even for candidates without a token so the offer
	// shows up in their in-app notification list.
	now := time.Now()
	for _, id := range candidates {
		n := &Notification{
			ID:            types.ID(uuid.NewString()),
			RecipientKind: RecipientDriver,
			RecipientID:   id,
			Title:         title,
			Body:          body,
			Payload:       payload,
			Type:          TypeOrderOffer,
			CreatedAt:     now,
		}
		if err := f.store.Create(ctx, n); err != nil {
			f.log.WithError(err).WithField("driver_id", id).Warn("notification record persist failed")
		}
	}
}

func (f *Fanout) List(ctx context.Context, kind RecipientKind, id types.ID, limit int) ([]Notification, error) {
	return f.store.ListByRecipient(ctx, kind, id, limit)
}

func (f *Fanout) MarkRead(ctx context.Context, id types.ID, kind RecipientKind, recipient types.ID) error {
	return f.store.MarkRead(ctx, id, kind, recipient)
}

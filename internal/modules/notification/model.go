// README: Persisted notification records with a tagged polymorphic recipient.
package notification

import (
	"time"

	"quickbite/internal/types"
)

// RecipientKind tags who a notification is addressed to. Lookups dispatch on
// the tag explicitly rather than resolving a dynamic reference.
type RecipientKind string

const (
	RecipientDriver RecipientKind = "driver"
	RecipientUser   RecipientKind = "user"
)

// Notification types understood by the client apps.
const (
	TypeOrderOffer  = "order_offer"
	TypeOrderStatus = "order_status"
)

type Notification struct {
	ID            types.ID
	RecipientKind RecipientKind
	RecipientID   types.ID
	Title         string
	Body          string
	Payload       map[string]string
	Type          string
	Read          bool
	CreatedAt     time.Time
}

// README: Push gateway abstraction; delivery is always best-effort.
package push

import "context"

// Message is one push notification addressed to a single device token.
type Message struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// Gateway delivers a batch of push messages. Implementations skip invalid or
// unregistered tokens silently; a non-nil error means the batch as a whole
// could not be attempted. Callers treat every outcome as best-effort.
type Gateway interface {
	Send(ctx context.Context, msgs []Message) error
}

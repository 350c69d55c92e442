// README: FCM implementation of the push gateway.
package push

import (
	"context"

	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
)

// FCMGateway sends pushes through Firebase Cloud Messaging.
type FCMGateway struct {
	client *messaging.Client
	log    *logrus.Logger
}

func NewFCMGateway(client *messaging.Client, log *logrus.Logger) *FCMGateway {
	return &FCMGateway{client: client, log: log}
}

func (g *FCMGateway) Send(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	batch := make([]*messaging.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Token == "" {
			continue
		}
		batch = append(batch, &messaging.Message{
			Token: m.Token,
			Notification: &messaging.Notification{
				Title: m.Title,
				Body:  m.Body,
			},
			Data: m.Data,
		})
	}
	if len(batch) == 0 {
		return nil
	}
	resp, err := g.client.SendEach(ctx, batch)
	if err != nil {
		return err
	}
	if resp.FailureCount > 0 {
		for i, r := range resp.Responses {
			if r.Error == nil {
				continue
			}
			// Stale tokens are expected as drivers reinstall the app.
			g.log.WithFields(logrus.Fields{
				"token_suffix": tokenSuffix(batch[i].Token),
				"error":        r.Error.Error(),
			}).Warn("push delivery failed")
		}
	}
	return nil
}

func tokenSuffix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[len(token)-8:]
}

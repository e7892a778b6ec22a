package notify

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/telemetry"
)

// Subject returns the per-user subject a notification is published on.
func Subject(userID string) string {
	return "notifications.user." + userID
}

// Publisher is the subset of *nats.Conn used for notifications.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

type NATSNotifier struct {
	conn Publisher
}

func NewNATSNotifier(conn Publisher) *NATSNotifier {
	return &NATSNotifier{conn: conn}
}

func (n *NATSNotifier) Notify(_ context.Context, notification models.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	return n.conn.Publish(Subject(notification.UserID), payload)
}

// LogNotifier only logs. Used when no NATS server is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, notification models.Notification) error {
	telemetry.Logger.Info("Notification",
		zap.String("kind", string(notification.Kind)),
		zap.String("user_id", notification.UserID),
		zap.String("bid_id", notification.BidID),
	)
	return nil
}

package interfaces

import (
	"context"
	"time"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
)

type EventPublisher interface {
	PublishPaymentEvent(ctx context.Context, event models.PaymentEvent) error
}

type Notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

// Locker hands out short-lived exclusive leases on a key.
type Locker interface {
	// Acquire returns ok=false when the key is already leased. The returned release func is never nil.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// DedupStore remembers processed processor event ids.
type DedupStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	MarkSeen(ctx context.Context, key string, ttl time.Duration) error
}

package interfaces

import (
	"context"
	"time"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
)

// PaymentRepository defines the contract for the escrow payment ledger
type PaymentRepository interface {
	// Create inserts a PENDING payment. It returns a CONFLICT error when the bid already has an active payment.
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, paymentID string) (*models.Payment, error)
	ListByIntentID(ctx context.Context, intentID string) ([]*models.Payment, error)
	// FindActiveByBidID returns nil, nil when the bid has no PENDING or HELD payment.
	FindActiveByBidID(ctx context.Context, bidID string) (*models.Payment, error)
	// TransitionStatus moves the payment to `to` only if its current status is one of `from`.
	// It returns the number of rows changed; zero means the expected prior status no longer holds.
	TransitionStatus(ctx context.Context, paymentID string, from []models.PaymentStatus, to models.PaymentStatus, patch models.PaymentPatch) (int64, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Payment, error)
}

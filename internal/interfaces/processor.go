package interfaces

import (
	"context"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
)

// PaymentProcessor wraps the external payment processor. Every error it returns is an UPSTREAM_ERROR.
type PaymentProcessor interface {
	CreateAuthorization(ctx context.Context, req models.AuthorizationRequest) (*models.Intent, error)
	Capture(ctx context.Context, intentID string) (*models.Intent, error)
	CancelAuthorization(ctx context.Context, intentID string) (*models.Intent, error)
	CreateTransfer(ctx context.Context, req models.TransferRequest) (*models.Transfer, error)
	CreateRefund(ctx context.Context, req models.RefundRequest) (*models.Refund, error)
	// RetrieveChargeForIntent returns "" when the intent has no charge yet.
	RetrieveChargeForIntent(ctx context.Context, intentID string) (string, error)
}

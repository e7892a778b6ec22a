package interfaces

import (
	"context"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
)

// DomainAdapter is the only way the escrow engine reads or mutates bids and tasks.
type DomainAdapter interface {
	GetBidAndTask(ctx context.Context, bidID string) (*models.Bid, *models.Task, error)
	EnsurePosterAuthorized(ctx context.Context, taskID, posterID string) error
	EnsureFreelancerOnboarded(ctx context.Context, freelancerID string) error
	GetFreelancerPayoutAccount(ctx context.Context, freelancerID string) (string, error)

	// AcceptBid performs the atomic conditional acceptance of a PENDING bid.
	AcceptBid(ctx context.Context, bidID, intentID string) error
	// CompleteBidAcceptanceAfterCapture finalizes acceptance once funds are captured. It is idempotent.
	CompleteBidAcceptanceAfterCapture(ctx context.Context, bidID string) error

	MarkBidCompleted(ctx context.Context, bidID string) error
	MarkBidCancelled(ctx context.Context, bidID string) error
	ResetBidToPending(ctx context.Context, bidID, intentID string) (bool, error)
	RevertTaskAssignmentIfMatches(ctx context.Context, bidID, intentID string) (bool, error)

	UpdatePayoutAccountStatus(ctx context.Context, payoutAccountID string, enabled bool) error
}

package interfaces

import (
	"context"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
)

// MarketplaceRepository is the storage behind the marketplace domain adapter.
// Every multi-record method is atomic.
type MarketplaceRepository interface {
	GetBid(ctx context.Context, bidID string) (*models.Bid, error)
	GetTask(ctx context.Context, taskID string) (*models.Task, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)

	// AcceptBid transitions the bid from `from` to ACCEPTED, assigns the task to the
	// freelancer with intentID and rejects pending siblings in one transaction.
	// It returns a CONFLICT error and writes nothing if the bid is no longer in `from`.
	AcceptBid(ctx context.Context, bidID string, from models.BidStatus, intentID string) error
	// ReassertAcceptance re-applies the task assignment and sibling rejection for an
	// already accepted bid. Records already in the target state are left untouched.
	ReassertAcceptance(ctx context.Context, bidID string) error

	// CloseAssignment atomically moves the bid to bidStatus and, when the task is still
	// assigned through this bid's freelancer, moves the task to taskStatus.
	CloseAssignment(ctx context.Context, bidID string, bidFrom []models.BidStatus, bidStatus models.BidStatus, taskStatus models.TaskStatus) (bool, error)
	// ResetBidToPending clears the payment reference and returns the bid to PENDING,
	// only while the bid still references intentID.
	ResetBidToPending(ctx context.Context, bidID, intentID string) (bool, error)
	// RevertTaskAssignment reopens the task only while it is IN_PROGRESS, assigned to
	// freelancerID and mirroring intentID.
	RevertTaskAssignment(ctx context.Context, taskID, freelancerID, intentID string) (bool, error)

	SetPayoutStatus(ctx context.Context, payoutAccountID string, enabled bool) (bool, error)
}

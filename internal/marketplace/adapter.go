// Package marketplace implements the escrow domain adapter on top of the
// marketplace's bid, task and user records.
package marketplace

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/apperror"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/interfaces"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/telemetry"
)

type Adapter struct {
	repo interfaces.MarketplaceRepository
}

func NewAdapter(repo interfaces.MarketplaceRepository) *Adapter {
	return &Adapter{repo: repo}
}

func (a *Adapter) GetBidAndTask(ctx context.Context, bidID string) (*models.Bid, *models.Task, error) {
	bid, err := a.repo.GetBid(ctx, bidID)
	if err != nil {
		return nil, nil, err
	}
	task, err := a.repo.GetTask(ctx, bid.TaskID)
	if err != nil {
		return nil, nil, err
	}
	return bid, task, nil
}

func (a *Adapter) EnsurePosterAuthorized(ctx context.Context, taskID, posterID string) error {
	task, err := a.repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if posterID == "" || task.PosterID != posterID {
		return apperror.Forbidden("user %s is not the poster of task %s", posterID, taskID)
	}
	return nil
}

func (a *Adapter) EnsureFreelancerOnboarded(ctx context.Context, freelancerID string) error {
	user, err := a.repo.GetUser(ctx, freelancerID)
	if err != nil {
		return err
	}
	if user.PayoutAccountID == "" || !user.PayoutsEnabled {
		return apperror.BadRequest("freelancer %s has not completed payout onboarding", freelancerID)
	}
	return nil
}

func (a *Adapter) GetFreelancerPayoutAccount(ctx context.Context, freelancerID string) (string, error) {
	user, err := a.repo.GetUser(ctx, freelancerID)
	if err != nil {
		return "", err
	}
	if user.PayoutAccountID == "" {
		return "", apperror.BadRequest("freelancer %s has no payout account", freelancerID)
	}
	return user.PayoutAccountID, nil
}

func (a *Adapter) AcceptBid(ctx context.Context, bidID, intentID string) error {
	return a.repo.AcceptBid(ctx, bidID, models.BidPending, intentID)
}

// CompleteBidAcceptanceAfterCapture is safe to call any number of times for the same bid.
// An ACCEPTED bid only has its task assignment and sibling rejection re-asserted; a
// PAYMENT_PENDING bid goes through the conditional acceptance transaction.
func (a *Adapter) CompleteBidAcceptanceAfterCapture(ctx context.Context, bidID string) error {
	bid, err := a.repo.GetBid(ctx, bidID)
	if err != nil {
		return err
	}

	switch bid.Status {
	case models.BidAccepted:
		return a.repo.ReassertAcceptance(ctx, bidID)
	case models.BidPaymentPending:
		return a.repo.AcceptBid(ctx, bidID, models.BidPaymentPending, bid.PaymentIntentID)
	default:
		return apperror.BadRequest("bid is not in payment-pending status, current status: %s", bid.Status)
	}
}

func (a *Adapter) MarkBidCompleted(ctx context.Context, bidID string) error {
	changed, err := a.repo.CloseAssignment(ctx, bidID, []models.BidStatus{models.BidAccepted}, models.BidCompleted, models.TaskCompleted)
	if err != nil {
		return err
	}
	if !changed {
		return a.expectStatus(ctx, bidID, models.BidCompleted)
	}
	return nil
}

func (a *Adapter) MarkBidCancelled(ctx context.Context, bidID string) error {
	from := []models.BidStatus{models.BidAccepted, models.BidPaymentPending, models.BidPending}
	changed, err := a.repo.CloseAssignment(ctx, bidID, from, models.BidCancelled, models.TaskOpen)
	if err != nil {
		return err
	}
	if !changed {
		return a.expectStatus(ctx, bidID, models.BidCancelled)
	}
	return nil
}

// expectStatus treats a bid already in the target status as success so repeated calls stay idempotent.
func (a *Adapter) expectStatus(ctx context.Context, bidID string, want models.BidStatus) error {
	bid, err := a.repo.GetBid(ctx, bidID)
	if err != nil {
		return err
	}
	if bid.Status != want {
		return apperror.BadRequest("bid %s cannot move to %s, current status: %s", bidID, want, bid.Status)
	}
	return nil
}

func (a *Adapter) ResetBidToPending(ctx context.Context, bidID, intentID string) (bool, error) {
	return a.repo.ResetBidToPending(ctx, bidID, intentID)
}

// RevertTaskAssignmentIfMatches reopens the bid's task unless it has since been
// reassigned to a different freelancer or payment.
func (a *Adapter) RevertTaskAssignmentIfMatches(ctx context.Context, bidID, intentID string) (bool, error) {
	bid, err := a.repo.GetBid(ctx, bidID)
	if err != nil {
		return false, err
	}
	reverted, err := a.repo.RevertTaskAssignment(ctx, bid.TaskID, bid.FreelancerID, intentID)
	if err != nil {
		return false, fmt.Errorf("revert task %s: %w", bid.TaskID, err)
	}
	if !reverted {
		telemetry.Logger.Info("Task assignment no longer matches bid, leaving it unchanged",
			zap.String("bid_id", bidID),
			zap.String("task_id", bid.TaskID),
			zap.String("intent_id", intentID),
		)
	}
	return reverted, nil
}

func (a *Adapter) UpdatePayoutAccountStatus(ctx context.Context, payoutAccountID string, enabled bool) error {
	changed, err := a.repo.SetPayoutStatus(ctx, payoutAccountID, enabled)
	if err != nil {
		return err
	}
	if !changed {
		telemetry.Logger.Warn("Payout account update for unknown account",
			zap.String("payout_account_id", payoutAccountID),
		)
	}
	return nil
}

package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/apperror"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/telemetry"
)

type AcceptResult struct {
	BidID        string
	TaskID       string
	FreelancerID string
	Payment      *models.Payment
	ClientSecret string
}

// AcceptBid opens an escrow hold for the bid and then, in one transaction, accepts
// the bid, assigns the task and rejects sibling bids. If the transaction does not
// commit, the hold is voided and its payment cancelled.
func (o *Orchestrator) AcceptBid(ctx context.Context, bidID, posterID string) (*AcceptResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "accept_bid", attribute.String("bid_id", bidID))
	defer span.End()

	result, err := o.acceptBid(ctx, bidID, posterID)
	switch {
	case err == nil:
		telemetry.AcceptanceOutcomes.WithLabelValues("accepted").Inc()
	case apperror.Is(err, apperror.CodeConflict):
		telemetry.AcceptanceOutcomes.WithLabelValues("conflict").Inc()
		telemetry.Logger.Info("Bid acceptance lost race",
			zap.String("bid_id", bidID),
			zap.String("outcome", "conflict"),
		)
	default:
		telemetry.AcceptanceOutcomes.WithLabelValues("error").Inc()
	}
	return result, err
}

func (o *Orchestrator) acceptBid(ctx context.Context, bidID, posterID string) (*AcceptResult, error) {
	if bidID == "" || posterID == "" {
		return nil, apperror.BadRequest("bid_id and poster_id are required")
	}

	bid, task, err := o.domain.GetBidAndTask(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if task.PosterID != posterID {
		return nil, apperror.Forbidden("user %s is not the poster of task %s", posterID, task.ID)
	}
	if bid.Status != models.BidPending {
		return nil, apperror.BadRequest("bid already processed, current status: %s", bid.Status)
	}
	if task.Status != models.TaskOpen {
		return nil, apperror.BadRequest("task is not open, current status: %s", task.Status)
	}

	unlock, ok, err := o.locker.Acquire(ctx, "bid:"+bidID, o.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.Conflict("bid already processed")
	}
	defer unlock()

	hold, err := o.OpenHold(ctx, HoldRequest{
		TaskID:       task.ID,
		PosterID:     posterID,
		FreelancerID: bid.FreelancerID,
		BidID:        bid.ID,
		Amount:       bid.Amount,
	})
	if err != nil {
		return nil, err
	}

	if err := o.domain.AcceptBid(ctx, bid.ID, hold.Payment.ProcessorIntentID); err != nil {
		o.compensateHold(ctx, hold.Payment, err)
		return nil, err
	}

	telemetry.Logger.Info("Bid accepted",
		zap.String("bid_id", bid.ID),
		zap.String("task_id", task.ID),
		zap.String("freelancer_id", bid.FreelancerID),
		zap.String("payment_id", hold.Payment.ID),
	)
	o.notifyAsync(ctx, models.Notification{
		Kind:      models.NotificationBidAccepted,
		UserID:    bid.FreelancerID,
		TaskID:    task.ID,
		BidID:     bid.ID,
		PaymentID: hold.Payment.ID,
		Data:      map[string]string{"task_title": task.Title},
	})

	return &AcceptResult{
		BidID:        bid.ID,
		TaskID:       task.ID,
		FreelancerID: bid.FreelancerID,
		Payment:      hold.Payment,
		ClientSecret: hold.ClientSecret,
	}, nil
}

// CompleteBidAcceptance finalizes bid and task state after capture on behalf of the task's poster. Safe to repeat.
func (o *Orchestrator) CompleteBidAcceptance(ctx context.Context, bidID, posterID string) error {
	ctx, span := telemetry.StartSpan(ctx, "complete_bid_acceptance", attribute.String("bid_id", bidID))
	defer span.End()

	if bidID == "" {
		return apperror.BadRequest("bid_id is required")
	}
	_, task, err := o.domain.GetBidAndTask(ctx, bidID)
	if err != nil {
		return err
	}
	if err := o.domain.EnsurePosterAuthorized(ctx, task.ID, posterID); err != nil {
		return err
	}
	return o.completeBidAcceptance(ctx, bidID)
}

func (o *Orchestrator) completeBidAcceptance(ctx context.Context, bidID string) error {
	if bidID == "" {
		return apperror.BadRequest("bid_id is required")
	}
	return o.domain.CompleteBidAcceptanceAfterCapture(ctx, bidID)
}

// compensateHold undoes a hold whose acceptance transaction did not commit.
func (o *Orchestrator) compensateHold(ctx context.Context, payment *models.Payment, cause error) {
	ctx = context.WithoutCancel(ctx)
	telemetry.Logger.Warn("Acceptance transaction aborted, voiding hold",
		zap.String("payment_id", payment.ID),
		zap.String("bid_id", payment.BidID),
		zap.Error(cause),
	)
	o.voidIntent(ctx, payment.ProcessorIntentID, "acceptance aborted")
	if _, err := o.transition(ctx, payment, []models.PaymentStatus{models.PaymentPending}, models.PaymentCancelled, models.PaymentPatch{}); err != nil {
		telemetry.Logger.Error("Failed to cancel payment after aborted acceptance",
			zap.String("payment_id", payment.ID),
			zap.Error(err),
		)
	}
}

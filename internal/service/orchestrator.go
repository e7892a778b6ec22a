package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/apperror"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/interfaces"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/processor"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/telemetry"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/webhook"
)

type Dependencies struct {
	Payments  interfaces.PaymentRepository
	Domain    interfaces.DomainAdapter
	Processor interfaces.PaymentProcessor
	Publisher interfaces.EventPublisher
	Notifier  interfaces.Notifier
	Locker    interfaces.Locker
}

type Options struct {
	PlatformFeePercent decimal.Decimal
	Currency           string
	LockTTL            time.Duration
}

// Orchestrator drives the escrow payment lifecycle. It holds no in-process locks:
// correctness relies on conditional status updates in the stores.
type Orchestrator struct {
	payments   interfaces.PaymentRepository
	domain     interfaces.DomainAdapter
	processor  interfaces.PaymentProcessor
	publisher  interfaces.EventPublisher
	notifier   interfaces.Notifier
	locker     interfaces.Locker
	feePercent decimal.Decimal
	currency   string
	lockTTL    time.Duration
	now        func() time.Time

	inflight sync.WaitGroup
}

func NewOrchestrator(deps Dependencies, opts Options) *Orchestrator {
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	return &Orchestrator{
		payments:   deps.Payments,
		domain:     deps.Domain,
		processor:  deps.Processor,
		publisher:  deps.Publisher,
		notifier:   deps.Notifier,
		locker:     deps.Locker,
		feePercent: opts.PlatformFeePercent,
		currency:   strings.ToLower(opts.Currency),
		lockTTL:    opts.LockTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type HoldRequest struct {
	TaskID       string
	PosterID     string
	FreelancerID string
	BidID        string
	Amount       decimal.Decimal
}

type HoldResult struct {
	Payment      *models.Payment
	ClientSecret string
}

type ReleaseResult struct {
	PaymentID        string
	TransferID       string
	FreelancerAmount decimal.Decimal
	PlatformFee      decimal.Decimal
}

type RefundResult struct {
	PaymentID      string
	RefundID       string
	AmountRefunded decimal.Decimal
}

// OpenHold authorizes the bid amount with manual capture and records a PENDING payment.
// The request must describe a PENDING bid exactly as stored: its task, its freelancer and
// its amount, opened by that task's poster.
func (o *Orchestrator) OpenHold(ctx context.Context, req HoldRequest) (*HoldResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "open_hold", attribute.String("bid_id", req.BidID))
	defer span.End()

	if req.TaskID == "" || req.PosterID == "" || req.FreelancerID == "" || req.BidID == "" {
		return nil, apperror.BadRequest("task_id, poster_id, freelancer_id and bid_id are required")
	}
	if !req.Amount.IsPositive() {
		return nil, apperror.BadRequest("amount must be positive, got %s", req.Amount)
	}
	if exp := models.MinorExponent(o.currency); !req.Amount.Equal(req.Amount.Round(exp)) {
		return nil, apperror.BadRequest("amount %s has more than %d decimal places for %s", req.Amount, exp, o.currency)
	}

	bid, task, err := o.domain.GetBidAndTask(ctx, req.BidID)
	if err != nil {
		return nil, err
	}
	if err := o.domain.EnsurePosterAuthorized(ctx, task.ID, req.PosterID); err != nil {
		return nil, err
	}
	if bid.TaskID != req.TaskID || bid.FreelancerID != req.FreelancerID {
		return nil, apperror.BadRequest("bid %s does not belong to task %s and freelancer %s", bid.ID, req.TaskID, req.FreelancerID)
	}
	if !bid.Amount.Equal(req.Amount) {
		return nil, apperror.BadRequest("amount %s does not match bid amount %s", req.Amount, bid.Amount)
	}
	if bid.Status != models.BidPending {
		return nil, apperror.BadRequest("bid already processed, current status: %s", bid.Status)
	}

	if err := o.domain.EnsureFreelancerOnboarded(ctx, req.FreelancerID); err != nil {
		return nil, err
	}

	existing, err := o.payments.FindActiveByBidID(ctx, req.BidID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperror.Conflict("payment already exists for this bid, current status: %s", existing.Status)
	}

	split := models.SplitAmount(req.Amount, o.feePercent, o.currency)
	payment := models.NewPendingPayment(req.TaskID, req.BidID, req.PosterID, req.FreelancerID, req.Amount, o.currency, split, o.now())
	payment.Metadata = map[string]string{
		models.MetaBidID:        req.BidID,
		models.MetaTaskID:       req.TaskID,
		models.MetaPaymentID:    payment.ID,
		models.MetaPosterID:     req.PosterID,
		models.MetaFreelancerID: req.FreelancerID,
	}

	intent, err := o.processor.CreateAuthorization(ctx, models.AuthorizationRequest{
		Amount:         req.Amount,
		Currency:       o.currency,
		Metadata:       payment.Metadata,
		IdempotencyKey: "hold-" + payment.ID,
	})
	if err != nil {
		telemetry.Logger.Error("Authorization hold failed",
			zap.String("bid_id", req.BidID),
			zap.Error(err),
		)
		return nil, err
	}
	payment.ProcessorIntentID = intent.ID

	if err := o.payments.Create(ctx, payment); err != nil {
		o.voidIntent(ctx, intent.ID, "payment record not created")
		return nil, err
	}

	telemetry.PaymentTransitions.WithLabelValues("", string(models.PaymentPending)).Inc()
	o.publish(ctx, payment, "")
	telemetry.Logger.Info("Escrow hold opened",
		zap.String("payment_id", payment.ID),
		zap.String("bid_id", payment.BidID),
		zap.String("intent_id", intent.ID),
		zap.String("amount", payment.Amount.String()),
		zap.String("platform_fee", payment.PlatformFee.String()),
	)

	return &HoldResult{Payment: payment, ClientSecret: intent.ClientSecret}, nil
}

// OnCapturable captures a hold the processor reports as ready. Duplicate deliveries are safe:
// an already-captured intent counts as success and completion is idempotent.
func (o *Orchestrator) OnCapturable(ctx context.Context, ev webhook.IntentEvent) error {
	ctx, span := telemetry.StartSpan(ctx, "on_capturable", attribute.String("intent_id", ev.IntentID))
	defer span.End()

	bidID := ev.BidID()
	if bidID == "" {
		telemetry.Logger.Warn("Capturable event without bid_id, dropping",
			zap.String("event_id", ev.ID),
			zap.String("intent_id", ev.IntentID),
			zap.String("payment_id", ev.PaymentID()),
		)
		return nil
	}
	telemetry.Logger.Info("Intent capturable",
		zap.String("event_id", ev.ID),
		zap.String("intent_id", ev.IntentID),
		zap.String("bid_id", bidID),
		zap.String("payment_id", ev.PaymentID()),
		zap.String("intent_status", ev.Status),
		zap.Int64("amount_capturable", ev.AmountCapturable),
	)

	payments, err := o.payments.ListByIntentID(ctx, ev.IntentID)
	if err != nil {
		return err
	}
	var pending, held []*models.Payment
	for _, p := range payments {
		switch p.Status {
		case models.PaymentPending:
			pending = append(pending, p)
		case models.PaymentHeld:
			held = append(held, p)
		}
	}
	if len(pending) == 0 && len(held) == 0 {
		telemetry.Logger.Warn("Capturable event for intent with no active payment, dropping",
			zap.String("intent_id", ev.IntentID),
			zap.String("bid_id", bidID),
			zap.Int("payments", len(payments)),
		)
		return nil
	}

	if len(pending) > 0 {
		if _, err := o.processor.Capture(ctx, ev.IntentID); err != nil {
			if !processor.IsAlreadyCaptured(err) {
				telemetry.Logger.Error("Capture failed",
					zap.String("intent_id", ev.IntentID),
					zap.Error(err),
				)
				return err
			}
			telemetry.Logger.Info("Intent already captured, treating as success",
				zap.String("intent_id", ev.IntentID),
			)
		}
		if err := o.markHeld(ctx, pending); err != nil {
			return err
		}
	}

	return o.completeAfterCapture(ctx, bidID)
}

// OnAuthorizationSucceeded re-asserts HELD for a captured intent and finalizes acceptance.
func (o *Orchestrator) OnAuthorizationSucceeded(ctx context.Context, ev webhook.IntentEvent) error {
	ctx, span := telemetry.StartSpan(ctx, "on_authorization_succeeded", attribute.String("intent_id", ev.IntentID))
	defer span.End()

	bidID := ev.BidID()
	if bidID == "" {
		telemetry.Logger.Warn("Succeeded event without bid_id, dropping", zap.String("intent_id", ev.IntentID))
		return nil
	}

	payments, err := o.payments.ListByIntentID(ctx, ev.IntentID)
	if err != nil {
		return err
	}
	var pending []*models.Payment
	active := false
	for _, p := range payments {
		switch p.Status {
		case models.PaymentPending:
			pending = append(pending, p)
			active = true
		case models.PaymentHeld:
			active = true
		}
	}
	if !active {
		telemetry.Logger.Info("Succeeded event for intent with no active payment",
			zap.String("intent_id", ev.IntentID),
			zap.String("bid_id", bidID),
		)
		return nil
	}
	if err := o.markHeld(ctx, pending); err != nil {
		return err
	}
	return o.completeAfterCapture(ctx, bidID)
}

func (o *Orchestrator) OnAuthorizationFailed(ctx context.Context, ev webhook.IntentEvent) error {
	return o.failHold(ctx, ev, "authorization_failed")
}

func (o *Orchestrator) OnCanceled(ctx context.Context, ev webhook.IntentEvent) error {
	return o.failHold(ctx, ev, "canceled")
}

// failHold marks the intent's PENDING payments FAILED and compensates the bid and task.
// Compensation runs whenever the intent has a FAILED payment so a redelivery can finish
// work a failed attempt left behind; both compensation steps are conditional on the intent.
func (o *Orchestrator) failHold(ctx context.Context, ev webhook.IntentEvent, cause string) error {
	ctx, span := telemetry.StartSpan(ctx, "fail_hold", attribute.String("intent_id", ev.IntentID), attribute.String("cause", cause))
	defer span.End()

	bidID := ev.BidID()
	if bidID == "" {
		telemetry.Logger.Warn("Failure event without bid_id, dropping",
			zap.String("intent_id", ev.IntentID),
			zap.String("cause", cause),
		)
		return nil
	}

	payments, err := o.payments.ListByIntentID(ctx, ev.IntentID)
	if err != nil {
		return err
	}
	hasFailed := false
	for _, p := range payments {
		switch p.Status {
		case models.PaymentPending:
			ok, err := o.transition(ctx, p, []models.PaymentStatus{models.PaymentPending}, models.PaymentFailed, models.PaymentPatch{})
			if err != nil {
				return err
			}
			hasFailed = hasFailed || ok
		case models.PaymentFailed:
			hasFailed = true
		}
	}
	if !hasFailed {
		telemetry.Logger.Info("No pending payment to fail for intent",
			zap.String("intent_id", ev.IntentID),
			zap.String("bid_id", bidID),
			zap.String("cause", cause),
		)
		return nil
	}

	reset, err := o.domain.ResetBidToPending(ctx, bidID, ev.IntentID)
	if err != nil {
		return fmt.Errorf("reset bid %s: %w", bidID, err)
	}
	reverted, err := o.domain.RevertTaskAssignmentIfMatches(ctx, bidID, ev.IntentID)
	if err != nil {
		return err
	}

	telemetry.Logger.Info("Escrow hold failed",
		zap.String("intent_id", ev.IntentID),
		zap.String("bid_id", bidID),
		zap.String("payment_id", ev.PaymentID()),
		zap.String("intent_status", ev.Status),
		zap.String("cause", cause),
		zap.String("failure_message", ev.FailureMessage),
		zap.Bool("bid_reset", reset),
		zap.Bool("task_reverted", reverted),
	)
	return nil
}

// OnPayoutAccountUpdated records whether a payee's payout account can receive transfers.
func (o *Orchestrator) OnPayoutAccountUpdated(ctx context.Context, ev webhook.AccountEvent) error {
	return o.domain.UpdatePayoutAccountStatus(ctx, ev.AccountID, ev.Ready())
}

// Release transfers the freelancer's share of a HELD payment to their payout account.
func (o *Orchestrator) Release(ctx context.Context, paymentID, requestingPosterID string) (*ReleaseResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "release", attribute.String("payment_id", paymentID))
	defer span.End()

	unlock, err := o.lockPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	payment, err := o.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentHeld {
		return nil, apperror.BadRequest("payment not in held status, current status: %s", payment.Status)
	}
	if err := o.domain.EnsurePosterAuthorized(ctx, payment.TaskID, requestingPosterID); err != nil {
		return nil, err
	}

	chargeID, err := o.processor.RetrieveChargeForIntent(ctx, payment.ProcessorIntentID)
	if err != nil {
		return nil, err
	}
	account, err := o.domain.GetFreelancerPayoutAccount(ctx, payment.FreelancerID)
	if err != nil {
		return nil, err
	}

	transfer, err := o.processor.CreateTransfer(ctx, models.TransferRequest{
		Amount:             payment.FreelancerAmount,
		Currency:           payment.Currency,
		DestinationAccount: account,
		SourceCharge:       chargeID,
		Metadata: map[string]string{
			models.MetaPaymentID: payment.ID,
			models.MetaBidID:     payment.BidID,
			models.MetaTaskID:    payment.TaskID,
		},
		IdempotencyKey: "transfer-" + payment.ID,
	})
	if err != nil {
		telemetry.Logger.Error("Transfer failed",
			zap.String("payment_id", payment.ID),
			zap.Error(err),
		)
		return nil, err
	}

	ok, err := o.transition(ctx, payment, []models.PaymentStatus{models.PaymentHeld}, models.PaymentReleased, models.PaymentPatch{ProcessorTransferID: transfer.ID})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.Conflict("payment %s changed status during release", payment.ID)
	}

	if err := o.domain.MarkBidCompleted(ctx, payment.BidID); err != nil {
		telemetry.Logger.Error("Payment released but bid not marked completed",
			zap.String("payment_id", payment.ID),
			zap.String("bid_id", payment.BidID),
			zap.Error(err),
		)
	}
	o.notifyAsync(ctx, models.Notification{
		Kind:      models.NotificationPaymentReleased,
		UserID:    payment.FreelancerID,
		TaskID:    payment.TaskID,
		BidID:     payment.BidID,
		PaymentID: payment.ID,
		Data:      map[string]string{"amount": payment.FreelancerAmount.String(), "currency": payment.Currency},
	})

	return &ReleaseResult{
		PaymentID:        payment.ID,
		TransferID:       transfer.ID,
		FreelancerAmount: payment.FreelancerAmount,
		PlatformFee:      payment.PlatformFee,
	}, nil
}

// Refund returns the full amount of a PENDING or HELD payment to the payer.
// An uncaptured hold is voided instead of refunded. Only the task's poster may refund.
func (o *Orchestrator) Refund(ctx context.Context, paymentID, requestingPosterID, reason string) (*RefundResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "refund", attribute.String("payment_id", paymentID))
	defer span.End()

	unlock, err := o.lockPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	payment, err := o.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := o.domain.EnsurePosterAuthorized(ctx, payment.TaskID, requestingPosterID); err != nil {
		return nil, err
	}

	var refundID string
	switch payment.Status {
	case models.PaymentRefunded:
		return nil, apperror.BadRequest("payment already refunded")
	case models.PaymentReleased:
		return nil, apperror.BadRequest("payment already released, current status: %s", payment.Status)
	case models.PaymentHeld:
		refund, err := o.processor.CreateRefund(ctx, models.RefundRequest{
			IntentID:       payment.ProcessorIntentID,
			Reason:         reason,
			IdempotencyKey: "refund-" + payment.ID,
		})
		if err != nil {
			return nil, err
		}
		refundID = refund.ID
	case models.PaymentPending:
		intent, err := o.processor.CancelAuthorization(ctx, payment.ProcessorIntentID)
		if err != nil {
			return nil, err
		}
		refundID = intent.ID
	default:
		return nil, apperror.BadRequest("payment cannot be refunded, current status: %s", payment.Status)
	}

	from := []models.PaymentStatus{models.PaymentPending, models.PaymentHeld}
	ok, err := o.transition(ctx, payment, from, models.PaymentRefunded, models.PaymentPatch{ProcessorRefundID: refundID, RefundReason: reason})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.Conflict("payment %s changed status during refund", payment.ID)
	}

	if err := o.domain.MarkBidCancelled(ctx, payment.BidID); err != nil {
		telemetry.Logger.Error("Payment refunded but bid not cancelled",
			zap.String("payment_id", payment.ID),
			zap.String("bid_id", payment.BidID),
			zap.Error(err),
		)
	}
	o.notifyAsync(ctx, models.Notification{
		Kind:      models.NotificationPaymentRefunded,
		UserID:    payment.PosterID,
		TaskID:    payment.TaskID,
		BidID:     payment.BidID,
		PaymentID: payment.ID,
		Data:      map[string]string{"amount": payment.Amount.String(), "currency": payment.Currency},
	})

	return &RefundResult{PaymentID: payment.ID, RefundID: refundID, AmountRefunded: payment.Amount}, nil
}

// GetPayment returns a payment to one of its two parties.
func (o *Orchestrator) GetPayment(ctx context.Context, paymentID, userID string) (*models.Payment, error) {
	payment, err := o.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if userID == "" || (userID != payment.PosterID && userID != payment.FreelancerID) {
		return nil, apperror.Forbidden("user %s is not a party to payment %s", userID, paymentID)
	}
	return payment, nil
}

// Drain waits for in-flight notifications.
func (o *Orchestrator) Drain() {
	o.inflight.Wait()
}

func (o *Orchestrator) markHeld(ctx context.Context, pending []*models.Payment) error {
	for _, p := range pending {
		ok, err := o.transition(ctx, p, []models.PaymentStatus{models.PaymentPending}, models.PaymentHeld, models.PaymentPatch{})
		if err != nil {
			return err
		}
		if ok {
			o.notifyAsync(ctx, models.Notification{
				Kind:      models.NotificationPaymentHeld,
				UserID:    p.FreelancerID,
				TaskID:    p.TaskID,
				BidID:     p.BidID,
				PaymentID: p.ID,
			})
		}
	}
	return nil
}

// completeAfterCapture runs idempotent completion; a lost race means another delivery already finished it.
func (o *Orchestrator) completeAfterCapture(ctx context.Context, bidID string) error {
	err := o.completeBidAcceptance(ctx, bidID)
	if apperror.Is(err, apperror.CodeConflict) {
		telemetry.Logger.Info("Bid acceptance already completed concurrently",
			zap.String("bid_id", bidID),
			zap.String("outcome", "conflict"),
		)
		return nil
	}
	return err
}

// transition applies a conditional status change. It reports false when the payment
// was no longer in one of the expected statuses.
func (o *Orchestrator) transition(ctx context.Context, p *models.Payment, from []models.PaymentStatus, to models.PaymentStatus, patch models.PaymentPatch) (bool, error) {
	rows, err := o.payments.TransitionStatus(ctx, p.ID, from, to, patch)
	if err != nil {
		return false, err
	}
	if rows == 0 {
		telemetry.Logger.Info("Payment transition skipped, status already changed",
			zap.String("payment_id", p.ID),
			zap.String("to_status", string(to)),
			zap.String("outcome", "conflict"),
		)
		return false, nil
	}

	previous := p.Status
	p.PreviousStatus = previous
	p.Status = to
	telemetry.PaymentTransitions.WithLabelValues(string(previous), string(to)).Inc()
	o.publish(ctx, p, previous)

	telemetry.Logger.Info("Payment state transition",
		zap.String("payment_id", p.ID),
		zap.String("from_status", string(previous)),
		zap.String("to_status", string(to)),
	)
	return true, nil
}

func (o *Orchestrator) publish(ctx context.Context, p *models.Payment, previous models.PaymentStatus) {
	event := models.PaymentEvent{
		PaymentID:      p.ID,
		BidID:          p.BidID,
		TaskID:         p.TaskID,
		Status:         p.Status,
		PreviousStatus: previous,
		Amount:         p.Amount.String(),
		Currency:       p.Currency,
		Timestamp:      o.now(),
	}
	if err := o.publisher.PublishPaymentEvent(ctx, event); err != nil {
		telemetry.Logger.Warn("Failed to publish payment event",
			zap.String("payment_id", p.ID),
			zap.Error(err),
		)
	}
}

// notifyAsync delivers a notification off the request path. Failures are logged and dropped.
func (o *Orchestrator) notifyAsync(ctx context.Context, n models.Notification) {
	n.Timestamp = o.now()
	ctx = context.WithoutCancel(ctx)
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		if err := o.notifier.Notify(ctx, n); err != nil {
			telemetry.Logger.Warn("Notification failed",
				zap.String("kind", string(n.Kind)),
				zap.String("user_id", n.UserID),
				zap.Error(err),
			)
		}
	}()
}

func (o *Orchestrator) lockPayment(ctx context.Context, paymentID string) (func(), error) {
	unlock, ok, err := o.locker.Acquire(ctx, "payment:"+paymentID, o.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.Conflict("payment %s is being processed", paymentID)
	}
	return unlock, nil
}

// voidIntent cancels an authorization that no payment record or bid will reference.
func (o *Orchestrator) voidIntent(ctx context.Context, intentID, reason string) {
	if _, err := o.processor.CancelAuthorization(context.WithoutCancel(ctx), intentID); err != nil {
		telemetry.Logger.Error("Failed to cancel orphaned authorization",
			zap.String("intent_id", intentID),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return
	}
	telemetry.Logger.Info("Cancelled orphaned authorization",
		zap.String("intent_id", intentID),
		zap.String("reason", reason),
	)
}

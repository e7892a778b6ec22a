package processor

import (
	"context"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/apperror"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/telemetry"
	escrowwebhook "github.com/akylbek/taskmarket/escrow-orchestrator/internal/webhook"
)

// StripeProcessor issues authorization, capture, transfer and refund calls to Stripe.
// Amounts cross this boundary in major units and are converted to minor units here.
type StripeProcessor struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProcessor builds the adapter. backends may be nil to use Stripe's default endpoints.
func NewStripeProcessor(secretKey, webhookSecret string, backends *stripe.Backends) *StripeProcessor {
	return &StripeProcessor{
		api:           client.New(secretKey, backends),
		webhookSecret: webhookSecret,
	}
}

func (p *StripeProcessor) CreateAuthorization(ctx context.Context, req models.AuthorizationRequest) (*models.Intent, error) {
	start := time.Now()
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(ToMinorUnits(req.Amount, req.Currency)),
		Currency:      stripe.String(req.Currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := p.api.PaymentIntents.New(params)
	telemetry.ObserveProcessorCall("create_authorization", start, err)
	if err != nil {
		return nil, wrapError(err)
	}
	return toIntent(pi), nil
}

func (p *StripeProcessor) Capture(ctx context.Context, intentID string) (*models.Intent, error) {
	start := time.Now()
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx

	pi, err := p.api.PaymentIntents.Capture(intentID, params)
	telemetry.ObserveProcessorCall("capture", start, err)
	if err != nil {
		return nil, wrapError(err)
	}
	return toIntent(pi), nil
}

func (p *StripeProcessor) CancelAuthorization(ctx context.Context, intentID string) (*models.Intent, error) {
	start := time.Now()
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	pi, err := p.api.PaymentIntents.Cancel(intentID, params)
	telemetry.ObserveProcessorCall("cancel_authorization", start, err)
	if err != nil {
		return nil, wrapError(err)
	}
	return toIntent(pi), nil
}

func (p *StripeProcessor) CreateTransfer(ctx context.Context, req models.TransferRequest) (*models.Transfer, error) {
	start := time.Now()
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(ToMinorUnits(req.Amount, req.Currency)),
		Currency:    stripe.String(req.Currency),
		Destination: stripe.String(req.DestinationAccount),
	}
	if req.SourceCharge != "" {
		params.SourceTransaction = stripe.String(req.SourceCharge)
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	tr, err := p.api.Transfers.New(params)
	telemetry.ObserveProcessorCall("create_transfer", start, err)
	if err != nil {
		return nil, wrapError(err)
	}
	return &models.Transfer{ID: tr.ID, Amount: FromMinorUnits(tr.Amount, req.Currency)}, nil
}

func (p *StripeProcessor) CreateRefund(ctx context.Context, req models.RefundRequest) (*models.Refund, error) {
	start := time.Now()
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.IntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	rf, err := p.api.Refunds.New(params)
	telemetry.ObserveProcessorCall("create_refund", start, err)
	if err != nil {
		return nil, wrapError(err)
	}
	return &models.Refund{ID: rf.ID, Amount: FromMinorUnits(rf.Amount, string(rf.Currency)), Status: string(rf.Status)}, nil
}

// RetrieveChargeForIntent reads the intent's latest charge, falling back to listing
// charges for the intent when the field is absent.
func (p *StripeProcessor) RetrieveChargeForIntent(ctx context.Context, intentID string) (string, error) {
	start := time.Now()
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := p.api.PaymentIntents.Get(intentID, params)
	telemetry.ObserveProcessorCall("retrieve_intent", start, err)
	if err != nil {
		return "", wrapError(err)
	}
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		return pi.LatestCharge.ID, nil
	}

	telemetry.Logger.Info("Intent has no latest charge, listing charges",
		zap.String("intent_id", intentID),
	)
	listParams := &stripe.ChargeListParams{PaymentIntent: stripe.String(intentID)}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)

	start = time.Now()
	iter := p.api.Charges.List(listParams)
	var chargeID string
	if iter.Next() {
		chargeID = iter.Charge().ID
	}
	telemetry.ObserveProcessorCall("list_charges", start, iter.Err())
	if err := iter.Err(); err != nil {
		return "", wrapError(err)
	}
	return chargeID, nil
}

// Verify authenticates an inbound webhook payload against the endpoint secret.
func (p *StripeProcessor) Verify(payload []byte, signature string) (escrowwebhook.Envelope, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return escrowwebhook.Envelope{}, apperror.BadRequest("invalid webhook signature: %v", err)
	}
	if event.Data == nil {
		return escrowwebhook.Envelope{}, apperror.BadRequest("webhook event %s has no data", event.ID)
	}
	return escrowwebhook.Envelope{ID: event.ID, Type: string(event.Type), Object: event.Data.Raw}, nil
}

func toIntent(pi *stripe.PaymentIntent) *models.Intent {
	currency := string(pi.Currency)
	intent := &models.Intent{
		ID:               pi.ID,
		ClientSecret:     pi.ClientSecret,
		Status:           string(pi.Status),
		Amount:           FromMinorUnits(pi.Amount, currency),
		AmountCapturable: FromMinorUnits(pi.AmountCapturable, currency),
		Currency:         currency,
		Metadata:         pi.Metadata,
	}
	if pi.LatestCharge != nil {
		intent.LatestChargeID = pi.LatestCharge.ID
	}
	return intent
}

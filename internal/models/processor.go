package models

import "github.com/shopspring/decimal"

// Intent is the processor's view of an authorization hold.
type Intent struct {
	ID               string
	ClientSecret     string
	Status           string
	Amount           decimal.Decimal
	AmountCapturable decimal.Decimal
	Currency         string
	LatestChargeID   string
	Metadata         map[string]string
}

type AuthorizationRequest struct {
	Amount         decimal.Decimal
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

type TransferRequest struct {
	Amount             decimal.Decimal
	Currency           string
	DestinationAccount string
	SourceCharge       string
	Metadata           map[string]string
	IdempotencyKey     string
}

type Transfer struct {
	ID     string
	Amount decimal.Decimal
}

type RefundRequest struct {
	IntentID       string
	Reason         string
	IdempotencyKey string
}

type Refund struct {
	ID     string
	Amount decimal.Decimal
	Status string
}

// Metadata keys attached to processor intents.
const (
	MetaBidID        = "bid_id"
	MetaTaskID       = "task_id"
	MetaPaymentID    = "payment_id"
	MetaPosterID     = "poster_id"
	MetaFreelancerID = "freelancer_id"
)

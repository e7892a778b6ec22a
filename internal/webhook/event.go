// Package webhook decodes authenticated processor envelopes into a closed set of typed events.
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedEventType = errors.New("unsupported event type")
	ErrInvalidEnvelope      = errors.New("invalid envelope")
)

// Envelope is an authenticated processor event: {type, data.object}.
type Envelope struct {
	ID     string
	Type   string
	Object json.RawMessage
}

type Type string

const (
	TypeAuthorizationSucceeded Type = "payment_intent.succeeded"
	TypeAuthorizationFailed    Type = "payment_intent.payment_failed"
	TypeCanceled               Type = "payment_intent.canceled"
	TypeCapturableUpdated      Type = "payment_intent.amount_capturable_updated"
	TypePayoutAccountUpdated   Type = "account.updated"
)

// Event is implemented only by the event types in this package.
type Event interface {
	EventID() string
	EventType() Type
	sealed()
}

// IntentEvent reports a change on a payment intent.
type IntentEvent struct {
	ID               string
	Kind             Type
	IntentID         string
	Status           string
	AmountCapturable int64
	Currency         string
	FailureMessage   string
	Metadata         map[string]string
}

func (e IntentEvent) EventID() string   { return e.ID }
func (e IntentEvent) EventType() Type   { return e.Kind }
func (IntentEvent) sealed()             {}
func (e IntentEvent) BidID() string     { return strings.TrimSpace(e.Metadata["bid_id"]) }
func (e IntentEvent) PaymentID() string { return strings.TrimSpace(e.Metadata["payment_id"]) }

// AccountEvent reports a change on a payee's payout account.
type AccountEvent struct {
	ID               string
	AccountID        string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

func (e AccountEvent) EventID() string { return e.ID }
func (AccountEvent) EventType() Type   { return TypePayoutAccountUpdated }
func (AccountEvent) sealed()           {}

// Ready reports whether the account can receive transfers.
func (e AccountEvent) Ready() bool {
	return e.ChargesEnabled && e.PayoutsEnabled && e.DetailsSubmitted
}

type intentObject struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	AmountCapturable int64             `json:"amount_capturable"`
	Currency         string            `json:"currency"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type accountObject struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// Decode validates the envelope type against the supported set before parsing its object.
func Decode(env Envelope) (Event, error) {
	switch Type(env.Type) {
	case TypeAuthorizationSucceeded, TypeAuthorizationFailed, TypeCanceled, TypeCapturableUpdated:
		var obj intentObject
		if err := json.Unmarshal(env.Object, &obj); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEnvelope, env.Type, err)
		}
		if obj.ID == "" {
			return nil, fmt.Errorf("%w: %s: missing intent id", ErrInvalidEnvelope, env.Type)
		}
		ev := IntentEvent{
			ID:               env.ID,
			Kind:             Type(env.Type),
			IntentID:         obj.ID,
			Status:           obj.Status,
			AmountCapturable: obj.AmountCapturable,
			Currency:         obj.Currency,
			Metadata:         obj.Metadata,
		}
		if ev.Metadata == nil {
			ev.Metadata = map[string]string{}
		}
		if obj.LastPaymentError != nil {
			ev.FailureMessage = obj.LastPaymentError.Message
		}
		return ev, nil
	case TypePayoutAccountUpdated:
		var obj accountObject
		if err := json.Unmarshal(env.Object, &obj); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEnvelope, env.Type, err)
		}
		if obj.ID == "" {
			return nil, fmt.Errorf("%w: %s: missing account id", ErrInvalidEnvelope, env.Type)
		}
		return AccountEvent{
			ID:               env.ID,
			AccountID:        obj.ID,
			ChargesEnabled:   obj.ChargesEnabled,
			PayoutsEnabled:   obj.PayoutsEnabled,
			DetailsSubmitted: obj.DetailsSubmitted,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEventType, env.Type)
	}
}

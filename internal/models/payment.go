package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentHeld      PaymentStatus = "HELD"
	PaymentReleased  PaymentStatus = "RELEASED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// ActivePaymentStatuses are the non-terminal statuses. At most one payment per bid may be in one of them.
var ActivePaymentStatuses = []PaymentStatus{PaymentPending, PaymentHeld}

func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentReleased, PaymentRefunded, PaymentFailed, PaymentCancelled:
		return true
	}
	return false
}

// Payment is one escrow hold created for a bid acceptance attempt.
// Amounts are in major currency units.
type Payment struct {
	ID                  string
	TaskID              string
	BidID               string
	PosterID            string
	FreelancerID        string
	Amount              decimal.Decimal
	PlatformFee         decimal.Decimal
	FreelancerAmount    decimal.Decimal
	Currency            string
	ProcessorIntentID   string
	ProcessorTransferID string
	ProcessorRefundID   string
	Status              PaymentStatus
	PreviousStatus      PaymentStatus
	RefundReason        string
	Metadata            map[string]string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// PaymentPatch holds the optional fields written together with a status transition.
type PaymentPatch struct {
	ProcessorTransferID string
	ProcessorRefundID   string
	RefundReason        string
}

// FeeSplit is the division of a payer-facing amount between platform and freelancer.
type FeeSplit struct {
	PlatformFee      decimal.Decimal
	FreelancerAmount decimal.Decimal
}

// SplitAmount computes the platform fee as feePercent of amount rounded to the currency's
// minor unit, and gives the remainder to the freelancer so the two always sum to amount.
func SplitAmount(amount, feePercent decimal.Decimal, currency string) FeeSplit {
	fee := amount.Mul(feePercent).Div(decimal.NewFromInt(100)).Round(MinorExponent(currency))
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	if fee.GreaterThan(amount) {
		fee = amount
	}
	return FeeSplit{PlatformFee: fee, FreelancerAmount: amount.Sub(fee)}
}

// NewPendingPayment builds a PENDING payment for an authorized hold.
func NewPendingPayment(taskID, bidID, posterID, freelancerID string, amount decimal.Decimal, currency string, split FeeSplit, now time.Time) *Payment {
	return &Payment{
		ID:               uuid.NewString(),
		TaskID:           taskID,
		BidID:            bidID,
		PosterID:         posterID,
		FreelancerID:     freelancerID,
		Amount:           amount,
		PlatformFee:      split.PlatformFee,
		FreelancerAmount: split.FreelancerAmount,
		Currency:         currency,
		Status:           PaymentPending,
		Metadata:         map[string]string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// PaymentEvent is published whenever a payment changes status.
type PaymentEvent struct {
	PaymentID      string        `json:"payment_id"`
	BidID          string        `json:"bid_id"`
	TaskID         string        `json:"task_id"`
	Status         PaymentStatus `json:"status"`
	PreviousStatus PaymentStatus `json:"previous_status"`
	Amount         string        `json:"amount"`
	Currency       string        `json:"currency"`
	Timestamp      time.Time     `json:"timestamp"`
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BidStatus string

const (
	BidPending        BidStatus = "PENDING"
	BidPaymentPending BidStatus = "PAYMENT_PENDING"
	BidAccepted       BidStatus = "ACCEPTED"
	BidRejected       BidStatus = "REJECTED"
	BidCompleted      BidStatus = "COMPLETED"
	BidCancelled      BidStatus = "CANCELLED"
)

type TaskStatus string

const (
	TaskOpen       TaskStatus = "OPEN"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskCancelled  TaskStatus = "CANCELLED"
)

type Bid struct {
	ID              string
	TaskID          string
	FreelancerID    string
	Amount          decimal.Decimal
	Status          BidStatus
	PaymentIntentID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Task is a posted job. PosterID is the owner; PaymentIntentID mirrors the accepted bid's hold.
type Task struct {
	ID              string
	PosterID        string
	Title           string
	Status          TaskStatus
	AssignedTo      string
	PaymentIntentID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type User struct {
	ID              string
	PayoutAccountID string
	PayoutsEnabled  bool
}

type NotificationKind string

const (
	NotificationBidAccepted     NotificationKind = "bid_accepted"
	NotificationPaymentHeld     NotificationKind = "payment_held"
	NotificationPaymentReleased NotificationKind = "payment_released"
	NotificationPaymentRefunded NotificationKind = "payment_refunded"
)

type Notification struct {
	Kind      NotificationKind  `json:"kind"`
	UserID    string            `json:"user_id"`
	TaskID    string            `json:"task_id,omitempty"`
	BidID     string            `json:"bid_id,omitempty"`
	PaymentID string            `json:"payment_id,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

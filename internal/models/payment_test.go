package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSplitAmount(t *testing.T) {
	tests := []struct {
		amount, percent   string
		currency          string
		fee, freelancerAm string
	}{
		{"100", "10", "usd", "10", "90"},
		{"99.99", "10", "usd", "10", "89.99"},
		{"0.05", "10", "usd", "0.01", "0.04"},
		{"0.01", "10", "usd", "0", "0.01"},
		{"250.50", "0", "usd", "0", "250.5"},
		{"80", "100", "usd", "80", "0"},
		{"105", "10", "jpy", "11", "94"},
		{"15", "10", "JPY", "2", "13"},
		{"3", "10", "krw", "0", "3"},
	}
	for _, tt := range tests {
		split := SplitAmount(decimal.RequireFromString(tt.amount), decimal.RequireFromString(tt.percent), tt.currency)
		if !split.PlatformFee.Equal(decimal.RequireFromString(tt.fee)) {
			t.Errorf("SplitAmount(%s, %s) fee = %s, want %s", tt.amount, tt.percent, split.PlatformFee, tt.fee)
		}
		if !split.FreelancerAmount.Equal(decimal.RequireFromString(tt.freelancerAm)) {
			t.Errorf("SplitAmount(%s, %s) freelancer = %s, want %s", tt.amount, tt.percent, split.FreelancerAmount, tt.freelancerAm)
		}
	}
}

func TestSplitAmountInvariant(t *testing.T) {
	percents := []decimal.Decimal{decimal.NewFromInt(0), decimal.NewFromInt(10), decimal.RequireFromString("12.5"), decimal.NewFromInt(33)}
	for cents := int64(1); cents <= 5000; cents += 7 {
		amount := decimal.New(cents, -2)
		for _, p := range percents {
			split := SplitAmount(amount, p, "usd")
			if !split.PlatformFee.Add(split.FreelancerAmount).Equal(amount) {
				t.Fatalf("fee %s + freelancer %s != amount %s", split.PlatformFee, split.FreelancerAmount, amount)
			}
			if split.PlatformFee.IsNegative() || split.FreelancerAmount.IsNegative() {
				t.Fatalf("negative split for %s at %s%%: %+v", amount, p, split)
			}
		}
	}
}

func TestSplitAmountZeroDecimalCurrency(t *testing.T) {
	percents := []decimal.Decimal{decimal.NewFromInt(10), decimal.RequireFromString("12.5"), decimal.NewFromInt(33)}
	for yen := int64(1); yen <= 3000; yen += 3 {
		amount := decimal.NewFromInt(yen)
		for _, p := range percents {
			split := SplitAmount(amount, p, "jpy")
			if !split.PlatformFee.Equal(split.PlatformFee.Round(0)) {
				t.Fatalf("fee %s for %s at %s%% has a fractional yen", split.PlatformFee, amount, p)
			}
			if !split.PlatformFee.Add(split.FreelancerAmount).Equal(amount) {
				t.Fatalf("fee %s + freelancer %s != amount %s", split.PlatformFee, split.FreelancerAmount, amount)
			}
		}
	}
}

func TestMinorExponent(t *testing.T) {
	if got := MinorExponent("usd"); got != 2 {
		t.Errorf("MinorExponent(usd) = %d, want 2", got)
	}
	if got := MinorExponent("JPY"); got != 0 {
		t.Errorf("MinorExponent(JPY) = %d, want 0", got)
	}
}

func TestPaymentStatusIsTerminal(t *testing.T) {
	for _, s := range []PaymentStatus{PaymentReleased, PaymentRefunded, PaymentFailed, PaymentCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range ActivePaymentStatuses {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestNewPendingPayment(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	amount := decimal.NewFromInt(100)
	p := NewPendingPayment("t1", "b1", "poster", "free", amount, "usd", SplitAmount(amount, decimal.NewFromInt(10), "usd"), now)
	if p.ID == "" {
		t.Fatal("expected generated id")
	}
	if p.Status != PaymentPending {
		t.Errorf("status = %s, want PENDING", p.Status)
	}
	if !p.PlatformFee.Equal(decimal.NewFromInt(10)) || !p.FreelancerAmount.Equal(decimal.NewFromInt(90)) {
		t.Errorf("split = %s/%s, want 10/90", p.PlatformFee, p.FreelancerAmount)
	}
}

package processor

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     int64
	}{
		{"100", "usd", 10000},
		{"99.99", "usd", 9999},
		{"0.015", "eur", 2},
		{"1500", "jpy", 1500},
		{"1500", "JPY", 1500},
		{"12.5", "krw", 13},
	}
	for _, tt := range tests {
		if got := ToMinorUnits(decimal.RequireFromString(tt.amount), tt.currency); got != tt.want {
			t.Errorf("ToMinorUnits(%s, %s) = %d, want %d", tt.amount, tt.currency, got, tt.want)
		}
	}
}

func TestFromMinorUnits(t *testing.T) {
	if got := FromMinorUnits(9000, "usd"); !got.Equal(decimal.NewFromInt(90)) {
		t.Errorf("FromMinorUnits(9000, usd) = %s, want 90", got)
	}
	if got := FromMinorUnits(1999, "usd"); !got.Equal(decimal.RequireFromString("19.99")) {
		t.Errorf("FromMinorUnits(1999, usd) = %s, want 19.99", got)
	}
	if got := FromMinorUnits(500, "jpy"); !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("FromMinorUnits(500, jpy) = %s, want 500", got)
	}
}

func TestMinorUnitsRoundTrip(t *testing.T) {
	for cents := int64(0); cents < 20000; cents += 37 {
		amount := FromMinorUnits(cents, "usd")
		if got := ToMinorUnits(amount, "usd"); got != cents {
			t.Fatalf("round trip of %d cents gave %d", cents, got)
		}
	}
}

package processor

import (
	"github.com/shopspring/decimal"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
)

// ToMinorUnits converts a major-unit amount (dollars) into the processor's integer minor units (cents).
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(models.MinorExponent(currency)).Round(0).IntPart()
}

// FromMinorUnits converts processor minor units back into a major-unit amount.
func FromMinorUnits(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -models.MinorExponent(currency))
}

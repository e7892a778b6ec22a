package repository

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/lib/pq"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/interfaces"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/repository/memory"
)

var (
	_ interfaces.PaymentRepository     = (*PaymentRepository)(nil)
	_ interfaces.MarketplaceRepository = (*MarketplaceRepository)(nil)
	_ interfaces.PaymentRepository     = (*memory.PaymentStore)(nil)
	_ interfaces.MarketplaceRepository = (*memory.MarketplaceStore)(nil)
)

func TestStatusArrays(t *testing.T) {
	if got := statusStrings(models.ActivePaymentStatuses); !slices.Equal(got, []string{"PENDING", "HELD"}) {
		t.Errorf("statusStrings() = %v", got)
	}
	if got := bidStatusStrings([]models.BidStatus{models.BidAccepted}); !slices.Equal(got, []string{"ACCEPTED"}) {
		t.Errorf("bidStatusStrings() = %v", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(fmt.Errorf("insert payment: %w", &pq.Error{Code: "23505"})) {
		t.Error("wrapped 23505 should be a unique violation")
	}
	if isUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Error("23503 is a foreign key violation")
	}
	if isUniqueViolation(errors.New("connection refused")) {
		t.Error("plain error is not a unique violation")
	}
}

package service

import (
	"context"
	"slices"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/apperror"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/marketplace"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
)

func TestAcceptBidForbiddenForNonPoster(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orch.AcceptBid(context.Background(), "b1", "f2")
	if !apperror.Is(err, apperror.CodeForbidden) {
		t.Fatalf("AcceptBid() error = %v, want FORBIDDEN", err)
	}
	if len(env.processor.authKeys) != 0 {
		t.Error("no hold should be opened")
	}
}

func TestAcceptBidRejectsProcessedBidAndBusyTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.orch.AcceptBid(ctx, "b1", "p1"); err != nil {
		t.Fatalf("AcceptBid(b1) error = %v", err)
	}

	if _, err := env.orch.AcceptBid(ctx, "b2", "p1"); !apperror.Is(err, apperror.CodeBadRequest) {
		t.Errorf("AcceptBid(rejected sibling) error = %v, want BAD_REQUEST", err)
	}

	env.market.PutBid(models.Bid{ID: "b3", TaskID: "t1", FreelancerID: "f2", Amount: decimal.NewFromInt(70), Status: models.BidPending})
	_, err := env.orch.AcceptBid(ctx, "b3", "p1")
	if !apperror.Is(err, apperror.CodeBadRequest) {
		t.Fatalf("AcceptBid(task in progress) error = %v, want BAD_REQUEST", err)
	}
	if got := apperror.MessageOf(err); got != "task is not open, current status: IN_PROGRESS" {
		t.Errorf("message = %q", got)
	}
	if len(env.processor.authKeys) != 1 {
		t.Errorf("authorizations = %d, want 1", len(env.processor.authKeys))
	}
}

func TestAcceptBidNoDoubleAccept(t *testing.T) {
	env := newTestEnv(t)
	env.processor.authStarted = make(chan struct{})
	env.processor.authRelease = make(chan struct{})
	ctx := context.Background()

	type result struct {
		res *AcceptResult
		err error
	}
	first := make(chan result, 1)
	go func() {
		res, err := env.orch.AcceptBid(ctx, "b1", "p1")
		first <- result{res, err}
	}()

	<-env.processor.authStarted
	_, err := env.orch.AcceptBid(ctx, "b1", "p1")
	if !apperror.Is(err, apperror.CodeConflict) {
		t.Fatalf("concurrent AcceptBid() error = %v, want CONFLICT", err)
	}
	close(env.processor.authRelease)

	r := <-first
	if r.err != nil {
		t.Fatalf("first AcceptBid() error = %v", r.err)
	}
	if b := env.bid(t, "b1"); b.Status != models.BidAccepted || b.PaymentIntentID != r.res.Payment.ProcessorIntentID {
		t.Errorf("bid = %s/%s", b.Status, b.PaymentIntentID)
	}
	if len(env.processor.authKeys) != 1 {
		t.Errorf("authorizations = %d, want 1", len(env.processor.authKeys))
	}
}

func TestAcceptBidCompensatesWhenTransactionFails(t *testing.T) {
	env := newTestEnv(t)
	env.build(failingAcceptAdapter{
		Adapter: marketplace.NewAdapter(env.market),
		err:     apperror.Conflict("bid already processed"),
	})
	ctx := context.Background()

	_, err := env.orch.AcceptBid(ctx, "b1", "p1")
	if !apperror.Is(err, apperror.CodeConflict) {
		t.Fatalf("AcceptBid() error = %v, want CONFLICT", err)
	}

	payments, _ := env.payments.ListByIntentID(ctx, "pi_1")
	if len(payments) != 1 || payments[0].Status != models.PaymentCancelled {
		t.Fatalf("payments for pi_1 = %+v, want one CANCELLED", payments)
	}
	if !slices.Contains(env.processor.cancelled, "pi_1") {
		t.Errorf("cancelled intents = %v, want pi_1", env.processor.cancelled)
	}
	if b := env.bid(t, "b1"); b.Status != models.BidPending {
		t.Errorf("bid status = %s, want PENDING", b.Status)
	}
	if active, _ := env.payments.FindActiveByBidID(ctx, "b1"); active != nil {
		t.Error("bid should have no active payment after compensation")
	}
}

func TestCompleteBidAcceptance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.orch.CompleteBidAcceptance(ctx, "", "p1"); !apperror.Is(err, apperror.CodeBadRequest) {
		t.Errorf("CompleteBidAcceptance(\"\") error = %v, want BAD_REQUEST", err)
	}
	if err := env.orch.CompleteBidAcceptance(ctx, "b1", "p1"); !apperror.Is(err, apperror.CodeBadRequest) {
		t.Errorf("CompleteBidAcceptance(pending bid) error = %v, want BAD_REQUEST", err)
	}

	env.market.PutBid(models.Bid{ID: "b1", TaskID: "t1", FreelancerID: "f1", Amount: decimal.NewFromInt(100), Status: models.BidPaymentPending, PaymentIntentID: "pi_9"})
	for i := 0; i < 2; i++ {
		if err := env.orch.CompleteBidAcceptance(ctx, "b1", "p1"); err != nil {
			t.Fatalf("CompleteBidAcceptance() call %d error = %v", i+1, err)
		}
	}
	if b := env.bid(t, "b1"); b.Status != models.BidAccepted {
		t.Errorf("bid status = %s, want ACCEPTED", b.Status)
	}
	if b := env.bid(t, "b2"); b.Status != models.BidRejected {
		t.Errorf("sibling status = %s, want REJECTED", b.Status)
	}
	task := env.task(t, "t1")
	if task.Status != models.TaskInProgress || task.AssignedTo != "f1" || task.PaymentIntentID != "pi_9" {
		t.Errorf("task = %+v", task)
	}
}

func TestCompleteBidAcceptanceRequiresPoster(t *testing.T) {
	env := newTestEnv(t)
	env.market.PutBid(models.Bid{ID: "b1", TaskID: "t1", FreelancerID: "f1", Amount: decimal.NewFromInt(100), Status: models.BidPaymentPending, PaymentIntentID: "pi_9"})

	if err := env.orch.CompleteBidAcceptance(context.Background(), "b1", "f1"); !apperror.Is(err, apperror.CodeForbidden) {
		t.Fatalf("CompleteBidAcceptance() by non-poster error = %v, want FORBIDDEN", err)
	}
	if b := env.bid(t, "b1"); b.Status != models.BidPaymentPending {
		t.Errorf("bid status = %s, want PAYMENT_PENDING", b.Status)
	}
}

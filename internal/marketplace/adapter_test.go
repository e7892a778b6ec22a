package marketplace

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/apperror"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/repository/memory"
)

func newAdapter() (*Adapter, *memory.MarketplaceStore) {
	store := memory.NewMarketplaceStore()
	store.PutUser(models.User{ID: "p1"})
	store.PutUser(models.User{ID: "f1", PayoutAccountID: "acct_f1", PayoutsEnabled: true})
	store.PutUser(models.User{ID: "f2", PayoutAccountID: "acct_f2"})
	store.PutTask(models.Task{ID: "t1", PosterID: "p1", Status: models.TaskOpen})
	store.PutBid(models.Bid{ID: "b1", TaskID: "t1", FreelancerID: "f1", Amount: decimal.NewFromInt(100), Status: models.BidPending})
	return NewAdapter(store), store
}

func TestAdapterChecks(t *testing.T) {
	a, _ := newAdapter()
	ctx := context.Background()

	if err := a.EnsurePosterAuthorized(ctx, "t1", "p1"); err != nil {
		t.Errorf("EnsurePosterAuthorized(owner) error = %v", err)
	}
	if err := a.EnsurePosterAuthorized(ctx, "t1", "f1"); !apperror.Is(err, apperror.CodeForbidden) {
		t.Errorf("EnsurePosterAuthorized(other) error = %v, want FORBIDDEN", err)
	}
	if err := a.EnsureFreelancerOnboarded(ctx, "f1"); err != nil {
		t.Errorf("EnsureFreelancerOnboarded(f1) error = %v", err)
	}
	if err := a.EnsureFreelancerOnboarded(ctx, "f2"); !apperror.Is(err, apperror.CodeBadRequest) {
		t.Errorf("EnsureFreelancerOnboarded(f2) error = %v, want BAD_REQUEST", err)
	}
	if acct, err := a.GetFreelancerPayoutAccount(ctx, "f1"); err != nil || acct != "acct_f1" {
		t.Errorf("GetFreelancerPayoutAccount() = %q, %v", acct, err)
	}
	if _, _, err := a.GetBidAndTask(ctx, "missing"); !apperror.Is(err, apperror.CodeNotFound) {
		t.Errorf("GetBidAndTask(missing) error = %v, want NOT_FOUND", err)
	}
}

func TestAdapterMarkBidCompletedIsIdempotent(t *testing.T) {
	a, store := newAdapter()
	ctx := context.Background()

	if err := a.AcceptBid(ctx, "b1", "pi_1"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := a.MarkBidCompleted(ctx, "b1"); err != nil {
			t.Fatalf("MarkBidCompleted() call %d error = %v", i+1, err)
		}
	}
	task, _ := store.GetTask(ctx, "t1")
	if task.Status != models.TaskCompleted {
		t.Errorf("task status = %s, want COMPLETED", task.Status)
	}
	if err := a.MarkBidCancelled(ctx, "b1"); !apperror.Is(err, apperror.CodeBadRequest) {
		t.Errorf("MarkBidCancelled() on completed bid error = %v, want BAD_REQUEST", err)
	}
}

func TestAdapterMarkBidCancelledReopensTask(t *testing.T) {
	a, store := newAdapter()
	ctx := context.Background()

	if err := a.AcceptBid(ctx, "b1", "pi_1"); err != nil {
		t.Fatal(err)
	}
	if err := a.MarkBidCancelled(ctx, "b1"); err != nil {
		t.Fatalf("MarkBidCancelled() error = %v", err)
	}
	if err := a.MarkBidCancelled(ctx, "b1"); err != nil {
		t.Fatalf("repeated MarkBidCancelled() error = %v", err)
	}
	task, _ := store.GetTask(ctx, "t1")
	if task.Status != models.TaskOpen || task.AssignedTo != "" {
		t.Errorf("task = %s/%q, want OPEN and unassigned", task.Status, task.AssignedTo)
	}
}

func TestAdapterRevertTaskAssignmentIfMatches(t *testing.T) {
	a, store := newAdapter()
	ctx := context.Background()

	if err := a.AcceptBid(ctx, "b1", "pi_1"); err != nil {
		t.Fatal(err)
	}
	if ok, err := a.RevertTaskAssignmentIfMatches(ctx, "b1", "pi_stale"); err != nil || ok {
		t.Errorf("RevertTaskAssignmentIfMatches(stale) = %v, %v", ok, err)
	}
	if ok, err := a.RevertTaskAssignmentIfMatches(ctx, "b1", "pi_1"); err != nil || !ok {
		t.Errorf("RevertTaskAssignmentIfMatches(current) = %v, %v", ok, err)
	}
	task, _ := store.GetTask(ctx, "t1")
	if task.Status != models.TaskOpen {
		t.Errorf("task status = %s, want OPEN", task.Status)
	}
}

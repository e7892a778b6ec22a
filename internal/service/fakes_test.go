package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/apperror"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/interfaces"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/lock"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/marketplace"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/repository/memory"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/webhook"
)

type fakeProcessor struct {
	mu        sync.Mutex
	seq       int
	captured  map[string]bool
	cancelled []string
	transfers []models.TransferRequest
	refunds   []models.RefundRequest
	authKeys  []string

	// authStarted and authRelease, when set, make CreateAuthorization block.
	authStarted chan struct{}
	authRelease chan struct{}
	captureErr  error
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{captured: make(map[string]bool)}
}

func (p *fakeProcessor) CreateAuthorization(_ context.Context, req models.AuthorizationRequest) (*models.Intent, error) {
	if p.authStarted != nil {
		p.authStarted <- struct{}{}
		<-p.authRelease
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.authKeys = append(p.authKeys, req.IdempotencyKey)
	id := fmt.Sprintf("pi_%d", p.seq)
	return &models.Intent{ID: id, ClientSecret: id + "_secret", Status: "requires_payment_method", Amount: req.Amount, Metadata: req.Metadata}, nil
}

func (p *fakeProcessor) Capture(_ context.Context, intentID string) (*models.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.captureErr != nil {
		return nil, p.captureErr
	}
	if p.captured[intentID] {
		return nil, apperror.Upstream(errors.New("This PaymentIntent could not be captured because it has a status of succeeded."))
	}
	p.captured[intentID] = true
	return &models.Intent{ID: intentID, Status: "succeeded", LatestChargeID: "ch_" + intentID}, nil
}

func (p *fakeProcessor) CancelAuthorization(_ context.Context, intentID string) (*models.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, intentID)
	return &models.Intent{ID: intentID, Status: "canceled"}, nil
}

func (p *fakeProcessor) CreateTransfer(_ context.Context, req models.TransferRequest) (*models.Transfer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transfers = append(p.transfers, req)
	return &models.Transfer{ID: fmt.Sprintf("tr_%d", len(p.transfers)), Amount: req.Amount}, nil
}

func (p *fakeProcessor) CreateRefund(_ context.Context, req models.RefundRequest) (*models.Refund, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunds = append(p.refunds, req)
	return &models.Refund{ID: fmt.Sprintf("re_%d", len(p.refunds)), Status: "succeeded"}, nil
}

func (p *fakeProcessor) RetrieveChargeForIntent(_ context.Context, intentID string) (string, error) {
	return "ch_" + intentID, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.PaymentEvent
}

func (f *fakePublisher) PublishPaymentEvent(_ context.Context, ev models.PaymentEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) kinds() []models.NotificationKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.NotificationKind, 0, len(f.sent))
	for _, n := range f.sent {
		out = append(out, n.Kind)
	}
	return out
}

// failingAcceptAdapter simulates an acceptance transaction that does not commit.
type failingAcceptAdapter struct {
	*marketplace.Adapter
	err error
}

func (a failingAcceptAdapter) AcceptBid(context.Context, string, string) error { return a.err }

type testEnv struct {
	payments   *memory.PaymentStore
	market     *memory.MarketplaceStore
	processor  *fakeProcessor
	publisher  *fakePublisher
	notifier   *fakeNotifier
	locker     *lock.LocalLocker
	orch       *Orchestrator
	dispatcher *WebhookDispatcher
}

// newTestEnv seeds task t1 owned by poster p1 with two bids: b1 from f1 (100.00) and b2 from f2 (80.00).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		payments:  memory.NewPaymentStore(),
		market:    memory.NewMarketplaceStore(),
		processor: newFakeProcessor(),
		publisher: &fakePublisher{},
		notifier:  &fakeNotifier{},
		locker:    lock.NewLocalLocker(),
	}
	now := time.Now().UTC()
	env.market.PutUser(models.User{ID: "p1"})
	env.market.PutUser(models.User{ID: "f1", PayoutAccountID: "acct_f1", PayoutsEnabled: true})
	env.market.PutUser(models.User{ID: "f2", PayoutAccountID: "acct_f2", PayoutsEnabled: true})
	env.market.PutTask(models.Task{ID: "t1", PosterID: "p1", Title: "Logo design", Status: models.TaskOpen, CreatedAt: now})
	env.market.PutBid(models.Bid{ID: "b1", TaskID: "t1", FreelancerID: "f1", Amount: decimal.NewFromInt(100), Status: models.BidPending, CreatedAt: now})
	env.market.PutBid(models.Bid{ID: "b2", TaskID: "t1", FreelancerID: "f2", Amount: decimal.NewFromInt(80), Status: models.BidPending, CreatedAt: now})
	env.build(marketplace.NewAdapter(env.market))
	return env
}

func (env *testEnv) build(domain interfaces.DomainAdapter) {
	env.orch = NewOrchestrator(Dependencies{
		Payments:  env.payments,
		Domain:    domain,
		Processor: env.processor,
		Publisher: env.publisher,
		Notifier:  env.notifier,
		Locker:    env.locker,
	}, Options{PlatformFeePercent: decimal.NewFromInt(10), Currency: "usd", LockTTL: time.Minute})
	env.dispatcher = NewWebhookDispatcher(env.orch, env.locker)
}

func (env *testEnv) bid(t *testing.T, id string) *models.Bid {
	t.Helper()
	b, err := env.market.GetBid(context.Background(), id)
	if err != nil {
		t.Fatalf("GetBid(%s) error = %v", id, err)
	}
	return b
}

func (env *testEnv) task(t *testing.T, id string) *models.Task {
	t.Helper()
	task, err := env.market.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("GetTask(%s) error = %v", id, err)
	}
	return task
}

func (env *testEnv) payment(t *testing.T, id string) *models.Payment {
	t.Helper()
	p, err := env.payments.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s) error = %v", id, err)
	}
	return p
}

func intentEvent(id string, kind webhook.Type, intentID, bidID string) webhook.IntentEvent {
	meta := map[string]string{}
	if bidID != "" {
		meta[models.MetaBidID] = bidID
	}
	return webhook.IntentEvent{ID: id, Kind: kind, IntentID: intentID, Metadata: meta}
}

// Package memory holds in-process stores with the same atomicity guarantees as the
// Postgres repositories. They back STORE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/apperror"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
)

type PaymentStore struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
	now      func() time.Time
}

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{payments: make(map[string]*models.Payment), now: time.Now}
}

func (s *PaymentStore) Create(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.ID]; exists {
		return apperror.Conflict("payment %s already exists", p.ID)
	}
	for _, existing := range s.payments {
		if existing.BidID == p.BidID && !existing.Status.IsTerminal() {
			return apperror.Conflict("payment already exists for bid %s", p.BidID)
		}
	}
	s.payments[p.ID] = clonePayment(p)
	return nil
}

func (s *PaymentStore) GetByID(_ context.Context, paymentID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[paymentID]
	if !ok {
		return nil, apperror.NotFound("payment %s not found", paymentID)
	}
	return clonePayment(p), nil
}

func (s *PaymentStore) ListByIntentID(_ context.Context, intentID string) ([]*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Payment
	for _, p := range s.payments {
		if p.ProcessorIntentID == intentID {
			out = append(out, clonePayment(p))
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *PaymentStore) FindActiveByBidID(_ context.Context, bidID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.payments {
		if p.BidID == bidID && !p.Status.IsTerminal() {
			return clonePayment(p), nil
		}
	}
	return nil, nil
}

func (s *PaymentStore) TransitionStatus(_ context.Context, paymentID string, from []models.PaymentStatus, to models.PaymentStatus, patch models.PaymentPatch) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[paymentID]
	if !ok || !slices.Contains(from, p.Status) {
		return 0, nil
	}
	p.PreviousStatus = p.Status
	p.Status = to
	if patch.ProcessorTransferID != "" {
		p.ProcessorTransferID = patch.ProcessorTransferID
	}
	if patch.ProcessorRefundID != "" {
		p.ProcessorRefundID = patch.ProcessorRefundID
	}
	if patch.RefundReason != "" {
		p.RefundReason = patch.RefundReason
	}
	p.UpdatedAt = s.now()
	return 1, nil
}

func (s *PaymentStore) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Payment
	for _, p := range s.payments {
		if p.Status == models.PaymentPending && p.CreatedAt.Before(createdBefore) {
			out = append(out, clonePayment(p))
		}
	}
	sortByCreated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clonePayment(p *models.Payment) *models.Payment {
	c := *p
	c.Metadata = make(map[string]string, len(p.Metadata))
	for k, v := range p.Metadata {
		c.Metadata[k] = v
	}
	return &c
}

func sortByCreated(payments []*models.Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		return payments[i].CreatedAt.Before(payments[j].CreatedAt)
	})
}

package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/apperror"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
)

// MarketplaceStore keeps users, tasks and bids behind one mutex so that every
// method is a single atomic step, matching the transactional Postgres repository.
type MarketplaceStore struct {
	mu    sync.Mutex
	users map[string]*models.User
	tasks map[string]*models.Task
	bids  map[string]*models.Bid
	now   func() time.Time
}

func NewMarketplaceStore() *MarketplaceStore {
	return &MarketplaceStore{
		users: make(map[string]*models.User),
		tasks: make(map[string]*models.Task),
		bids:  make(map[string]*models.Bid),
		now:   time.Now,
	}
}

func (s *MarketplaceStore) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

func (s *MarketplaceStore) PutTask(t models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = &t
}

func (s *MarketplaceStore) PutBid(b models.Bid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bids[b.ID] = &b
}

func (s *MarketplaceStore) GetBid(_ context.Context, bidID string) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bids[bidID]
	if !ok {
		return nil, apperror.NotFound("bid %s not found", bidID)
	}
	c := *b
	return &c, nil
}

func (s *MarketplaceStore) GetTask(_ context.Context, taskID string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return nil, apperror.NotFound("task %s not found", taskID)
	}
	c := *t
	return &c, nil
}

func (s *MarketplaceStore) GetUser(_ context.Context, userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, apperror.NotFound("user %s not found", userID)
	}
	c := *u
	return &c, nil
}

func (s *MarketplaceStore) AcceptBid(_ context.Context, bidID string, from models.BidStatus, intentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bids[bidID]
	if !ok || b.Status != from {
		return apperror.Conflict("bid already processed")
	}
	for _, other := range s.bids {
		if other.TaskID == b.TaskID && other.ID != b.ID && other.Status == models.BidAccepted {
			return apperror.Conflict("task already has an accepted bid")
		}
	}
	t, ok := s.tasks[b.TaskID]
	if !ok {
		return apperror.NotFound("task %s not found", b.TaskID)
	}

	now := s.now()
	b.Status = models.BidAccepted
	b.PaymentIntentID = intentID
	b.UpdatedAt = now
	s.assignTask(t, b.FreelancerID, intentID, now)
	s.rejectSiblings(b, now)
	return nil
}

func (s *MarketplaceStore) ReassertAcceptance(_ context.Context, bidID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bids[bidID]
	if !ok || b.Status != models.BidAccepted {
		return apperror.Conflict("bid %s is no longer accepted", bidID)
	}
	t, ok := s.tasks[b.TaskID]
	if !ok {
		return apperror.NotFound("task %s not found", b.TaskID)
	}

	now := s.now()
	s.assignTask(t, b.FreelancerID, b.PaymentIntentID, now)
	s.rejectSiblings(b, now)
	return nil
}

func (s *MarketplaceStore) assignTask(t *models.Task, freelancerID, intentID string, now time.Time) {
	if t.Status == models.TaskInProgress && t.AssignedTo == freelancerID && t.PaymentIntentID == intentID {
		return
	}
	t.Status = models.TaskInProgress
	t.AssignedTo = freelancerID
	t.PaymentIntentID = intentID
	t.UpdatedAt = now
}

func (s *MarketplaceStore) rejectSiblings(accepted *models.Bid, now time.Time) {
	for _, other := range s.bids {
		if other.TaskID != accepted.TaskID || other.ID == accepted.ID {
			continue
		}
		if other.Status == models.BidPending || other.Status == models.BidPaymentPending {
			other.Status = models.BidRejected
			other.UpdatedAt = now
		}
	}
}

func (s *MarketplaceStore) CloseAssignment(_ context.Context, bidID string, bidFrom []models.BidStatus, bidStatus models.BidStatus, taskStatus models.TaskStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bids[bidID]
	if !ok || !slices.Contains(bidFrom, b.Status) {
		return false, nil
	}
	now := s.now()
	b.Status = bidStatus
	b.UpdatedAt = now

	t, ok := s.tasks[b.TaskID]
	if ok && t.Status == models.TaskInProgress && t.AssignedTo == b.FreelancerID && t.PaymentIntentID == b.PaymentIntentID {
		t.Status = taskStatus
		if taskStatus == models.TaskOpen {
			t.AssignedTo = ""
			t.PaymentIntentID = ""
		}
		t.UpdatedAt = now
	}
	return true, nil
}

func (s *MarketplaceStore) ResetBidToPending(_ context.Context, bidID, intentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bids[bidID]
	if !ok || b.PaymentIntentID != intentID {
		return false, nil
	}
	b.Status = models.BidPending
	b.PaymentIntentID = ""
	b.UpdatedAt = s.now()
	return true, nil
}

func (s *MarketplaceStore) RevertTaskAssignment(_ context.Context, taskID, freelancerID, intentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok || t.Status != models.TaskInProgress || t.AssignedTo != freelancerID || t.PaymentIntentID != intentID {
		return false, nil
	}
	t.Status = models.TaskOpen
	t.AssignedTo = ""
	t.PaymentIntentID = ""
	t.UpdatedAt = s.now()
	return true, nil
}

func (s *MarketplaceStore) SetPayoutStatus(_ context.Context, payoutAccountID string, enabled bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, u := range s.users {
		if u.PayoutAccountID == payoutAccountID {
			u.PayoutsEnabled = enabled
			changed = true
		}
	}
	return changed, nil
}

package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/interfaces"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/telemetry"
)

const staleHoldBatch = 500

// Reconciler reports holds that stayed PENDING past the threshold. It does not change
// any state; resolving a stale hold is left to an operator.
type Reconciler struct {
	payments interfaces.PaymentRepository
	after    time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewReconciler(payments interfaces.PaymentRepository, after, interval time.Duration) *Reconciler {
	return &Reconciler{
		payments: payments,
		after:    after,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	telemetry.Logger.Info("Stale hold reconciler started",
		zap.Duration("interval", r.interval),
		zap.Duration("stale_after", r.after),
	)

	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			telemetry.Logger.Error("Stale hold sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep returns the number of stale holds found.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	stale, err := r.payments.ListStalePending(ctx, r.now().Add(-r.after), staleHoldBatch)
	if err != nil {
		return 0, err
	}
	telemetry.StaleHolds.Set(float64(len(stale)))
	for _, p := range stale {
		telemetry.Logger.Warn("Stale escrow hold",
			zap.String("payment_id", p.ID),
			zap.String("bid_id", p.BidID),
			zap.String("intent_id", p.ProcessorIntentID),
			zap.Time("created_at", p.CreatedAt),
		)
	}
	return len(stale), nil
}

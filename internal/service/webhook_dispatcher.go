package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/interfaces"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/telemetry"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/webhook"
)

const eventDedupTTL = 72 * time.Hour

// WebhookDispatcher routes decoded processor events to the orchestrator.
// Processed event ids are remembered to short-circuit redeliveries; handlers
// stay idempotent regardless, so a lost dedup record only costs repeated work.
type WebhookDispatcher struct {
	orchestrator *Orchestrator
	dedup        interfaces.DedupStore
}

func NewWebhookDispatcher(orchestrator *Orchestrator, dedup interfaces.DedupStore) *WebhookDispatcher {
	return &WebhookDispatcher{orchestrator: orchestrator, dedup: dedup}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, ev webhook.Event) error {
	eventType := string(ev.EventType())
	key := "event:" + ev.EventID()

	if ev.EventID() != "" {
		seen, err := d.dedup.Seen(ctx, key)
		if err != nil {
			telemetry.Logger.Warn("Event dedup lookup failed, processing anyway",
				zap.String("event_id", ev.EventID()),
				zap.Error(err),
			)
		} else if seen {
			telemetry.WebhookEvents.WithLabelValues(eventType, "duplicate").Inc()
			telemetry.Logger.Info("Duplicate webhook event skipped",
				zap.String("event_id", ev.EventID()),
				zap.String("type", eventType),
			)
			return nil
		}
	}

	if err := d.route(ctx, ev); err != nil {
		telemetry.WebhookEvents.WithLabelValues(eventType, "error").Inc()
		telemetry.Logger.Error("Webhook event processing failed",
			zap.String("event_id", ev.EventID()),
			zap.String("type", eventType),
			zap.Error(err),
		)
		return err
	}

	telemetry.WebhookEvents.WithLabelValues(eventType, "processed").Inc()
	if ev.EventID() != "" {
		if err := d.dedup.MarkSeen(ctx, key, eventDedupTTL); err != nil {
			telemetry.Logger.Warn("Failed to record processed event",
				zap.String("event_id", ev.EventID()),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (d *WebhookDispatcher) route(ctx context.Context, ev webhook.Event) error {
	switch e := ev.(type) {
	case webhook.IntentEvent:
		switch e.Kind {
		case webhook.TypeCapturableUpdated:
			return d.orchestrator.OnCapturable(ctx, e)
		case webhook.TypeAuthorizationSucceeded:
			return d.orchestrator.OnAuthorizationSucceeded(ctx, e)
		case webhook.TypeAuthorizationFailed:
			return d.orchestrator.OnAuthorizationFailed(ctx, e)
		case webhook.TypeCanceled:
			return d.orchestrator.OnCanceled(ctx, e)
		}
		return fmt.Errorf("%w: %s", webhook.ErrUnsupportedEventType, e.Kind)
	case webhook.AccountEvent:
		return d.orchestrator.OnPayoutAccountUpdated(ctx, e)
	default:
		return fmt.Errorf("%w: %T", webhook.ErrUnsupportedEventType, ev)
	}
}

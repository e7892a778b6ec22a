package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/telemetry"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/webhook"
)

const maxWebhookBody = 1 << 16

// WebhookVerifier authenticates a raw processor payload.
type WebhookVerifier interface {
	Verify(payload []byte, signature string) (webhook.Envelope, error)
}

type EventDispatcher interface {
	Dispatch(ctx context.Context, ev webhook.Event) error
}

type WebhookHandler struct {
	verifier   WebhookVerifier
	dispatcher EventDispatcher
}

func NewWebhookHandler(verifier WebhookVerifier, dispatcher EventDispatcher) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, dispatcher: dispatcher}
}

// Handle answers 2xx only when the event was processed or deliberately dropped,
// so the processor redelivers anything that failed.
func (h *WebhookHandler) Handle(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	env, err := h.verifier.Verify(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		telemetry.Logger.Warn("Webhook verification failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	ev, err := webhook.Decode(env)
	if err != nil {
		outcome := "invalid"
		if errors.Is(err, webhook.ErrUnsupportedEventType) {
			outcome = "unsupported"
		}
		telemetry.WebhookEvents.WithLabelValues(env.Type, outcome).Inc()
		telemetry.Logger.Warn("Webhook event rejected",
			zap.String("event_id", env.ID),
			zap.String("type", env.Type),
			zap.Error(err),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.dispatcher.Dispatch(c.Request.Context(), ev); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed", "event_id": env.ID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "event_id": env.ID})
}

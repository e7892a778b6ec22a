package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/handlers"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/telemetry"
)

func NewRouter(escrow *handlers.EscrowHandler, webhooks *handlers.WebhookHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "escrow-orchestrator"})
	})

	// Escrow routes. Holds are opened only through bid acceptance.
	r.GET("/payments/:id", escrow.GetPayment)
	r.POST("/payments/:id/release", escrow.Release)
	r.POST("/payments/:id/refund", escrow.Refund)

	r.POST("/bids/:id/accept", escrow.AcceptBid)
	r.POST("/bids/:id/complete-acceptance", escrow.CompleteBidAcceptance)

	// Processor callbacks
	r.POST("/webhooks/stripe", webhooks.Handle)

	return r
}

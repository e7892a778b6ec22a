package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/service"
)

// EscrowService is the orchestrator surface exposed over HTTP.
type EscrowService interface {
	AcceptBid(ctx context.Context, bidID, posterID string) (*service.AcceptResult, error)
	CompleteBidAcceptance(ctx context.Context, bidID, posterID string) error
	Release(ctx context.Context, paymentID, requestingPosterID string) (*service.ReleaseResult, error)
	Refund(ctx context.Context, paymentID, requestingPosterID, reason string) (*service.RefundResult, error)
	GetPayment(ctx context.Context, paymentID, userID string) (*models.Payment, error)
}

type EscrowHandler struct {
	escrow EscrowService
}

func NewEscrowHandler(escrow EscrowService) *EscrowHandler {
	return &EscrowHandler{escrow: escrow}
}

type paymentResponse struct {
	ID                  string               `json:"id"`
	TaskID              string               `json:"task_id"`
	BidID               string               `json:"bid_id"`
	PosterID            string               `json:"poster_id"`
	FreelancerID        string               `json:"freelancer_id"`
	Amount              decimal.Decimal      `json:"amount"`
	PlatformFee         decimal.Decimal      `json:"platform_fee"`
	FreelancerAmount    decimal.Decimal      `json:"freelancer_amount"`
	Currency            string               `json:"currency"`
	Status              models.PaymentStatus `json:"status"`
	ProcessorIntentID   string               `json:"processor_intent_id"`
	ProcessorTransferID string               `json:"processor_transfer_id,omitempty"`
	RefundReason        string               `json:"refund_reason,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

func toPaymentResponse(p *models.Payment) paymentResponse {
	return paymentResponse{
		ID:                  p.ID,
		TaskID:              p.TaskID,
		BidID:               p.BidID,
		PosterID:            p.PosterID,
		FreelancerID:        p.FreelancerID,
		Amount:              p.Amount,
		PlatformFee:         p.PlatformFee,
		FreelancerAmount:    p.FreelancerAmount,
		Currency:            p.Currency,
		Status:              p.Status,
		ProcessorIntentID:   p.ProcessorIntentID,
		ProcessorTransferID: p.ProcessorTransferID,
		RefundReason:        p.RefundReason,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func (h *EscrowHandler) AcceptBid(c *gin.Context) {
	posterID, ok := actingUser(c)
	if !ok {
		return
	}
	result, err := h.escrow.AcceptBid(c.Request.Context(), c.Param("id"), posterID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bid_id":        result.BidID,
		"task_id":       result.TaskID,
		"freelancer_id": result.FreelancerID,
		"payment":       toPaymentResponse(result.Payment),
		"client_secret": result.ClientSecret,
	})
}

func (h *EscrowHandler) CompleteBidAcceptance(c *gin.Context) {
	posterID, ok := actingUser(c)
	if !ok {
		return
	}
	bidID := c.Param("id")
	if err := h.escrow.CompleteBidAcceptance(c.Request.Context(), bidID, posterID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bid_id": bidID, "status": models.BidAccepted})
}

func (h *EscrowHandler) GetPayment(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}
	payment, err := h.escrow.GetPayment(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(payment))
}

func (h *EscrowHandler) Release(c *gin.Context) {
	posterID, ok := actingUser(c)
	if !ok {
		return
	}
	result, err := h.escrow.Release(c.Request.Context(), c.Param("id"), posterID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payment_id":        result.PaymentID,
		"transfer_id":       result.TransferID,
		"freelancer_amount": result.FreelancerAmount,
		"platform_fee":      result.PlatformFee,
	})
}

type refundRequest struct {
	Reason string `json:"reason"`
}

func (h *EscrowHandler) Refund(c *gin.Context) {
	posterID, ok := actingUser(c)
	if !ok {
		return
	}
	var req refundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	result, err := h.escrow.Refund(c.Request.Context(), c.Param("id"), posterID, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payment_id":      result.PaymentID,
		"refund_id":       result.RefundID,
		"amount_refunded": result.AmountRefunded,
	})
}

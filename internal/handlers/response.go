package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/apperror"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/telemetry"
)

const userHeader = "X-User-ID"

func statusFor(code apperror.Code) int {
	switch code {
	case apperror.CodeNotFound:
		return http.StatusNotFound
	case apperror.CodeBadRequest:
		return http.StatusBadRequest
	case apperror.CodeForbidden:
		return http.StatusForbidden
	case apperror.CodeConflict:
		return http.StatusConflict
	case apperror.CodeUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		telemetry.Logger.Error("Unhandled error",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": apperror.CodeInternal})
		return
	}
	c.JSON(statusFor(appErr.Code), gin.H{"error": appErr.Message, "code": appErr.Code})
}

func actingUser(c *gin.Context) (string, bool) {
	userID := c.GetHeader(userHeader)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing " + userHeader + " header"})
		return "", false
	}
	return userID, true
}

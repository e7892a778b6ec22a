package processor

import (
	"errors"
	"strings"

	stripe "github.com/stripe/stripe-go/v76"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/apperror"
)

// wrapError turns any processor failure into an UPSTREAM_ERROR carrying the processor message.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return apperror.Upstream(errors.New(stripeErr.Msg))
	}
	return apperror.Upstream(err)
}

// IsAlreadyCaptured reports whether a capture failed only because the intent was captured before,
// which happens when the capturable event is delivered more than once.
func IsAlreadyCaptured(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(apperror.MessageOf(err))
	if strings.Contains(msg, "already been captured") || strings.Contains(msg, "already captured") {
		return true
	}
	return strings.Contains(msg, "could not be captured") && strings.Contains(msg, "status of succeeded")
}

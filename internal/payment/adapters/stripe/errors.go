package stripe

import (
	"context"
	"errors"
	"net"
	"strings"

	paymentdomain "github.com/smallbiznis/finora/internal/payment/domain"
	stripe "github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

// fail normalizes SDK and transport errors into a ProviderError.
func (a *Adapter) fail(operation string, err error) error {
	providerErr := &paymentdomain.ProviderError{
		Provider:  providerName,
		Operation: operation,
		Err:       err,
	}

	var stripeErr *stripe.Error
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) || timeoutMessage(err):
		providerErr.Code = paymentdomain.ProviderCodeTimeout
		providerErr.Message = "payment provider did not respond in time"
	case errors.As(err, &stripeErr):
		providerErr.Code = firstNonEmpty(string(stripeErr.Code), string(stripeErr.Type), paymentdomain.ProviderCodeUnknown)
		providerErr.Message = strings.TrimSpace(stripeErr.Msg)
		providerErr.StatusCode = stripeErr.HTTPStatusCode
	default:
		providerErr.Code = paymentdomain.ProviderCodeUnavailable
		providerErr.Message = "payment provider unavailable"
	}

	a.log.Warn("stripe call failed",
		zap.String("operation", operation),
		zap.String("code", providerErr.Code),
		zap.Int("status", providerErr.StatusCode),
		zap.Error(err),
	)
	return providerErr
}

func (a *Adapter) invalid(operation, message string) error {
	return &paymentdomain.ProviderError{
		Provider:  providerName,
		Operation: operation,
		Code:      "invalid_request",
		Message:   message,
	}
}

func timeoutMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "client.timeout exceeded")
}

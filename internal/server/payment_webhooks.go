package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/finora/internal/observability/context"
	paymentdomain "github.com/smallbiznis/finora/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/finora/internal/subscription/domain"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 1 << 20

var signatureHeaders = map[string]string{
	"stripe": "Stripe-Signature",
}

// HandlePaymentWebhook acknowledges every verified delivery. Only requests that
// fail signature verification or name an unconfigured provider are rejected.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	header, ok := signatureHeaders[provider]
	if !ok {
		AbortWithError(c, subscriptiondomain.ErrUnknownProvider)
		return
	}
	c.Request = c.Request.WithContext(obscontext.WithProvider(c.Request.Context(), provider))

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.subscriptionSvc.HandleWebhookEvent(c.Request.Context(), provider, payload, c.GetHeader(header))
	switch {
	case err == nil:
	case errors.Is(err, paymentdomain.ErrInvalidSignature),
		errors.Is(err, subscriptiondomain.ErrUnknownProvider):
		AbortWithError(c, err)
		return
	default:
		s.log.Error("webhook handling failed", zap.String("provider", provider), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

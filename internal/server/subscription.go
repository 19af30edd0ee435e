package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/finora/internal/observability/context"
	subscriptiondomain "github.com/smallbiznis/finora/internal/subscription/domain"
)

type subscribeRequest struct {
	Plan string `json:"plan" binding:"required"`
}

type upgradeRequest struct {
	PriceRef string `json:"price_ref" binding:"required"`
}

type paymentMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id" binding:"required"`
}

func (s *Server) Subscribe(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.Subscribe(c.Request.Context(), account, subscriptiondomain.SubscribeRequest{
		Plan: strings.TrimSpace(req.Plan),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Subscription != nil {
		status = http.StatusCreated
		tagSubscription(c, resp.Subscription.ID, resp.Subscription.Plan)
	} else {
		tagSubscription(c, "", strings.ToLower(strings.TrimSpace(req.Plan)))
	}
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.subscriptionSvc.List(c.Request.Context(), account.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetActiveSubscription(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.subscriptionSvc.GetActive(c.Request.Context(), account.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tagSubscription(c, resp.ID, resp.Plan)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSubscriptionState(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.subscriptionSvc.State(c.Request.Context(), account.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpgradeSubscription(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req upgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.Upgrade(c.Request.Context(), account, subscriptiondomain.UpgradeRequest{
		PriceRef: strings.TrimSpace(req.PriceRef),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tagSubscription(c, resp.ID, resp.Plan)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.subscriptionSvc.Cancel(c.Request.Context(), account)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tagSubscription(c, resp.ID, resp.Plan)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdatePaymentMethod(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req paymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.subscriptionSvc.UpdatePaymentMethod(c.Request.Context(), account, subscriptiondomain.UpdatePaymentMethodRequest{
		PaymentMethodID: strings.TrimSpace(req.PaymentMethodID),
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListAccountSubscriptions lists another account's records for staff roles.
func (s *Server) ListAccountSubscriptions(c *gin.Context) {
	target, err := s.accountSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.subscriptionSvc.List(c.Request.Context(), target.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// tagSubscription records the ledger record a request acted on for tracing.
func tagSubscription(c *gin.Context, subscriptionID, plan string) {
	c.Request = c.Request.WithContext(obscontext.WithSubscription(c.Request.Context(), subscriptionID, plan))
}

package authorization

import (
	"context"
	"errors"

	accountdomain "github.com/smallbiznis/finora/internal/account/domain"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

const (
	ObjectSubscription  = "subscription"
	ObjectPaymentMethod = "payment_method"
)

const (
	ActionSubscriptionManage  = "subscription.manage"
	ActionSubscriptionView    = "subscription.view"
	ActionSubscriptionViewAny = "subscription.view_any"
	ActionPaymentMethodManage = "payment_method.manage"
)

type Service interface {
	// Authorize returns ErrForbidden unless role holds action on object.
	Authorize(ctx context.Context, role accountdomain.Role, object string, action string) error
}

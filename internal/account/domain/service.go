package domain

import (
	"context"
	"errors"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrAccountNotFound = errors.New("account_not_found")
	ErrInvalidAccount  = errors.New("invalid_account")
)

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	// Authenticate resolves a bearer token issued by the identity service.
	Authenticate(ctx context.Context, token string) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
}

type accountContextKey struct{}

// WithAccount attaches the authenticated account to ctx.
func WithAccount(ctx context.Context, account Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, account)
}

// FromContext returns the authenticated account, if any.
func FromContext(ctx context.Context) (Account, bool) {
	if ctx == nil {
		return Account{}, false
	}
	account, ok := ctx.Value(accountContextKey{}).(Account)
	return account, ok && account.ID != 0
}

package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_config")
)

const (
	ProviderCodeTimeout     = "timeout"
	ProviderCodeUnavailable = "unavailable"
	ProviderCodeUnknown     = "provider_error"
)

// ProviderError is the single error shape returned by gateway operations.
type ProviderError struct {
	Provider   string
	Operation  string
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	code := strings.TrimSpace(e.Code)
	if code == "" {
		code = ProviderCodeUnknown
	}
	if e.Operation == "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, code, e.Message)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Provider, e.Operation, code, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ErrorCode exposes the provider code for metric classification.
func (e *ProviderError) ErrorCode() string { return e.Code }

// AsProviderError unwraps err into a *ProviderError.
func AsProviderError(err error) (*ProviderError, bool) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr, true
	}
	return nil, false
}

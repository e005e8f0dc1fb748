package service

import (
	"errors"
	"strings"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthenticated = errors.New("authentication required")
	ErrNotFound        = errors.New("order not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrForbidden       = errors.New("you don't have access to this order")
	ErrInvalidMethod   = errors.New("order was placed with a different payment method")
	ErrOrderClosed     = errors.New("order is no longer awaiting payment")
	// ErrGatewayUnavailable and ErrPersistence are retryable.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment gateway rejected the request")
	ErrPersistence        = errors.New("order store unavailable")
)

// ValidationError lists every problem found in a request.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + strings.Join(e.Details, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsRetryable reports whether the caller may retry the same request.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable) || errors.Is(err, ErrPersistence)
}

type validator struct {
	details []string
}

func (v *validator) add(detail string) {
	v.details = append(v.details, detail)
}

func (v *validator) err() error {
	if len(v.details) == 0 {
		return nil
	}
	return &ValidationError{Details: v.details}
}

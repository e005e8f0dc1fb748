// Package gateway talks to the hosted payment provider's REST API.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrUnavailable covers transport failures, timeouts, 5xx responses and an open breaker.
	ErrUnavailable     = errors.New("payment gateway unavailable")
	ErrPaymentNotFound = errors.New("payment not found at gateway")
	ErrRejected        = errors.New("payment gateway rejected the request")
)

// Payment statuses reported by the provider.
const (
	PaymentStatusCreated    = "created"
	PaymentStatusAuthorized = "authorized"
	PaymentStatusCaptured   = "captured"
	PaymentStatusRefunded   = "refunded"
	PaymentStatusFailed     = "failed"
)

type Client interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*Payment, error)
	// ConnectionParams returns the public key id given to the browser checkout.
	ConnectionParams() string
}

type CreateOrderRequest struct {
	AmountMinorUnits int64
	Currency         string
	Receipt          string
	Notes            map[string]string
}

type Order struct {
	ID               string
	AmountMinorUnits int64
	Currency         string
	Receipt          string
	Status           string
}

type Payment struct {
	ID               string
	OrderID          string
	AmountMinorUnits int64
	Currency         string
	Status           string
	Method           string
	Email            string
	Contact          string
	VPA              string
	Notes            map[string]string
	CreatedAt        time.Time
}

// IsSuccessful reports whether the provider considers the money taken.
func (p *Payment) IsSuccessful() bool {
	return p.Status == PaymentStatusCaptured || p.Status == PaymentStatusAuthorized
}

// Notes arrive as an object, or as an empty array when none were set.
type notes map[string]string

func (n *notes) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		*n = notes{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := make(notes, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	*n = out
	return nil
}

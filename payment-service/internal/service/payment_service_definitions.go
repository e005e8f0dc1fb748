package service

import (
	"time"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Actor is the authenticated caller.
type Actor struct {
	UserID string
	Email  string
	Name   string
}

type ItemInput struct {
	Kind      domain.ItemKind
	RefID     string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Image     string
}

type CreateOrderRequest struct {
	Items           []ItemInput
	ShippingAddress domain.ShippingAddress
}

type CreateOrderResult struct {
	Order            *domain.Order
	GatewayOrderID   string
	AmountMinorUnits int64
	Currency         string
	KeyID            string
}

type VerifyPaymentRequest struct {
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

type CreateDirectTransferRequest struct {
	Items           []ItemInput
	ShippingAddress domain.ShippingAddress
	Handle          string
}

type CreateDirectTransferResult struct {
	Order          *domain.Order
	GatewayOrderID string
	DeepLink       string
	KeyID          string
}

type VerifyDirectTransferRequest struct {
	OrderID        string
	PaymentID      string
	GatewayOrderID string
	Signature      string
}

// Verification failure reasons.
const (
	ReasonSignatureMismatch = "signature_mismatch"
	ReasonOrderMismatch     = "gateway_order_mismatch"
	ReasonAmountMismatch    = "amount_mismatch"
	ReasonPaymentFailed     = "payment_failed"
	ReasonPaymentPending    = "payment_pending"
	ReasonPaymentNotFound   = "payment_not_found"
)

// VerifyResult is the outcome of a verification attempt. A false Verified is a
// normal result, not an error.
type VerifyResult struct {
	Order    *domain.Order
	Verified bool
	Reason   string
}

type PaymentStatusView struct {
	PaymentStatus domain.PaymentStatus
	PaymentMethod domain.PaymentMethod
	Status        domain.OrderStatus
	TotalAmount   decimal.Decimal
}

type PaymentDetails struct {
	ID               string
	OrderID          string
	GatewayOrderID   string
	Amount           decimal.Decimal
	AmountMinorUnits int64
	Currency         string
	Status           string
	Method           string
	Email            string
	Contact          string
	VPA              string
	CreatedAt        time.Time
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/domain"
	"github.com/sirupsen/logrus"
)

const maxHandleLength = 255

// CreateDirectTransferPayment is CreateOrder for UPI: the order records the
// payer's handle and the result carries a upi://pay deep link.
func (s *PaymentService) CreateDirectTransferPayment(ctx context.Context, req CreateDirectTransferRequest, actor Actor) (*CreateDirectTransferResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	handle := strings.TrimSpace(req.Handle)
	items, err := validateCheckout(req.Items, req.ShippingAddress)
	if handle == "" || len(handle) > maxHandleLength {
		detail := "upiVPA is required"
		if handle != "" {
			detail = fmt.Sprintf("upiVPA must be at most %d characters", maxHandleLength)
		}
		var verr *ValidationError
		if errors.As(err, &verr) {
			verr.Details = append(verr.Details, detail)
		} else {
			err = &ValidationError{Details: []string{detail}}
		}
	}
	if err != nil {
		return nil, err
	}

	order := domain.NewOrder(actor.UserID, items, normalizeAddress(req.ShippingAddress), domain.PaymentMethodUPI, s.cfg.Currency)
	order.PayerHandle = handle

	order, err = s.persistAndOpen(ctx, order, actor)
	if err != nil {
		return nil, err
	}

	return &CreateDirectTransferResult{
		Order:          order,
		GatewayOrderID: order.GatewayOrderID,
		DeepLink:       s.deepLink(order),
		KeyID:          s.gateway.ConnectionParams(),
	}, nil
}

// deepLink builds the payment-app URI: payee handle, payee name, amount,
// currency and a note naming the receipt.
func (s *PaymentService) deepLink(order *domain.Order) string {
	q := url.Values{}
	q.Set("pa", s.cfg.MerchantUPI)
	q.Set("pn", s.cfg.MerchantName)
	q.Set("am", order.TotalAmount.StringFixed(2))
	q.Set("cu", order.Currency)
	q.Set("tn", "Payment for order "+order.ReceiptNumber)
	return "upi://pay?" + strings.ReplaceAll(q.Encode(), "+", "%20")
}

// VerifyDirectTransferPayment settles a UPI order from the gateway's payment
// record alone. The client signature is stored only if it verifies.
func (s *PaymentService) VerifyDirectTransferPayment(ctx context.Context, req VerifyDirectTransferRequest, actor Actor) (*VerifyResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	v := &validator{}
	if strings.TrimSpace(req.OrderID) == "" {
		v.add("orderId is required")
	}
	if strings.TrimSpace(req.PaymentID) == "" {
		v.add("paymentId is required")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	order, err := s.loadOwned(ctx, req.OrderID, actor)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != domain.PaymentMethodUPI {
		return nil, ErrInvalidMethod
	}

	switch order.PaymentStatus {
	case domain.PaymentStatusCompleted:
		return &VerifyResult{Order: order, Verified: true}, nil
	case domain.PaymentStatusFailed:
		return &VerifyResult{Order: order, Reason: ReasonPaymentFailed}, nil
	}

	log := s.logger(ctx).WithFields(logrus.Fields{
		"order_id":           order.ID,
		"gateway_payment_id": req.PaymentID,
	})

	if req.GatewayOrderID != "" && req.GatewayOrderID != order.GatewayOrderID {
		log.Warn("upi verification for a different gateway order")
		return s.fail(ctx, order, "", ReasonOrderMismatch)
	}

	payment, err := s.gateway.FetchPayment(ctx, req.PaymentID)
	if err != nil {
		mapped := gatewayError(err)
		if errors.Is(mapped, ErrPaymentNotFound) {
			log.Warn("upi payment unknown to gateway")
			return s.fail(ctx, order, "", ReasonPaymentNotFound)
		}
		log.WithError(err).Error("failed to fetch upi payment")
		return nil, mapped
	}

	outcome, reason := assessPayment(order, payment)
	switch outcome {
	case outcomePending:
		return &VerifyResult{Order: order, Reason: reason}, nil
	case outcomeFailed:
		log.WithField("reason", reason).Warn("upi payment does not match order")
		return s.fail(ctx, order, req.PaymentID, reason)
	}

	sig := ""
	if s.verifier.VerifyPayment(order.GatewayOrderID, req.PaymentID, req.Signature) {
		sig = req.Signature
	}
	return s.complete(ctx, order, req.PaymentID, sig)
}

package service

import (
	"context"
	"errors"
	"strings"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/domain"
	"github.com/sirupsen/logrus"
)

// VerifyPayment confirms a checkout callback. The signature must match the
// stored gateway order, and the gateway's payment record must agree on order,
// amount and currency before the order is completed.
func (s *PaymentService) VerifyPayment(ctx context.Context, req VerifyPaymentRequest, actor Actor) (*VerifyResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	v := &validator{}
	if strings.TrimSpace(req.OrderID) == "" {
		v.add("orderId is required")
	}
	if strings.TrimSpace(req.GatewayOrderID) == "" {
		v.add("gatewayOrderId is required")
	}
	if strings.TrimSpace(req.GatewayPaymentID) == "" {
		v.add("gatewayPaymentId is required")
	}
	if strings.TrimSpace(req.Signature) == "" {
		v.add("signature is required")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	order, err := s.loadOwned(ctx, req.OrderID, actor)
	if err != nil {
		return nil, err
	}

	authentic := req.GatewayOrderID == order.GatewayOrderID &&
		s.verifier.VerifyPayment(req.GatewayOrderID, req.GatewayPaymentID, req.Signature)

	log := s.logger(ctx).WithFields(logrus.Fields{
		"order_id":           order.ID,
		"gateway_payment_id": req.GatewayPaymentID,
	})

	switch order.PaymentStatus {
	case domain.PaymentStatusCompleted:
		// Repeat verification never changes a completed order.
		if authentic {
			return &VerifyResult{Order: order, Verified: true}, nil
		}
		return &VerifyResult{Order: order, Reason: ReasonSignatureMismatch}, nil
	case domain.PaymentStatusFailed:
		return &VerifyResult{Order: order, Reason: ReasonPaymentFailed}, nil
	}

	if !authentic {
		log.Warn("payment signature mismatch")
		return s.fail(ctx, order, "", ReasonSignatureMismatch)
	}

	payment, err := s.gateway.FetchPayment(ctx, req.GatewayPaymentID)
	if err != nil {
		mapped := gatewayError(err)
		if errors.Is(mapped, ErrPaymentNotFound) {
			log.Warn("signed payment unknown to gateway")
			return s.fail(ctx, order, "", ReasonPaymentNotFound)
		}
		// The order stays pending so the caller can retry.
		log.WithError(err).Error("failed to fetch payment for verification")
		return nil, mapped
	}

	outcome, reason := assessPayment(order, payment)
	switch outcome {
	case outcomePending:
		return &VerifyResult{Order: order, Reason: reason}, nil
	case outcomeFailed:
		log.WithField("reason", reason).Warn("gateway payment does not match order")
		return s.fail(ctx, order, req.GatewayPaymentID, reason)
	}

	return s.complete(ctx, order, req.GatewayPaymentID, req.Signature)
}

func (s *PaymentService) complete(ctx context.Context, order *domain.Order, paymentID, sig string) (*VerifyResult, error) {
	updated, err := s.transition(ctx, order, domain.CompletedPatch(order, paymentID, sig))
	if err != nil {
		return nil, err
	}
	return resultFor(updated, ""), nil
}

func (s *PaymentService) fail(ctx context.Context, order *domain.Order, paymentID, reason string) (*VerifyResult, error) {
	updated, err := s.transition(ctx, order, domain.FailedPatch(order, paymentID))
	if err != nil {
		return nil, err
	}
	return resultFor(updated, reason), nil
}

// resultFor reports the order as it stands, which may differ from the attempted
// transition when a concurrent writer got there first.
func resultFor(order *domain.Order, reason string) *VerifyResult {
	switch order.PaymentStatus {
	case domain.PaymentStatusCompleted:
		return &VerifyResult{Order: order, Verified: true}
	case domain.PaymentStatusFailed:
		if reason == "" {
			reason = ReasonPaymentFailed
		}
		return &VerifyResult{Order: order, Reason: reason}
	default:
		return &VerifyResult{Order: order, Reason: ReasonPaymentPending}
	}
}

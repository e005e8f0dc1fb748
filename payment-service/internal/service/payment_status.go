package service

import (
	"context"
	"strings"
	"time"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/domain"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/gateway"
)

const sharedLookupTimeout = 15 * time.Second

func (s *PaymentService) GetPaymentStatus(ctx context.Context, orderID string, actor Actor) (*PaymentStatusView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(orderID) == "" {
		return nil, &ValidationError{Details: []string{"orderId is required"}}
	}

	order, err := s.loadOwned(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	return &PaymentStatusView{
		PaymentStatus: order.PaymentStatus,
		PaymentMethod: order.PaymentMethod,
		Status:        order.Status,
		TotalAmount:   order.TotalAmount,
	}, nil
}

// GetPaymentDetails returns the gateway's record for a payment made against one
// of the actor's orders. Concurrent lookups of the same payment share one gateway call.
func (s *PaymentService) GetPaymentDetails(ctx context.Context, paymentID string, actor Actor) (*PaymentDetails, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(paymentID) == "" {
		return nil, &ValidationError{Details: []string{"paymentId is required"}}
	}

	payment, err := s.fetchShared(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	orderID := payment.Notes["order_id"]
	if orderID == "" {
		return nil, ErrPaymentNotFound
	}
	order, err := s.loadOwned(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if payment.OrderID != order.GatewayOrderID {
		return nil, ErrForbidden
	}

	return &PaymentDetails{
		ID:               payment.ID,
		OrderID:          order.ID,
		GatewayOrderID:   payment.OrderID,
		Amount:           domain.FromMinorUnits(payment.AmountMinorUnits),
		AmountMinorUnits: payment.AmountMinorUnits,
		Currency:         payment.Currency,
		Status:           payment.Status,
		Method:           payment.Method,
		Email:            payment.Email,
		Contact:          payment.Contact,
		VPA:              payment.VPA,
		CreatedAt:        payment.CreatedAt,
	}, nil
}

// fetchShared runs one gateway lookup per payment id at a time. The shared call
// outlives any single caller; each caller stops waiting when its own ctx ends.
func (s *PaymentService) fetchShared(ctx context.Context, paymentID string) (*gateway.Payment, error) {
	ch := s.sfg.DoChan(paymentID, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLookupTimeout)
		defer cancel()
		return s.gateway.FetchPayment(shared, paymentID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			s.logger(ctx).WithError(res.Err).WithField("gateway_payment_id", paymentID).Warn("payment lookup failed")
			return nil, gatewayError(res.Err)
		}
		return res.Val.(*gateway.Payment), nil
	}
}

package service

import (
	"context"
	"strings"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/domain"
)

// RetryGatewayOrder opens the gateway order for a pending order whose first
// attempt failed. An order that already has one is returned as is.
func (s *PaymentService) RetryGatewayOrder(ctx context.Context, orderID string, actor Actor) (*CreateOrderResult, error) {
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
	order, err = s.reopen(ctx, order, actor.Email)
	if err != nil {
		return nil, err
	}
	return &CreateOrderResult{
		Order:            order,
		GatewayOrderID:   order.GatewayOrderID,
		AmountMinorUnits: order.AmountMinorUnits(),
		Currency:         order.Currency,
		KeyID:            s.gateway.ConnectionParams(),
	}, nil
}

// RecoverStaleOrder is the background variant of RetryGatewayOrder, run without a caller.
func (s *PaymentService) RecoverStaleOrder(ctx context.Context, order *domain.Order) error {
	_, err := s.reopen(ctx, order, "")
	return err
}

func (s *PaymentService) reopen(ctx context.Context, order *domain.Order, email string) (*domain.Order, error) {
	if order.PaymentStatus != domain.PaymentStatusPending {
		return nil, ErrOrderClosed
	}
	if order.GatewayOrderID != "" {
		return order, nil
	}
	s.logger(ctx).WithField("order_id", order.ID).Info("retrying gateway order creation")
	return s.requestGatewayOrder(ctx, order, email)
}

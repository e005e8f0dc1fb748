package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	maxItemsPerOrder = 100
	maxItemQuantity  = 1000
)

var (
	maxLineTotal = decimal.NewFromInt(10_000_000)
	// Fits NUMERIC(12,2) and the gateway's integer minor units.
	maxOrderTotal = decimal.NewFromInt(100_000_000)
)

// CreateOrder prices the items, persists a pending order and opens the matching gateway order.
func (s *PaymentService) CreateOrder(ctx context.Context, req CreateOrderRequest, actor Actor) (*CreateOrderResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	items, err := validateCheckout(req.Items, req.ShippingAddress)
	if err != nil {
		return nil, err
	}

	order := domain.NewOrder(actor.UserID, items, normalizeAddress(req.ShippingAddress), domain.PaymentMethodCard, s.cfg.Currency)
	order, err = s.persistAndOpen(ctx, order, actor)
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

// persistAndOpen stores a new order, then requests its gateway order. A gateway
// failure leaves the stored order pending without a gateway reference.
func (s *PaymentService) persistAndOpen(ctx context.Context, order *domain.Order, actor Actor) (*domain.Order, error) {
	if err := s.store.Create(ctx, order); err != nil {
		s.logger(ctx).WithError(err).Error("failed to persist order")
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.logger(ctx).WithFields(logrus.Fields{
		"order_id":       order.ID,
		"receipt":        order.ReceiptNumber,
		"user_id":        order.UserID,
		"payment_method": order.PaymentMethod,
		"total":          order.TotalAmount.StringFixed(2),
	}).Info("order created")

	return s.requestGatewayOrder(ctx, order, actor.Email)
}

func validateCheckout(inputs []ItemInput, address domain.ShippingAddress) ([]domain.OrderItem, error) {
	v := &validator{}
	if len(inputs) == 0 {
		v.add("items must not be empty")
	}
	if len(inputs) > maxItemsPerOrder {
		v.add(fmt.Sprintf("at most %d items per order", maxItemsPerOrder))
	}

	items := make([]domain.OrderItem, 0, len(inputs))
	for i, in := range inputs {
		kind := in.Kind
		if kind == "" {
			kind = domain.ItemKindProduct
		}
		if kind != domain.ItemKindProduct && kind != domain.ItemKindBundle {
			v.add(fmt.Sprintf("items[%d].kind must be product or bundle", i))
		}
		if strings.TrimSpace(in.RefID) == "" {
			v.add(fmt.Sprintf("items[%d].id is required", i))
		}
		if strings.TrimSpace(in.Name) == "" {
			v.add(fmt.Sprintf("items[%d].name is required", i))
		}
		if in.Quantity < 1 {
			v.add(fmt.Sprintf("items[%d].quantity must be at least 1", i))
		}
		if in.Quantity > maxItemQuantity {
			v.add(fmt.Sprintf("items[%d].quantity must be at most %d", i, maxItemQuantity))
		}
		if in.UnitPrice.IsNegative() {
			v.add(fmt.Sprintf("items[%d].price must not be negative", i))
		}
		if !in.UnitPrice.Equal(in.UnitPrice.Round(2)) {
			v.add(fmt.Sprintf("items[%d].price must have at most 2 decimal places", i))
		}
		item := domain.OrderItem{
			Kind:      kind,
			RefID:     strings.TrimSpace(in.RefID),
			Name:      strings.TrimSpace(in.Name),
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
			Image:     in.Image,
		}
		if item.LineTotal().GreaterThan(maxLineTotal) {
			v.add(fmt.Sprintf("items[%d] line total must not exceed %s", i, maxLineTotal.StringFixed(2)))
		}
		items = append(items, item)
	}

	if len(v.details) == 0 && len(items) > 0 {
		if total := domain.CalculateTotals(items).Total; total.GreaterThan(maxOrderTotal) {
			v.add(fmt.Sprintf("order total must not exceed %s", maxOrderTotal.StringFixed(2)))
		}
	}

	for _, field := range address.MissingFields() {
		v.add(fmt.Sprintf("shippingAddress.%s is required", field))
	}

	if err := v.err(); err != nil {
		return nil, err
	}
	return items, nil
}

func normalizeAddress(a domain.ShippingAddress) domain.ShippingAddress {
	return domain.ShippingAddress{
		FullName:   strings.TrimSpace(a.FullName),
		Street:     strings.TrimSpace(a.Street),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.TrimSpace(a.Country),
	}
}

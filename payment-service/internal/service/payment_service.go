package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/domain"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/gateway"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/repository"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/signature"
	"github.com/AnujAga2005/ProductLab/pkg/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	Currency     string
	MerchantUPI  string
	MerchantName string
}

type PaymentService struct {
	store    repository.OrderStore
	gateway  gateway.Client
	verifier *signature.Verifier
	cfg      Config
	log      *logrus.Logger
	sfg      singleflight.Group
}

func NewPaymentService(
	store repository.OrderStore,
	gw gateway.Client,
	verifier *signature.Verifier,
	cfg Config,
	log *logrus.Logger) *PaymentService {

	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &PaymentService{
		store:    store,
		gateway:  gw,
		verifier: verifier,
		cfg:      cfg,
		log:      log,
	}
}

func (s *PaymentService) logger(ctx context.Context) *logrus.Entry {
	return logger.FromContext(ctx, s.log)
}

func requireActor(actor Actor) error {
	if strings.TrimSpace(actor.UserID) == "" {
		return ErrUnauthenticated
	}
	return nil
}

// loadOwned fetches the order and checks that actor owns it.
func (s *PaymentService) loadOwned(ctx context.Context, orderID string, actor Actor) (*domain.Order, error) {
	order, err := s.store.FindByID(ctx, orderID)
	if err != nil {
		return nil, storeError(err)
	}
	if !order.IsOwnedBy(actor.UserID) {
		s.logger(ctx).WithFields(logrus.Fields{
			"order_id": orderID,
			"user_id":  actor.UserID,
		}).Warn("order access denied")
		return nil, ErrForbidden
	}
	return order, nil
}

// transition moves a pending order to the state described by patch. Losing the
// race to another writer is not an error: the order as it now stands is returned.
func (s *PaymentService) transition(ctx context.Context, order *domain.Order, patch domain.OrderPatch) (*domain.Order, error) {
	if patch.PaymentStatus != nil && !domain.CanTransitionTo(order.PaymentStatus, *patch.PaymentStatus) {
		return order, nil
	}

	updated, err := s.store.ConditionalUpdate(ctx, order.ID, domain.PaymentStatusPending, patch)
	if err == nil {
		if patch.PaymentStatus != nil {
			s.logger(ctx).WithFields(logrus.Fields{
				"order_id":       order.ID,
				"payment_status": updated.PaymentStatus,
			}).Info("payment status changed")
		}
		return updated, nil
	}
	if !errors.Is(err, repository.ErrConditionFailed) {
		return nil, storeError(err)
	}

	current, err := s.store.FindByID(ctx, order.ID)
	if err != nil {
		return nil, storeError(err)
	}
	s.logger(ctx).WithFields(logrus.Fields{
		"order_id":       order.ID,
		"payment_status": current.PaymentStatus,
	}).Info("order already transitioned by a concurrent writer")
	return current, nil
}

// requestGatewayOrder creates the provider-side order and stores its reference.
func (s *PaymentService) requestGatewayOrder(ctx context.Context, order *domain.Order, email string) (*domain.Order, error) {
	notes := map[string]string{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"method":   string(order.PaymentMethod),
	}
	if email != "" {
		notes["email"] = email
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
		AmountMinorUnits: order.AmountMinorUnits(),
		Currency:         order.Currency,
		Receipt:          order.ReceiptNumber,
		Notes:            notes,
	})
	if err != nil {
		s.logger(ctx).WithError(err).WithField("order_id", order.ID).
			Error("gateway order creation failed, order left pending for recovery")
		return nil, gatewayError(err)
	}

	updated, err := s.store.ConditionalUpdate(ctx, order.ID, domain.PaymentStatusPending, domain.GatewayOrderPatch(gwOrder.ID))
	if errors.Is(err, repository.ErrConditionFailed) {
		return s.keepStoredReference(ctx, order.ID, gwOrder.ID)
	}
	if err != nil {
		s.logger(ctx).WithError(err).WithFields(logrus.Fields{
			"order_id":         order.ID,
			"gateway_order_id": gwOrder.ID,
		}).Error("failed to store gateway order reference")
		return nil, storeError(err)
	}
	return updated, nil
}

// keepStoredReference resolves a lost reference write. The reference already
// stored wins and the newly created gateway order is abandoned unpaid.
func (s *PaymentService) keepStoredReference(ctx context.Context, orderID, abandonedID string) (*domain.Order, error) {
	current, err := s.store.FindByID(ctx, orderID)
	if err != nil {
		return nil, storeError(err)
	}
	log := s.logger(ctx).WithFields(logrus.Fields{
		"order_id":                   orderID,
		"gateway_order_id":           current.GatewayOrderID,
		"abandoned_gateway_order_id": abandonedID,
	})
	if current.PaymentStatus != domain.PaymentStatusPending || current.GatewayOrderID == "" {
		log.WithField("payment_status", current.PaymentStatus).Warn("order closed before gateway reference was stored")
		return nil, ErrOrderClosed
	}
	log.Info("gateway order already attached by a concurrent writer")
	return current, nil
}

type paymentOutcome int

const (
	outcomeCaptured paymentOutcome = iota
	outcomeFailed
	outcomePending
)

// assessPayment checks the gateway's payment record against the stored order.
func assessPayment(order *domain.Order, p *gateway.Payment) (paymentOutcome, string) {
	if p.OrderID != order.GatewayOrderID {
		return outcomeFailed, ReasonOrderMismatch
	}
	if p.Status == gateway.PaymentStatusFailed {
		return outcomeFailed, ReasonPaymentFailed
	}
	if !p.IsSuccessful() {
		if p.Status == gateway.PaymentStatusCreated {
			return outcomePending, ReasonPaymentPending
		}
		return outcomeFailed, ReasonPaymentFailed
	}
	if p.AmountMinorUnits != order.AmountMinorUnits() || !strings.EqualFold(p.Currency, order.Currency) {
		return outcomeFailed, ReasonAmountMismatch
	}
	return outcomeCaptured, ""
}

func storeError(err error) error {
	if errors.Is(err, repository.ErrOrderNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

func gatewayError(err error) error {
	switch {
	case errors.Is(err, gateway.ErrPaymentNotFound):
		return ErrPaymentNotFound
	case errors.Is(err, gateway.ErrRejected):
		return fmt.Errorf("%w: %v", ErrGatewayRejected, err)
	default:
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
}

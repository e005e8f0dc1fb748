// Package webhook applies provider-pushed payment events to orders.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/domain"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/repository"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/signature"
	"github.com/AnujAga2005/ProductLab/pkg/logger"
	"github.com/sirupsen/logrus"
)

const (
	SignatureHeader = "X-Razorpay-Signature"
	EventIDHeader   = "X-Razorpay-Event-Id"

	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	// ErrProcessing is an internal failure; the provider should redeliver.
	ErrProcessing = errors.New("webhook processing failed")
)

type Action string

const (
	ActionCompleted Action = "completed"
	ActionFailed    Action = "failed"
	ActionNoop      Action = "noop"
	ActionIgnored   Action = "ignored"
	ActionDuplicate Action = "duplicate"
)

type Result struct {
	Event   string
	OrderID string
	Action  Action
}

type envelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID       string          `json:"id"`
	OrderID  string          `json:"order_id"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
	Notes    json.RawMessage `json:"notes"`
}

// orderID reads our order id from the notes attached at gateway order creation.
func (e paymentEntity) orderID() string {
	var notes map[string]any
	if err := json.Unmarshal(e.Notes, &notes); err != nil {
		return ""
	}
	id, _ := notes["order_id"].(string)
	return id
}

type Processor struct {
	store    repository.OrderStore
	verifier *signature.Verifier
	dedup    Deduper
	log      *logrus.Logger
}

// NewProcessor builds a Processor. dedup may be nil.
func NewProcessor(store repository.OrderStore, verifier *signature.Verifier, dedup Deduper, log *logrus.Logger) *Processor {
	return &Processor{store: store, verifier: verifier, dedup: dedup, log: log}
}

// Process authenticates body against sig and applies the event. Only
// ErrInvalidSignature, ErrMalformedPayload and ErrProcessing are returned.
func (p *Processor) Process(ctx context.Context, body []byte, sig, eventID string) (*Result, error) {
	if !p.verifier.Verify(body, strings.TrimSpace(sig)) {
		logger.FromContext(ctx, p.log).Warn("webhook signature mismatch")
		return nil, ErrInvalidSignature
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	log := logger.FromContext(ctx, p.log).WithFields(logrus.Fields{
		"event":    env.Event,
		"event_id": eventID,
	})

	if eventID != "" && p.dedup != nil {
		seen, err := p.dedup.Seen(ctx, eventID)
		if err != nil {
			log.WithError(err).Warn("webhook dedup lookup failed, processing anyway")
		} else if seen {
			log.Info("duplicate webhook delivery")
			return &Result{Event: env.Event, Action: ActionDuplicate}, nil
		}
	}

	var (
		res *Result
		err error
	)
	switch env.Event {
	case EventPaymentCaptured:
		res, err = p.handleCaptured(ctx, log, env.Payload.Payment.Entity)
	case EventPaymentFailed:
		res, err = p.handleFailed(ctx, log, env.Payload.Payment.Entity)
	default:
		log.Info("ignoring unhandled webhook event")
		res = &Result{Event: env.Event, Action: ActionIgnored}
	}
	if err != nil {
		return nil, err
	}
	res.Event = env.Event

	if eventID != "" && p.dedup != nil {
		if err := p.dedup.Remember(ctx, eventID); err != nil {
			log.WithError(err).Warn("failed to remember webhook delivery")
		}
	}
	return res, nil
}

func (p *Processor) handleCaptured(ctx context.Context, log *logrus.Entry, entity paymentEntity) (*Result, error) {
	order, res, err := p.lookup(ctx, log, entity)
	if order == nil {
		return res, err
	}
	log = log.WithFields(logrus.Fields{"order_id": order.ID, "gateway_payment_id": entity.ID})

	switch order.PaymentStatus {
	case domain.PaymentStatusCompleted:
		return &Result{OrderID: order.ID, Action: ActionNoop}, nil
	case domain.PaymentStatusFailed:
		log.Error("capture received for a failed order, needs manual review")
		return &Result{OrderID: order.ID, Action: ActionNoop}, nil
	}

	if entity.OrderID != order.GatewayOrderID ||
		entity.Amount != order.AmountMinorUnits() ||
		!strings.EqualFold(entity.Currency, order.Currency) {
		log.WithFields(logrus.Fields{
			"gateway_order_id": entity.OrderID,
			"amount":           entity.Amount,
			"currency":         entity.Currency,
		}).Error("captured payment does not match order")
		return &Result{OrderID: order.ID, Action: ActionNoop}, nil
	}

	return p.apply(ctx, log, order, domain.CompletedPatch(order, entity.ID, ""), ActionCompleted)
}

func (p *Processor) handleFailed(ctx context.Context, log *logrus.Entry, entity paymentEntity) (*Result, error) {
	order, res, err := p.lookup(ctx, log, entity)
	if order == nil {
		return res, err
	}
	log = log.WithFields(logrus.Fields{"order_id": order.ID, "gateway_payment_id": entity.ID})

	switch order.PaymentStatus {
	case domain.PaymentStatusCompleted:
		if entity.ID == order.GatewayPaymentID {
			log.Warn("failure event for the captured payment ignored")
		} else {
			log.Info("failure event for an earlier attempt ignored")
		}
		return &Result{OrderID: order.ID, Action: ActionNoop}, nil
	case domain.PaymentStatusFailed:
		return &Result{OrderID: order.ID, Action: ActionNoop}, nil
	}

	if entity.OrderID != order.GatewayOrderID {
		log.WithField("gateway_order_id", entity.OrderID).Warn("failure event for another gateway order ignored")
		return &Result{OrderID: order.ID, Action: ActionNoop}, nil
	}

	return p.apply(ctx, log, order, domain.FailedPatch(order, entity.ID), ActionFailed)
}

// lookup resolves the event's order. A nil order with a nil error means the
// event is acknowledged without action.
func (p *Processor) lookup(ctx context.Context, log *logrus.Entry, entity paymentEntity) (*domain.Order, *Result, error) {
	orderID := entity.orderID()
	if orderID == "" {
		log.WithField("gateway_payment_id", entity.ID).Warn("webhook payment has no order reference")
		return nil, &Result{Action: ActionIgnored}, nil
	}

	order, err := p.store.FindByID(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		log.WithField("order_id", orderID).Warn("webhook for unknown order")
		return nil, &Result{OrderID: orderID, Action: ActionIgnored}, nil
	}
	if err != nil {
		log.WithError(err).Error("failed to load order for webhook")
		return nil, nil, fmt.Errorf("%w: %v", ErrProcessing, err)
	}
	return order, nil, nil
}

func (p *Processor) apply(ctx context.Context, log *logrus.Entry, order *domain.Order, patch domain.OrderPatch, action Action) (*Result, error) {
	_, err := p.store.ConditionalUpdate(ctx, order.ID, domain.PaymentStatusPending, patch)
	if errors.Is(err, repository.ErrConditionFailed) {
		log.Info("order transitioned concurrently, webhook is a no-op")
		return &Result{OrderID: order.ID, Action: ActionNoop}, nil
	}
	if err != nil {
		log.WithError(err).Error("failed to apply webhook transition")
		return nil, fmt.Errorf("%w: %v", ErrProcessing, err)
	}
	log.WithField("action", action).Info("webhook applied")
	return &Result{OrderID: order.ID, Action: action}, nil
}

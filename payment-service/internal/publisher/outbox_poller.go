package publisher

import (
	"context"
	"time"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type EventStore interface {
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*domain.PaymentEvent, error)
	MarkEventAsPublished(ctx context.Context, id string) error
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Order, error)
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Recoverer reopens the gateway order of a pending order that never got one.
type Recoverer interface {
	RecoverStaleOrder(ctx context.Context, order *domain.Order) error
}

type Config struct {
	EventTick    time.Duration
	RecoveryTick time.Duration
	// RecoveryAge is how old a pending order must be before recovery touches it.
	RecoveryAge time.Duration
	BatchSize   int
	Timeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		EventTick:    time.Second,
		RecoveryTick: 30 * time.Second,
		RecoveryAge:  2 * time.Minute,
		BatchSize:    100,
		Timeout:      5 * time.Second,
	}
}

type OutboxPoller struct {
	cfg       Config
	store     EventStore
	writer    MessageWriter
	recoverer Recoverer
	log       *logrus.Logger
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// NewOutboxPoller builds a poller. A nil writer disables publishing and a nil
// recoverer disables stale order recovery.
func NewOutboxPoller(store EventStore, writer MessageWriter, recoverer Recoverer, cfg Config, log *logrus.Logger) *OutboxPoller {
	def := DefaultConfig()
	if cfg.EventTick <= 0 {
		cfg.EventTick = def.EventTick
	}
	if cfg.RecoveryTick <= 0 {
		cfg.RecoveryTick = def.RecoveryTick
	}
	if cfg.RecoveryAge <= 0 {
		cfg.RecoveryAge = def.RecoveryAge
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &OutboxPoller{cfg: cfg, store: store, writer: writer, recoverer: recoverer, log: log}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.cfg.EventTick)
	recoveryTicker := time.NewTicker(p.cfg.RecoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.recoverStaleOrders(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	if p.writer == nil {
		return
	}
	events, err := p.store.GetUnpublishedEvents(ctx, p.cfg.BatchSize)
	if err != nil {
		p.log.WithError(err).Error("failed to fetch unpublished events")
		return
	}

	for _, event := range events {
		log := p.log.WithFields(logrus.Fields{"event_id": event.ID, "event_type": event.EventType})
		if err := p.publish(ctx, event); err != nil {
			log.WithError(err).Error("failed to publish event")
			continue
		}
		if err := p.store.MarkEventAsPublished(ctx, event.ID); err != nil {
			log.WithError(err).Error("failed to mark event as published")
			continue
		}
		log.Debug("event published")
	}
}

// recoverStaleOrders retries gateway order creation for orders left pending
// without a gateway reference.
func (p *OutboxPoller) recoverStaleOrders(ctx context.Context) {
	if p.recoverer == nil {
		return
	}
	orders, err := p.store.ListStalePending(ctx, time.Now().Add(-p.cfg.RecoveryAge), p.cfg.BatchSize)
	if err != nil {
		p.log.WithError(err).Error("failed to list stale orders")
		return
	}
	for _, order := range orders {
		log := p.log.WithField("order_id", order.ID)
		log.Info("recovering stale order")

		callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		err := p.recoverer.RecoverStaleOrder(callCtx, order)
		cancel()
		if err != nil {
			log.WithError(err).Warn("failed to recover stale order")
			continue
		}
		log.Info("stale order recovered")
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *domain.PaymentEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id keeps per-order ordering
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
		Time: event.CreatedAt,
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	return p.writer.WriteMessages(writeCtx, msg)
}

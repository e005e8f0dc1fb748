package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/domain"
)

// MemoryStore implements OrderStore in process memory. A single mutex makes
// ConditionalUpdate's compare-and-set atomic.
type MemoryStore struct {
	mu       sync.Mutex
	orders   map[string]*domain.Order
	receipts map[string]string // receipt -> order id
	events   []*domain.PaymentEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[string]*domain.Order),
		receipts: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.receipts[order.ReceiptNumber]; exists {
		return ErrDuplicateReceipt
	}
	s.orders[order.ID] = order.Clone()
	s.receipts[order.ReceiptNumber] = order.ID
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (s *MemoryStore) ConditionalUpdate(ctx context.Context, id string, expected domain.PaymentStatus, patch domain.OrderPatch) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, ErrOrderNotFound
	}
	if order.PaymentStatus != expected || !patch.Allows(order) {
		return nil, ErrConditionFailed
	}

	patch.Apply(order)
	if patch.Event != nil {
		ev := *patch.Event
		s.events = append(s.events, &ev)
	}
	return order.Clone(), nil
}

func (s *MemoryStore) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*domain.Order
	for _, order := range s.orders {
		if order.PaymentStatus == domain.PaymentStatusPending &&
			order.GatewayOrderID == "" &&
			order.CreatedAt.Before(olderThan) {
			stale = append(stale, order.Clone())
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (s *MemoryStore) GetUnpublishedEvents(ctx context.Context, limit int) ([]*domain.PaymentEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*domain.PaymentEvent
	for _, ev := range s.events {
		if ev.PublishedAt != nil {
			continue
		}
		c := *ev
		pending = append(pending, &c)
		if limit > 0 && len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (s *MemoryStore) MarkEventAsPublished(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range s.events {
		if ev.ID == id {
			now := time.Now().UTC()
			ev.PublishedAt = &now
			return nil
		}
	}
	return ErrEventNotFound
}

func (s *MemoryStore) Close() error {
	return nil
}

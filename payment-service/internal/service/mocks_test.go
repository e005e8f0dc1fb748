package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/domain"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/gateway"
)

type mockGateway struct {
	mu          sync.Mutex
	createCalls int
	fetchCalls  int
	createErr   error
	fetchErr    error
	lastCreate  gateway.CreateOrderRequest
	payments    map[string]*gateway.Payment
	fetchDelay  time.Duration
}

func newMockGateway() *mockGateway {
	return &mockGateway{payments: make(map[string]*gateway.Payment)}
}

func (m *mockGateway) CreateOrder(_ context.Context, req gateway.CreateOrderRequest) (*gateway.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	m.lastCreate = req
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &gateway.Order{
		ID:               fmt.Sprintf("order_%d", m.createCalls),
		AmountMinorUnits: req.AmountMinorUnits,
		Currency:         req.Currency,
		Receipt:          req.Receipt,
		Status:           "created",
	}, nil
}

func (m *mockGateway) FetchPayment(ctx context.Context, paymentID string) (*gateway.Payment, error) {
	m.mu.Lock()
	m.fetchCalls++
	delay := m.fetchDelay
	err := m.fetchErr
	p, ok := m.payments[paymentID]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, gateway.ErrPaymentNotFound
	}
	c := *p
	return &c, nil
}

func (m *mockGateway) ConnectionParams() string {
	return "rzp_test_key"
}

func (m *mockGateway) setPayment(p *gateway.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = p
}

func (m *mockGateway) calls() (create, fetch int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls, m.fetchCalls
}

// failingStore fails every call with err.
type failingStore struct {
	err error
}

func (f *failingStore) Create(context.Context, *domain.Order) error { return f.err }
func (f *failingStore) FindByID(context.Context, string) (*domain.Order, error) {
	return nil, f.err
}
func (f *failingStore) ConditionalUpdate(context.Context, string, domain.PaymentStatus, domain.OrderPatch) (*domain.Order, error) {
	return nil, f.err
}
func (f *failingStore) ListStalePending(context.Context, time.Time, int) ([]*domain.Order, error) {
	return nil, f.err
}
func (f *failingStore) GetUnpublishedEvents(context.Context, int) ([]*domain.PaymentEvent, error) {
	return nil, f.err
}
func (f *failingStore) MarkEventAsPublished(context.Context, string) error { return f.err }
func (f *failingStore) Close() error { return nil }

var errStoreDown = errors.New("connection refused")

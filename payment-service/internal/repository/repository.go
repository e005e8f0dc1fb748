package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/domain"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrDuplicateReceipt = errors.New("order with this receipt number already exists")
	// ErrConditionFailed means the stored payment status differed from the expected one.
	ErrConditionFailed = errors.New("order payment status does not match expected status")
	ErrEventNotFound   = errors.New("outbox event not found")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	SSLMode           string
	MigrationsDirPath string
}

// OrderStore is the writer-of-record for orders. Every payment status change
// goes through ConditionalUpdate.
type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	// ConditionalUpdate applies patch only if the order's payment status equals expected,
	// returning the updated order, ErrConditionFailed or ErrOrderNotFound.
	ConditionalUpdate(ctx context.Context, id string, expected domain.PaymentStatus, patch domain.OrderPatch) (*domain.Order, error)
	// ListStalePending returns pending orders created before olderThan that never got a gateway order.
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Order, error)

	GetUnpublishedEvents(ctx context.Context, limit int) ([]*domain.PaymentEvent, error)
	MarkEventAsPublished(ctx context.Context, id string) error

	Close() error
}

var (
	_ OrderStore = (*MemoryStore)(nil)
	_ OrderStore = (*PostgresStore)(nil)
	_ OrderStore = (*MongoStore)(nil)
)

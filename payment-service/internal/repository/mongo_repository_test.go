package repository

import (
	"context"
	"testing"
	"time"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupMongo(t *testing.T) (*MongoStore, func()) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	store := NewMongoStore(db)
	require.NoError(t, store.CreateIndexes(ctx))

	cleanup := func() {
		store.Close()
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return store, cleanup
}

func TestMongoStore_CreateAndFind(t *testing.T) {
	store, cleanup := setupMongo(t)
	defer cleanup()
	ctx := context.Background()

	order := newTestOrder("user-1")
	require.NoError(t, store.Create(ctx, order))

	fetched, err := store.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ReceiptNumber, fetched.ReceiptNumber)
	assert.True(t, order.TotalAmount.Equal(fetched.TotalAmount))
	assert.True(t, order.Items[0].UnitPrice.Equal(fetched.Items[0].UnitPrice))
	assert.Equal(t, order.ShippingAddress, fetched.ShippingAddress)

	_, err = store.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestMongoStore_DuplicateReceipt(t *testing.T) {
	store, cleanup := setupMongo(t)
	defer cleanup()
	ctx := context.Background()

	first := newTestOrder("user-1")
	second := newTestOrder("user-1")
	second.ReceiptNumber = first.ReceiptNumber

	require.NoError(t, store.Create(ctx, first))
	assert.ErrorIs(t, store.Create(ctx, second), ErrDuplicateReceipt)
}

func TestMongoStore_ConditionalUpdateAndOutbox(t *testing.T) {
	store, cleanup := setupMongo(t)
	defer cleanup()
	ctx := context.Background()

	order := newTestOrder("user-1")
	require.NoError(t, store.Create(ctx, order))

	updated, err := store.ConditionalUpdate(ctx, order.ID, domain.PaymentStatusPending, domain.FailedPatch(order, "pay_1"))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, updated.PaymentStatus)
	assert.Equal(t, domain.OrderStatusPending, updated.Status)

	_, err = store.ConditionalUpdate(ctx, order.ID, domain.PaymentStatusPending, domain.CompletedPatch(order, "pay_1", ""))
	assert.ErrorIs(t, err, ErrConditionFailed)

	_, err = store.ConditionalUpdate(ctx, "missing", domain.PaymentStatusPending, domain.OrderPatch{})
	assert.ErrorIs(t, err, ErrOrderNotFound)

	events, err := store.GetUnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOrderPaymentFailed, events[0].EventType)

	require.NoError(t, store.MarkEventAsPublished(ctx, events[0].ID))
	events, err = store.GetUnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.ErrorIs(t, store.MarkEventAsPublished(ctx, "missing"), ErrEventNotFound)
}

func TestMongoStore_GatewayOrderReferenceIsWrittenOnce(t *testing.T) {
	store, cleanup := setupMongo(t)
	defer cleanup()
	ctx := context.Background()

	order := newTestOrder("user-1")
	require.NoError(t, store.Create(ctx, order))

	_, err := store.ConditionalUpdate(ctx, order.ID, domain.PaymentStatusPending, domain.GatewayOrderPatch("order_first"))
	require.NoError(t, err)

	_, err = store.ConditionalUpdate(ctx, order.ID, domain.PaymentStatusPending, domain.GatewayOrderPatch("order_second"))
	assert.ErrorIs(t, err, ErrConditionFailed)

	fetched, err := store.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "order_first", fetched.GatewayOrderID)
}

func TestMongoStore_UnpublishedEventsSkipOrdersWithoutOutbox(t *testing.T) {
	store, cleanup := setupMongo(t)
	defer cleanup()
	ctx := context.Background()

	quiet := newTestOrder("user-1")
	require.NoError(t, store.Create(ctx, quiet))
	_, err := store.ConditionalUpdate(ctx, quiet.ID, domain.PaymentStatusPending, domain.GatewayOrderPatch("order_quiet"))
	require.NoError(t, err)

	paid := newTestOrder("user-2")
	require.NoError(t, store.Create(ctx, paid))
	_, err = store.ConditionalUpdate(ctx, paid.ID, domain.PaymentStatusPending, domain.CompletedPatch(paid, "pay_1", ""))
	require.NoError(t, err)

	events, err := store.GetUnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, paid.ID, events[0].AggregateID)
}

func TestMongoStore_ListStalePending(t *testing.T) {
	store, cleanup := setupMongo(t)
	defer cleanup()
	ctx := context.Background()

	stale := newTestOrder("user-1")
	stale.CreatedAt = time.Now().Add(-time.Hour)
	fresh := newTestOrder("user-1")
	require.NoError(t, store.Create(ctx, stale))
	require.NoError(t, store.Create(ctx, fresh))

	orders, err := store.ListStalePending(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, stale.ID, orders[0].ID)
}

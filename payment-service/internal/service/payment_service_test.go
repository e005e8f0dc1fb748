package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/domain"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/gateway"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/repository"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/signature"
	"github.com/AnujAga2005/ProductLab/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const keySecret = "key_secret"

var (
	owner    = Actor{UserID: "user-1", Email: "owner@example.com", Name: "Owner"}
	stranger = Actor{UserID: "user-2", Email: "other@example.com"}
)

type fixture struct {
	svc   *PaymentService
	store *repository.MemoryStore
	gw    *mockGateway
}

func newFixture(t *testing.T) *fixture {
	verifier, err := signature.NewVerifier(keySecret)
	require.NoError(t, err)
	store := repository.NewMemoryStore()
	gw := newMockGateway()
	svc := NewPaymentService(store, gw, verifier, Config{
		Currency:     "INR",
		MerchantUPI:  "shop@upi",
		MerchantName: "Product Lab",
	}, logger.Discard())
	return &fixture{svc: svc, store: store, gw: gw}
}

func address() domain.ShippingAddress {
	return domain.ShippingAddress{
		FullName: "Asha Rao", Street: "1 MG Road", City: "Pune",
		State: "MH", PostalCode: "411001", Country: "IN",
	}
}

func items(price string, qty int) []ItemInput {
	return []ItemInput{{
		Kind:      domain.ItemKindProduct,
		RefID:     "prod-1",
		Name:      "Laptop",
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(price),
	}}
}

func sign(gatewayOrderID, paymentID string) string {
	return signature.Sign([]byte(keySecret), signature.PaymentMessage(gatewayOrderID, paymentID))
}

// capturedPayment registers a gateway payment matching order.
func (f *fixture) capturedPayment(order *domain.Order, paymentID string) {
	f.gw.setPayment(&gateway.Payment{
		ID:               paymentID,
		OrderID:          order.GatewayOrderID,
		AmountMinorUnits: order.AmountMinorUnits(),
		Currency:         order.Currency,
		Status:           gateway.PaymentStatusCaptured,
		Method:           "card",
		Notes:            map[string]string{"order_id": order.ID},
	})
}

func (f *fixture) createOrder(t *testing.T, price string, qty int) *CreateOrderResult {
	res, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		Items:           items(price, qty),
		ShippingAddress: address(),
	}, owner)
	require.NoError(t, err)
	return res
}

func (f *fixture) events(t *testing.T) []*domain.PaymentEvent {
	events, err := f.store.GetUnpublishedEvents(context.Background(), 0)
	require.NoError(t, err)
	return events
}

func TestCreateOrder_FreeShippingScenario(t *testing.T) {
	f := newFixture(t)

	res := f.createOrder(t, "100", 1)

	assert.Equal(t, "order_1", res.GatewayOrderID)
	assert.Equal(t, int64(11000), res.AmountMinorUnits)
	assert.Equal(t, "INR", res.Currency)
	assert.Equal(t, "rzp_test_key", res.KeyID)

	stored, err := f.store.FindByID(context.Background(), res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, "100", stored.Subtotal.String())
	assert.Equal(t, "0", stored.ShippingAmount.String())
	assert.Equal(t, "10", stored.TaxAmount.String())
	assert.Equal(t, "110", stored.TotalAmount.String())
	assert.Equal(t, domain.PaymentStatusPending, stored.PaymentStatus)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)
	assert.Equal(t, "order_1", stored.GatewayOrderID)
	assert.Equal(t, domain.PaymentMethodCard, stored.PaymentMethod)

	assert.Equal(t, int64(11000), f.gw.lastCreate.AmountMinorUnits)
	assert.Equal(t, stored.ReceiptNumber, f.gw.lastCreate.Receipt)
	assert.Equal(t, stored.ID, f.gw.lastCreate.Notes["order_id"])
	assert.Equal(t, owner.UserID, f.gw.lastCreate.Notes["user_id"])
	assert.Equal(t, owner.Email, f.gw.lastCreate.Notes["email"])
}

func TestCreateOrder_FlatShippingScenario(t *testing.T) {
	f := newFixture(t)

	res := f.createOrder(t, "10", 1)

	assert.Equal(t, "21", res.Order.TotalAmount.String())
	assert.Equal(t, "10", res.Order.ShippingAmount.String())
	assert.Equal(t, "1", res.Order.TaxAmount.String())
	assert.Equal(t, int64(2100), res.AmountMinorUnits)
}

func TestCreateOrder_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  CreateOrderRequest
	}{
		{"no items", CreateOrderRequest{ShippingAddress: address()}},
		{"zero quantity", CreateOrderRequest{Items: items("10", 0), ShippingAddress: address()}},
		{"negative price", CreateOrderRequest{Items: items("-1", 1), ShippingAddress: address()}},
		{"sub-paisa price", CreateOrderRequest{Items: items("1.005", 1), ShippingAddress: address()}},
		{"missing city", CreateOrderRequest{Items: items("10", 1), ShippingAddress: func() domain.ShippingAddress {
			a := address()
			a.City = "  "
			return a
		}()}},
		{"quantity above limit", CreateOrderRequest{Items: items("10", 1001), ShippingAddress: address()}},
		{"line total above limit", CreateOrderRequest{Items: items("5000000.01", 2), ShippingAddress: address()}},
		{"order total above limit", CreateOrderRequest{Items: func() []ItemInput {
			var in []ItemInput
			for i := 0; i < 12; i++ {
				in = append(in, items("9000000", 1)...)
			}
			return in
		}(), ShippingAddress: address()}},
		{"unknown kind", CreateOrderRequest{Items: []ItemInput{{
			Kind: "gift", RefID: "x", Name: "x", Quantity: 1, UnitPrice: decimal.NewFromInt(1),
		}}, ShippingAddress: address()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateOrder(context.Background(), tt.req, owner)
			assert.ErrorIs(t, err, ErrValidation)
			create, _ := f.gw.calls()
			assert.Zero(t, create)
		})
	}
}

func TestCreateOrder_Unauthenticated(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{Items: items("10", 1), ShippingAddress: address()}, Actor{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestCreateOrder_StoreFailureSkipsGateway(t *testing.T) {
	verifier, _ := signature.NewVerifier(keySecret)
	gw := newMockGateway()
	svc := NewPaymentService(&failingStore{err: errStoreDown}, gw, verifier, Config{}, logger.Discard())

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{Items: items("10", 1), ShippingAddress: address()}, owner)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.True(t, IsRetryable(err))
	create, _ := gw.calls()
	assert.Zero(t, create)
}

func TestCreateOrder_GatewayFailureLeavesRecoverableOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.createErr = fmt.Errorf("%w: timeout", gateway.ErrUnavailable)

	_, err := f.svc.CreateOrder(ctx, CreateOrderRequest{Items: items("100", 1), ShippingAddress: address()}, owner)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.True(t, IsRetryable(err))

	stale, err := f.store.ListStalePending(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Empty(t, stale[0].GatewayOrderID)

	f.gw.createErr = nil
	res, err := f.svc.RetryGatewayOrder(ctx, stale[0].ID, owner)
	require.NoError(t, err)
	assert.NotEmpty(t, res.GatewayOrderID)
	assert.Equal(t, int64(11000), res.AmountMinorUnits)

	// A second retry does not open another gateway order.
	again, err := f.svc.RetryGatewayOrder(ctx, stale[0].ID, owner)
	require.NoError(t, err)
	assert.Equal(t, res.GatewayOrderID, again.GatewayOrderID)
	create, _ := f.gw.calls()
	assert.Equal(t, 2, create)

	_, err = f.svc.RetryGatewayOrder(ctx, stale[0].ID, stranger)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreateOrder_GatewayRejected(t *testing.T) {
	f := newFixture(t)
	f.gw.createErr = fmt.Errorf("%w: status 400", gateway.ErrRejected)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{Items: items("10", 1), ShippingAddress: address()}, owner)
	assert.ErrorIs(t, err, ErrGatewayRejected)
	assert.False(t, IsRetryable(err))
}

func TestRecoverStaleOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.createErr = fmt.Errorf("%w: down", gateway.ErrUnavailable)
	_, err := f.svc.CreateOrder(ctx, CreateOrderRequest{Items: items("10", 1), ShippingAddress: address()}, owner)
	require.Error(t, err)

	f.gw.createErr = nil
	stale, err := f.store.ListStalePending(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	require.NoError(t, f.svc.RecoverStaleOrder(ctx, stale[0]))
	recovered, err := f.store.FindByID(ctx, stale[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, recovered.GatewayOrderID)
	_, hasEmail := f.gw.lastCreate.Notes["email"]
	assert.False(t, hasEmail)
}

func TestRetryAndRecoveryInterleavedKeepFirstReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.createErr = fmt.Errorf("%w: down", gateway.ErrUnavailable)
	_, err := f.svc.CreateOrder(ctx, CreateOrderRequest{Items: items("100", 1), ShippingAddress: address()}, owner)
	require.Error(t, err)
	f.gw.createErr = nil

	// The recovery ticker lists the order before the user retries.
	stale, err := f.store.ListStalePending(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	retried, err := f.svc.RetryGatewayOrder(ctx, stale[0].ID, owner)
	require.NoError(t, err)
	require.Equal(t, "order_2", retried.GatewayOrderID)

	require.NoError(t, f.svc.RecoverStaleOrder(ctx, stale[0]))
	create, _ := f.gw.calls()
	assert.Equal(t, 3, create)

	stored, err := f.store.FindByID(ctx, stale[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "order_2", stored.GatewayOrderID)

	f.capturedPayment(stored, "pay_1")
	out, err := f.svc.VerifyPayment(ctx, VerifyPaymentRequest{
		OrderID: stored.ID, GatewayOrderID: retried.GatewayOrderID, GatewayPaymentID: "pay_1",
		Signature: sign(retried.GatewayOrderID, "pay_1"),
	}, owner)
	require.NoError(t, err)
	assert.True(t, out.Verified)
	assert.Equal(t, domain.PaymentStatusCompleted, out.Order.PaymentStatus)
}

func TestRetryGatewayOrder_ClosedBeforeReferenceStored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.createErr = fmt.Errorf("%w: down", gateway.ErrUnavailable)
	_, err := f.svc.CreateOrder(ctx, CreateOrderRequest{Items: items("100", 1), ShippingAddress: address()}, owner)
	require.Error(t, err)
	f.gw.createErr = nil

	stale, err := f.store.ListStalePending(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	_, err = f.store.ConditionalUpdate(ctx, stale[0].ID, domain.PaymentStatusPending, domain.FailedPatch(stale[0], ""))
	require.NoError(t, err)

	err = f.svc.RecoverStaleOrder(ctx, stale[0])
	assert.ErrorIs(t, err, ErrOrderClosed)
}

func TestVerifyPayment_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.createOrder(t, "100", 1)
	f.capturedPayment(res.Order, "pay_1")

	sig := sign(res.GatewayOrderID, "pay_1")
	out, err := f.svc.VerifyPayment(ctx, VerifyPaymentRequest{
		OrderID: res.Order.ID, GatewayOrderID: res.GatewayOrderID, GatewayPaymentID: "pay_1", Signature: sig,
	}, owner)
	require.NoError(t, err)

	assert.True(t, out.Verified)
	assert.Equal(t, domain.PaymentStatusCompleted, out.Order.PaymentStatus)
	assert.Equal(t, domain.OrderStatusProcessing, out.Order.Status)
	assert.Equal(t, "110", out.Order.TotalAmount.String())
	assert.Equal(t, "pay_1", out.Order.GatewayPaymentID)
	assert.Equal(t, sig, out.Order.GatewaySignature)

	events := f.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOrderPaid, events[0].EventType)
}

func TestVerifyPayment_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.createOrder(t, "100", 1)
	f.capturedPayment(res.Order, "pay_1")
	req := VerifyPaymentRequest{
		OrderID: res.Order.ID, GatewayOrderID: res.GatewayOrderID, GatewayPaymentID: "pay_1",
		Signature: sign(res.GatewayOrderID, "pay_1"),
	}

	for i := 0; i < 2; i++ {
		out, err := f.svc.VerifyPayment(ctx, req, owner)
		require.NoError(t, err)
		assert.True(t, out.Verified)
		assert.Equal(t, domain.PaymentStatusCompleted, out.Order.PaymentStatus)
	}
	assert.Len(t, f.events(t), 1)
	_, fetch := f.gw.calls()
	assert.Equal(t, 1, fetch)
}

func TestVerifyPayment_TamperedSignatureFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.createOrder(t, "100", 1)
	f.capturedPayment(res.Order, "pay_1")

	raw, err := hex.DecodeString(sign(res.GatewayOrderID, "pay_1"))
	require.NoError(t, err)
	raw[7] ^= 0x10

	out, err := f.svc.VerifyPayment(ctx, VerifyPaymentRequest{
		OrderID: res.Order.ID, GatewayOrderID: res.GatewayOrderID, GatewayPaymentID: "pay_1",
		Signature: hex.EncodeToString(raw),
	}, owner)
	require.NoError(t, err)
	assert.False(t, out.Verified)
	assert.Equal(t, ReasonSignatureMismatch, out.Reason)
	assert.Equal(t, domain.PaymentStatusFailed, out.Order.PaymentStatus)
	assert.Empty(t, out.Order.GatewaySignature)

	_, fetch := f.gw.calls()
	assert.Zero(t, fetch)
	events := f.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOrderPaymentFailed, events[0].EventType)
}

func TestVerifyPayment_WrongGatewayOrderFails(t *testing.T) {
	f := newFixture(t)
	res := f.createOrder(t, "100", 1)

	// Validly signed, but for another gateway order.
	out, err := f.svc.VerifyPayment(context.Background(), VerifyPaymentRequest{
		OrderID: res.Order.ID, GatewayOrderID: "order_other", GatewayPaymentID: "pay_1",
		Signature: sign("order_other", "pay_1"),
	}, owner)
	require.NoError(t, err)
	assert.False(t, out.Verified)
	assert.Equal(t, domain.PaymentStatusFailed, out.Order.PaymentStatus)
}

func TestVerifyPayment_CompletedNeverDowngraded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.createOrder(t, "100", 1)
	f.capturedPayment(res.Order, "pay_1")
	_, err := f.svc.VerifyPayment(ctx, VerifyPaymentRequest{
		OrderID: res.Order.ID, GatewayOrderID: res.GatewayOrderID, GatewayPaymentID: "pay_1",
		Signature: sign(res.GatewayOrderID, "pay_1"),
	}, owner)
	require.NoError(t, err)

	out, err := f.svc.VerifyPayment(ctx, VerifyPaymentRequest{
		OrderID: res.Order.ID, GatewayOrderID: res.GatewayOrderID, GatewayPaymentID: "pay_1", Signature: "deadbeef",
	}, owner)
	require.NoError(t, err)
	assert.False(t, out.Verified)
	assert.Equal(t, domain.PaymentStatusCompleted, out.Order.PaymentStatus)

	stored, err := f.store.FindByID(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, stored.PaymentStatus)
}

func TestVerifyPayment_AmountMismatchFails(t *testing.T) {
	f := newFixture(t)
	res := f.createOrder(t, "100", 1)
	f.capturedPayment(res.Order, "pay_1")
	f.gw.payments["pay_1"].AmountMinorUnits = 100

	out, err := f.svc.VerifyPayment(context.Background(), VerifyPaymentRequest{
		OrderID: res.Order.ID, GatewayOrderID: res.GatewayOrderID, GatewayPaymentID: "pay_1",
		Signature: sign(res.GatewayOrderID, "pay_1"),
	}, owner)
	require.NoError(t, err)
	assert.False(t, out.Verified)
	assert.Equal(t, ReasonAmountMismatch, out.Reason)
	assert.Equal(t, domain.PaymentStatusFailed, out.Order.PaymentStatus)
}

func TestVerifyPayment_GatewayDownKeepsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.createOrder(t, "100", 1)
	f.gw.fetchErr = fmt.Errorf("%w: status 503", gateway.ErrUnavailable)

	_, err := f.svc.VerifyPayment(ctx, VerifyPaymentRequest{
		OrderID: res.Order.ID, GatewayOrderID: res.GatewayOrderID, GatewayPaymentID: "pay_1",
		Signature: sign(res.GatewayOrderID, "pay_1"),
	}, owner)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	stored, err := f.store.FindByID(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, stored.PaymentStatus)
}

func TestVerifyPayment_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.createOrder(t, "100", 1)

	out, err := f.svc.VerifyPayment(ctx, VerifyPaymentRequest{
		OrderID: res.Order.ID, GatewayOrderID: res.GatewayOrderID, GatewayPaymentID: "pay_1",
		Signature: sign(res.GatewayOrderID, "pay_1"),
	}, stranger)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Nil(t, out)

	status, err := f.svc.GetPaymentStatus(ctx, res.Order.ID, stranger)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Nil(t, status)
}

func TestVerifyPayment_ValidationBeforeLookup(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.VerifyPayment(context.Background(), VerifyPaymentRequest{OrderID: "missing"}, owner)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.VerifyPayment(context.Background(), VerifyPaymentRequest{
		OrderID: "missing", GatewayOrderID: "order_1", GatewayPaymentID: "pay_1", Signature: "sig",
	}, owner)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyPayment_RacingWebhookConverges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.createOrder(t, "100", 1)
	f.capturedPayment(res.Order, "pay_1")
	order, err := f.store.FindByID(ctx, res.Order.ID)
	require.NoError(t, err)

	req := VerifyPaymentRequest{
		OrderID: res.Order.ID, GatewayOrderID: res.GatewayOrderID, GatewayPaymentID: "pay_1",
		Signature: sign(res.GatewayOrderID, "pay_1"),
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				out, err := f.svc.VerifyPayment(ctx, req, owner)
				assert.NoError(t, err)
				assert.True(t, out.Verified)
				return
			}
			// Webhook-style capture through the same primitive.
			_, _ = f.store.ConditionalUpdate(ctx, order.ID, domain.PaymentStatusPending, domain.CompletedPatch(order, "pay_1", ""))
		}(i)
	}
	wg.Wait()

	stored, err := f.store.FindByID(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, stored.PaymentStatus)
	assert.Len(t, f.events(t), 1)
}

func TestGetPaymentStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.createOrder(t, "10", 2)

	view, err := f.svc.GetPaymentStatus(ctx, res.Order.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, view.PaymentStatus)
	assert.Equal(t, domain.PaymentMethodCard, view.PaymentMethod)
	assert.Equal(t, domain.OrderStatusPending, view.Status)
	assert.Equal(t, "32", view.TotalAmount.String())

	_, err = f.svc.GetPaymentStatus(ctx, "missing", owner)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetPaymentDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.createOrder(t, "100", 1)
	f.capturedPayment(res.Order, "pay_1")

	details, err := f.svc.GetPaymentDetails(ctx, "pay_1", owner)
	require.NoError(t, err)
	assert.Equal(t, res.Order.ID, details.OrderID)
	assert.Equal(t, res.GatewayOrderID, details.GatewayOrderID)
	assert.Equal(t, "110", details.Amount.String())
	assert.Equal(t, gateway.PaymentStatusCaptured, details.Status)

	_, err = f.svc.GetPaymentDetails(ctx, "pay_1", stranger)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.GetPaymentDetails(ctx, "pay_unknown", owner)
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	f.gw.setPayment(&gateway.Payment{ID: "pay_orphan", Status: gateway.PaymentStatusCaptured})
	_, err = f.svc.GetPaymentDetails(ctx, "pay_orphan", owner)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestGetPaymentDetails_CollapsesConcurrentLookups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.createOrder(t, "100", 1)
	f.capturedPayment(res.Order, "pay_1")
	f.gw.fetchDelay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.GetPaymentDetails(ctx, "pay_1", owner)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, fetch := f.gw.calls()
	assert.Less(t, fetch, 10)
}

func TestGetPaymentDetails_SharedLookupSurvivesFirstCallerCancel(t *testing.T) {
	f := newFixture(t)
	res := f.createOrder(t, "100", 1)
	f.capturedPayment(res.Order, "pay_1")
	f.gw.fetchDelay = 200 * time.Millisecond

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.svc.GetPaymentDetails(firstCtx, "pay_1", owner)
		firstErr <- err
	}()
	require.Eventually(t, func() bool {
		_, fetch := f.gw.calls()
		return fetch == 1
	}, time.Second, 5*time.Millisecond)

	secondDone := make(chan error, 1)
	go func() {
		details, err := f.svc.GetPaymentDetails(context.Background(), "pay_1", owner)
		if err == nil && details.ID != "pay_1" {
			err = fmt.Errorf("unexpected payment %q", details.ID)
		}
		secondDone <- err
	}()
	cancelFirst()

	assert.ErrorIs(t, <-firstErr, context.Canceled)
	assert.NoError(t, <-secondDone)
	_, fetch := f.gw.calls()
	assert.Equal(t, 1, fetch)
}

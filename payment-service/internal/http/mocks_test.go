package http

import (
	"context"
	"net/http"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/service"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/webhook"
	"github.com/go-chi/chi/v5"
)

// --- Mocks ---

type mockPayments struct {
	createOrder    func(service.CreateOrderRequest, service.Actor) (*service.CreateOrderResult, error)
	verifyPayment  func(service.VerifyPaymentRequest, service.Actor) (*service.VerifyResult, error)
	createTransfer func(service.CreateDirectTransferRequest, service.Actor) (*service.CreateDirectTransferResult, error)
	verifyTransfer func(service.VerifyDirectTransferRequest, service.Actor) (*service.VerifyResult, error)
	status         func(string, service.Actor) (*service.PaymentStatusView, error)
	details        func(string, service.Actor) (*service.PaymentDetails, error)
	retry          func(string, service.Actor) (*service.CreateOrderResult, error)
}

func (m *mockPayments) CreateOrder(_ context.Context, req service.CreateOrderRequest, actor service.Actor) (*service.CreateOrderResult, error) {
	return m.createOrder(req, actor)
}

func (m *mockPayments) VerifyPayment(_ context.Context, req service.VerifyPaymentRequest, actor service.Actor) (*service.VerifyResult, error) {
	return m.verifyPayment(req, actor)
}

func (m *mockPayments) CreateDirectTransferPayment(_ context.Context, req service.CreateDirectTransferRequest, actor service.Actor) (*service.CreateDirectTransferResult, error) {
	return m.createTransfer(req, actor)
}

func (m *mockPayments) VerifyDirectTransferPayment(_ context.Context, req service.VerifyDirectTransferRequest, actor service.Actor) (*service.VerifyResult, error) {
	return m.verifyTransfer(req, actor)
}

func (m *mockPayments) GetPaymentStatus(_ context.Context, orderID string, actor service.Actor) (*service.PaymentStatusView, error) {
	return m.status(orderID, actor)
}

func (m *mockPayments) GetPaymentDetails(_ context.Context, paymentID string, actor service.Actor) (*service.PaymentDetails, error) {
	return m.details(paymentID, actor)
}

func (m *mockPayments) RetryGatewayOrder(_ context.Context, orderID string, actor service.Actor) (*service.CreateOrderResult, error) {
	return m.retry(orderID, actor)
}

type mockProcessor struct {
	body    []byte
	sig     string
	eventID string
	res     *webhook.Result
	err     error
}

func (m *mockProcessor) Process(_ context.Context, body []byte, sig, eventID string) (*webhook.Result, error) {
	m.body, m.sig, m.eventID = body, sig, eventID
	return m.res, m.err
}

// --- helpers ---

var testActor = service.Actor{UserID: "user-1", Email: "a@example.com", Name: "A"}

func withActorRequest(r *http.Request) *http.Request {
	return r.WithContext(withActor(r.Context(), testActor))
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

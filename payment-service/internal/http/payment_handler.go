package http

import (
	"context"
	"net/http"
	"time"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// PaymentAPI is the part of the payment service the HTTP surface calls.
type PaymentAPI interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest, actor service.Actor) (*service.CreateOrderResult, error)
	VerifyPayment(ctx context.Context, req service.VerifyPaymentRequest, actor service.Actor) (*service.VerifyResult, error)
	CreateDirectTransferPayment(ctx context.Context, req service.CreateDirectTransferRequest, actor service.Actor) (*service.CreateDirectTransferResult, error)
	VerifyDirectTransferPayment(ctx context.Context, req service.VerifyDirectTransferRequest, actor service.Actor) (*service.VerifyResult, error)
	GetPaymentStatus(ctx context.Context, orderID string, actor service.Actor) (*service.PaymentStatusView, error)
	GetPaymentDetails(ctx context.Context, paymentID string, actor service.Actor) (*service.PaymentDetails, error)
	RetryGatewayOrder(ctx context.Context, orderID string, actor service.Actor) (*service.CreateOrderResult, error)
}

type PaymentHandler struct {
	payments PaymentAPI
	timeout  time.Duration
	log      *logrus.Logger
}

func NewPaymentHandler(payments PaymentAPI, timeout time.Duration, log *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		timeout:  timeout,
		log:      log,
	}
}

// POST /payment/create-order
func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateOrderRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := h.payments.CreateOrder(ctx, service.CreateOrderRequest{
		Items:           toItemInputs(req.Items),
		ShippingAddress: req.ShippingAddress.toDomain(),
	}, actorFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, convertCreateResult(res))
}

// POST /payment/verify-payment
func (h *PaymentHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req VerifyPaymentRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := h.payments.VerifyPayment(ctx, service.VerifyPaymentRequest{
		OrderID:          req.OrderID,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	}, actorFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondVerification(w, res)
}

// POST /payment/create-upi-payment
func (h *PaymentHandler) CreateUPIPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateUPIPaymentRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := h.payments.CreateDirectTransferPayment(ctx, service.CreateDirectTransferRequest{
		Items:           toItemInputs(req.Items),
		ShippingAddress: req.ShippingAddress.toDomain(),
		Handle:          req.UPIVPA,
	}, actorFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, CreateUPIPaymentResponseDTO{
		OrderID:        res.Order.ID,
		OrderNumber:    res.Order.ReceiptNumber,
		GatewayOrderID: res.GatewayOrderID,
		UPILink:        res.DeepLink,
		TotalAmount:    money(res.Order.TotalAmount),
		KeyID:          res.KeyID,
	})
}

// POST /payment/verify-upi/{orderId}
func (h *PaymentHandler) VerifyUPIPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "orderId is required")
		return
	}

	var req VerifyUPIRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := h.payments.VerifyDirectTransferPayment(ctx, service.VerifyDirectTransferRequest{
		OrderID:        orderID,
		PaymentID:      req.PaymentID,
		GatewayOrderID: req.GatewayOrderID,
		Signature:      req.Signature,
	}, actorFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondVerification(w, res)
}

// GET /payment/status/{orderId}
func (h *PaymentHandler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "orderId is required")
		return
	}

	view, err := h.payments.GetPaymentStatus(ctx, orderID, actorFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, PaymentStatusResponseDTO{
		PaymentStatus: view.PaymentStatus,
		PaymentMethod: view.PaymentMethod,
		Status:        view.Status,
		TotalAmount:   money(view.TotalAmount),
	})
}

// GET /payment/details/{paymentId}
func (h *PaymentHandler) GetPaymentDetails(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	paymentID := chi.URLParam(r, "paymentId")
	if paymentID == "" {
		respondError(w, http.StatusBadRequest, "missing_payment_id", "paymentId is required")
		return
	}

	d, err := h.payments.GetPaymentDetails(ctx, paymentID, actorFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, PaymentDetailsResponseDTO{
		ID:               d.ID,
		OrderID:          d.OrderID,
		GatewayOrderID:   d.GatewayOrderID,
		Amount:           money(d.Amount),
		AmountMinorUnits: d.AmountMinorUnits,
		Currency:         d.Currency,
		Status:           d.Status,
		Method:           d.Method,
		Email:            d.Email,
		Contact:          d.Contact,
		VPA:              d.VPA,
		CreatedAt:        d.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// POST /payment/retry-order/{orderId}
func (h *PaymentHandler) RetryOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "orderId is required")
		return
	}

	res, err := h.payments.RetryGatewayOrder(ctx, orderID, actorFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, convertCreateResult(res))
}

// respondVerification writes 200 for a verified payment, 202 while the
// gateway still reports it in flight, and 400 for any other negative outcome.
func respondVerification(w http.ResponseWriter, res *service.VerifyResult) {
	switch {
	case res.Verified:
		respondJSON(w, http.StatusOK, VerifyResponseDTO{Success: true, Order: convertOrder(res.Order)})
	case res.Reason == service.ReasonPaymentPending:
		respondJSON(w, http.StatusAccepted, VerifyResponseDTO{Reason: res.Reason, Order: convertOrder(res.Order)})
	case res.Reason == "":
		respondError(w, http.StatusBadRequest, "payment_verification_failed", "payment could not be verified")
	default:
		respondError(w, http.StatusBadRequest, "payment_verification_failed", "payment could not be verified", res.Reason)
	}
}

package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/webhook"
	"github.com/AnujAga2005/ProductLab/pkg/logger"
	"github.com/sirupsen/logrus"
)

type WebhookProcessor interface {
	Process(ctx context.Context, body []byte, sig, eventID string) (*webhook.Result, error)
}

type WebhookHandler struct {
	processor WebhookProcessor
	log       *logrus.Logger
}

func NewWebhookHandler(processor WebhookProcessor, log *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{processor: processor, log: log}
}

// POST /payment/webhook
//
// The body is read raw; the signature covers the exact bytes received.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "webhook payload too large")
		return
	}

	res, err := h.processor.Process(r.Context(), body,
		r.Header.Get(webhook.SignatureHeader),
		r.Header.Get(webhook.EventIDHeader))
	switch {
	case errors.Is(err, webhook.ErrInvalidSignature):
		respondError(w, http.StatusBadRequest, "invalid_signature", "invalid webhook signature")
		return
	case errors.Is(err, webhook.ErrMalformedPayload):
		respondError(w, http.StatusBadRequest, "malformed_payload", "malformed webhook payload")
		return
	case err != nil:
		logger.FromContext(r.Context(), h.log).WithError(err).Error("webhook processing failed")
		respondError(w, http.StatusInternalServerError, "webhook_failed", "webhook processing failed")
		return
	}

	logger.FromContext(r.Context(), h.log).WithFields(logrus.Fields{
		"event":    res.Event,
		"order_id": res.OrderID,
		"action":   res.Action,
	}).Debug("webhook acknowledged")
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/service"
	"github.com/AnujAga2005/ProductLab/pkg/logger"
	"github.com/sirupsen/logrus"
)

const maxRequestBodySize = 1 << 20 // 1MB

type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Details []string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string, details ...string) {
	respondJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// decodeJSON reads exactly one JSON object into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body larger than %d bytes", maxErr.Limit)
		}
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// respondServiceError maps service errors onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, r *http.Request, log *logrus.Logger, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, "validation_failed", "invalid request", verr.Details...)
	case errors.Is(err, service.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, service.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
	case errors.Is(err, service.ErrForbidden):
		respondError(w, http.StatusForbidden, "forbidden", service.ErrForbidden.Error())
	case errors.Is(err, service.ErrNotFound):
		respondError(w, http.StatusNotFound, "order_not_found", service.ErrNotFound.Error())
	case errors.Is(err, service.ErrPaymentNotFound):
		respondError(w, http.StatusNotFound, "payment_not_found", service.ErrPaymentNotFound.Error())
	case errors.Is(err, service.ErrInvalidMethod):
		respondError(w, http.StatusConflict, "invalid_payment_method", service.ErrInvalidMethod.Error())
	case errors.Is(err, service.ErrOrderClosed):
		respondError(w, http.StatusConflict, "order_closed", service.ErrOrderClosed.Error())
	case service.IsRetryable(err):
		logger.FromContext(r.Context(), log).WithError(err).Warn("dependency unavailable")
		w.Header().Set("Retry-After", "5")
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "service temporarily unavailable, please retry")
	case errors.Is(err, service.ErrGatewayRejected):
		logger.FromContext(r.Context(), log).WithError(err).Error("gateway rejected request")
		respondError(w, http.StatusBadGateway, "gateway_rejected", "payment provider rejected the request")
	default:
		logger.FromContext(r.Context(), log).WithError(err).Error("unhandled service error")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

package http

import (
	"net/http"
	"time"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type RouterConfig struct {
	Payments          *PaymentHandler
	Webhooks          *WebhookHandler
	Sessions          session.Store
	SessionCookieName string
	RequestTimeout    time.Duration
	Log               *logrus.Logger
}

func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestIDHeader)
	r.Use(RequestLogger(cfg.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/payment", func(r chi.Router) {
		// Authenticated by signature, not session.
		r.Post("/webhook", cfg.Webhooks.Handle)

		r.Group(func(r chi.Router) {
			r.Use(RequireSession(cfg.Sessions, cfg.SessionCookieName, cfg.Log))

			r.Post("/create-order", cfg.Payments.CreateOrder)
			r.Post("/verify-payment", cfg.Payments.VerifyPayment)
			r.Post("/create-upi-payment", cfg.Payments.CreateUPIPayment)
			r.Post("/verify-upi/{orderId}", cfg.Payments.VerifyUPIPayment)
			r.Get("/status/{orderId}", cfg.Payments.GetPaymentStatus)
			r.Get("/details/{paymentId}", cfg.Payments.GetPaymentDetails)
			r.Post("/retry-order/{orderId}", cfg.Payments.RetryOrder)
		})
	})

	return r
}

package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/service"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/session"
	"github.com/AnujAga2005/ProductLab/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type ctxKey int

const actorKey ctxKey = iota

// RequestIDHeader echoes the id assigned by chi's RequestID middleware.
func RequestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestID := middleware.GetReqID(r.Context()); requestID != "" {
			w.Header().Set(middleware.RequestIDHeader, requestID)
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs one line per request through logrus.
func RequestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			entry := logger.FromContext(r.Context(), log).WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   ww.Status(),
				"bytes":    ww.BytesWritten(),
				"duration": time.Since(start).String(),
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("request served")
				return
			}
			entry.Info("request served")
		})
	}
}

// RequireSession resolves the session cookie to the caller identity and
// rejects the request with 401 when there is none.
func RequireSession(store session.Store, cookieName string, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			sessionID := session.IDFromCookie(cookie.Value)
			if sessionID == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			identity, err := store.Get(r.Context(), sessionID)
			if errors.Is(err, session.ErrSessionNotFound) {
				respondError(w, http.StatusUnauthorized, "unauthorized", "session expired or invalid")
				return
			}
			if err != nil {
				logger.FromContext(r.Context(), log).WithError(err).Error("session lookup failed")
				respondError(w, http.StatusServiceUnavailable, "session_unavailable", "could not verify session")
				return
			}

			actor := service.Actor{UserID: identity.UserID, Email: identity.Email, Name: identity.Name}
			next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
		})
	}
}

func withActor(ctx context.Context, actor service.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func actorFromContext(ctx context.Context) service.Actor {
	if actor, ok := ctx.Value(actorKey).(service.Actor); ok {
		return actor
	}
	return service.Actor{}
}

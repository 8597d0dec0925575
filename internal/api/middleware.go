package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"gwi.com/leadership-simulator/internal/core"
	"gwi.com/leadership-simulator/internal/store"
)

type contextKey string

const (
	sessionKey contextKey = "session"
	userKey    contextKey = "user"
)

func sessionFrom(ctx context.Context) *store.Session {
	s, _ := ctx.Value(sessionKey).(*store.Session)
	return s
}

func userFrom(ctx context.Context) *store.UserProfile {
	u, _ := ctx.Value(userKey).(*store.UserProfile)
	return u
}

// RequestLogger logs one structured line per request, at a level that
// follows the status code.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		entry := log.WithFields(log.Fields{
			"status":     ww.Status(),
			"method":     r.Method,
			"path":       r.URL.Path,
			"ip":         r.RemoteAddr,
			"user_agent": r.UserAgent(),
			"latency":    time.Since(start),
			"length":     ww.BytesWritten(),
			"request_id": middleware.GetReqID(r.Context()),
		})
		switch {
		case ww.Status() >= 500:
			entry.Error("HTTP request")
		case ww.Status() >= 400:
			entry.Warn("HTTP request")
		default:
			entry.Info("HTTP request")
		}
	})
}

// JWTAuthMiddleware accepts a bearer token only while its session is open.
func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		session, user, err := h.userService.Authorize(r.Context(), tokenString)
		if err != nil {
			if errors.Is(err, core.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "Invalid or expired session")
				return
			}
			log.WithError(err).Error("Failed to resolve session")
			writeError(w, http.StatusServiceUnavailable, "Session store unavailable")
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, session)
		ctx = context.WithValue(ctx, userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := userFrom(r.Context()); user == nil || !user.IsAdmin {
			writeError(w, http.StatusForbidden, "Administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

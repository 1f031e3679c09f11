package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	domuser "example.com/pod-fulfillment/internal/domain/user"
)

type ctxKey struct{}

var (
	ctxActorKey        = ctxKey{}
	errUnauthenticated = errors.New("unauthenticated")
	errForbidden       = errors.New("forbidden")
)

func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			respondError(w, http.StatusUnauthorized, kindUnauthorized, errUnauthenticated)
			return
		}

		actor, err := a.authSvc.Authenticate(strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")))
		if err != nil {
			respondError(w, http.StatusUnauthorized, kindUnauthorized, errUnauthenticated)
			return
		}

		ctx := context.WithValue(r.Context(), ctxActorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) requireRoles(roles ...domuser.RoleCode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := getActor(r.Context())
			if !ok {
				respondError(w, http.StatusUnauthorized, kindUnauthorized, errUnauthenticated)
				return
			}
			for _, role := range roles {
				if actor.RoleCode == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondError(w, http.StatusForbidden, kindForbidden, errForbidden)
		})
	}
}

func getActor(ctx context.Context) (domuser.Actor, bool) {
	actor, ok := ctx.Value(ctxActorKey).(domuser.Actor)
	return actor, ok
}

// requestLogger logs one line per request and feeds the request metrics,
// labelled by the matched route pattern.
func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if a.metrics != nil {
			a.metrics.ObserveRequest(route, r.Method, status, elapsed)
		}

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		a.logger.LogAttrs(r.Context(), level, "http request",
			slog.String("request_id", chimw.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("elapsed", elapsed),
		)
	})
}

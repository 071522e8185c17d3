// Package httpapi implements the HTTP relay: the Pkarr PUT/GET endpoints,
// DNS-over-HTTPS, and the health check.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/pkarrdns/pkarrdns/internal/log"
	"github.com/pkarrdns/pkarrdns/internal/ratelimit"
	"github.com/pkarrdns/pkarrdns/internal/state"
)

var logger = log.PrefixedLog("httpapi")

// NewRouter builds the chi router for the HTTP (and HTTPS) relay listener.
func NewRouter(st *state.AppState) http.Handler {
	limiter := ratelimit.New(ratelimit.DefaultRate, ratelimit.DefaultBurst)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
	}))
	r.Use(traceMiddleware)
	r.Use(metricsMiddleware)

	r.Get("/healthcheck", handleHealthcheck)
	r.Get("/dns-query", handleDoHGet(st))
	r.Post("/dns-query", handleDoHPost(st))

	r.With(rateLimitMiddleware(limiter)).Put("/pkarr/{key}", handlePkarrPut(st))
	r.Get("/pkarr/{key}", handlePkarrGet(st))

	return r
}

func handleHealthcheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type traceIDKey struct{}

func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		traceID := newTraceID()
		ctx := context.WithValue(req.Context(), traceIDKey{}, traceID)

		next.ServeHTTP(w, req.WithContext(ctx))

		logger.WithField("trace_id", traceID).
			WithField("method", req.Method).
			WithField("uri", req.RequestURI).
			WithField("peer", req.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("handled request")
	})
}

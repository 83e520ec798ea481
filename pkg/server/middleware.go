package server

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/harun/toolhub/internal/tracing"
)

const (
	// RequestIDHeader carries the request ID in and out
	RequestIDHeader = "X-Request-ID"
	// SecretHeader is an alternative to a bearer token
	SecretHeader = "X-Toolhub-Secret"
)

// requestID tags each request with an ID, reusing the caller's when given
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 64 {
			var err error
			if id, err = gonanoid.New(); err != nil {
				id = tracing.NewRunID()
			}
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := tracing.WithRequestID(r.Context(), id)
		ctx = tracing.WithSource(ctx, "http")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if s.observer != nil {
			s.observer.ObserveRequest(route, status)
		}

		s.logger.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Str("ip", clientIP(r)).
			Str("request_id", tracing.GetRequestID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// authenticate requires the shared secret when one is configured
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.options.SharedSecret == "" {
			next.ServeHTTP(w, r)
			return
		}

		presented := r.Header.Get(SecretHeader)
		if auth := r.Header.Get("Authorization"); presented == "" && strings.HasPrefix(auth, "Bearer ") {
			presented = strings.TrimPrefix(auth, "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(s.options.SharedSecret)) != 1 {
			s.logger.Warn().Str("ip", clientIP(r)).Str("path", r.URL.Path).Msg("Rejected unauthenticated request")
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.rateLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if !s.rateLimiter.Allow(ip) {
			if s.observer != nil {
				s.observer.ObserveRateLimited()
			}
			w.Header().Set("Retry-After", strconv.Itoa(s.rateLimiter.RetryAfter(ip)))
			writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr, which RealIP may have
// already replaced with a bare address
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

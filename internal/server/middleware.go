package server

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// RateLimiter implements a simple token bucket rate limiter per IP address
type RateLimiter struct {
	limiters  map[string]*rate.Limiter
	mu        sync.Mutex
	rateLimit rate.Limit // Requests per second
	burstSize int        // Maximum burst size
}

// NewRateLimiter creates a new rate limiter
// rateLimit: requests per second
// burstSize: maximum number of requests allowed in a burst
func NewRateLimiter(rateLimit rate.Limit, burstSize int) *RateLimiter {
	return &RateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		rateLimit: rateLimit,
		burstSize: burstSize,
	}
}

// GetLimiter returns the rate limiter for a given IP address
// Creates a new limiter for the IP if one doesn't exist
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[ip]
	if !exists {
		limiter = rate.NewLimiter(rl.rateLimit, rl.burstSize)
		rl.limiters[ip] = limiter
	}

	return limiter
}

// NewRateLimitMiddleware limits each client to perMinute requests per
// minute on the routes it wraps.
func NewRateLimitMiddleware(perMinute int, logger *slog.Logger) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			if !limiter.GetLimiter(ip).Allow() {
				logger.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path)
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the address of the client without the port. RealIP has
// already replaced RemoteAddr when the request came through a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// logRequests logs every request and records it in the request metrics.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			duration := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			s.metrics.observeRequest(r.Method, routePattern(r), status, duration)
			s.Logger.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", duration.Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()))
		}()

		next.ServeHTTP(ww, r)
	})
}

// routePattern returns the matched chi route, so metrics are not labelled
// with arbitrary request paths.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// countVisits records a visit for every request it wraps. A failure to
// record is logged and never affects the response.
func (s *Server) countVisits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Visits != nil {
			if _, err := s.Visits.RecordVisit(r.Context(), clientIP(r), r.RequestURI, time.Now()); err != nil {
				s.metrics.visitFailures.Inc()
				s.Logger.Warn("Failed to record visit", "path", r.URL.Path, "error", err)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Capability is a permission granted to a request by a successful bearer
// token check.
type Capability string

const (
	CapabilityGalleryUpload Capability = "gallery_upload"
	CapabilityReadAPI       Capability = "read_api"
)

type capabilityKey struct{}

// RequireBearer only passes requests carrying "Authorization: Bearer
// <token>" and grants them capability. An empty token rejects every request.
func RequireBearer(token string, capability Capability, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				logger.Warn("Rejected bearer token", "capability", capability, "path", r.URL.Path, "ip", clientIP(r))
				w.Header().Set("WWW-Authenticate", `Bearer realm="homesite"`)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
				return
			}

			ctx := context.WithValue(r.Context(), capabilityKey{}, capability)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HasCapability reports whether the request context was granted capability.
func HasCapability(ctx context.Context, capability Capability) bool {
	granted, ok := ctx.Value(capabilityKey{}).(Capability)
	return ok && granted == capability
}

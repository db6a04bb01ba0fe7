package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/obs"
)

// Config holds the bucket key function and the allowance per window.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler throttles an endpoint group such as the calculate previews. Scope
// labels its decisions in metrics. A failing backend lets requests through
// and reports the error to OnError.
type Handler struct {
	Limiter Backend
	Config  Config
	Scope   string
	OnError func(error)
	Now     func() time.Time
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil || h.Config.Key == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := h.Config.Key(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		allowed, remaining, resetAt, err := h.Limiter.Allow(r.Context(), key, h.Config.Window, h.Config.Max)
		if err != nil {
			obs.CountRateLimit(h.scope(), "error")
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(max(h.Config.Max, 0)))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		if allowed {
			obs.CountRateLimit(h.scope(), "allowed")
			next.ServeHTTP(w, r)
			return
		}

		obs.CountRateLimit(h.scope(), "limited")
		retryAfter := h.retryAfter(resetAt)
		headers.Set("Retry-After", strconv.Itoa(retryAfter))
		common.JSONError(w, http.StatusTooManyRequests, common.CodeRateLimited, "rate limit exceeded",
			map[string]any{"retryAfter": retryAfter})
	})
}

// retryAfter rounds up to whole seconds and never advertises less than one,
// so a client honouring it does not come back inside the same window.
func (h Handler) retryAfter(resetAt time.Time) int {
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func (h Handler) scope() string {
	if h.Scope == "" {
		return "default"
	}
	return h.Scope
}

// ClientRouteKey buckets requests per client address and chi route pattern.
// Path parameters and query strings do not split a bucket.
func ClientRouteKey(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		return strings.Join([]string{scope, common.ClientIP(r), route}, ":")
	}
}

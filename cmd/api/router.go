package main

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-billing/internal/app"
	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/health"
	"github.com/noah-isme/backend-billing/internal/ledger"
	"github.com/noah-isme/backend-billing/internal/obs"
	"github.com/noah-isme/backend-billing/internal/ratelimit"
	"github.com/noah-isme/backend-billing/internal/security"
)

type routerOptions struct {
	Logger           zerolog.Logger
	MetricsNamespace string
	MetricsEnabled   bool
	MetricsBuckets   []float64
	// MetricsRegistry defaults to the global registerer.
	MetricsRegistry prometheus.Registerer
	TracingEnabled  bool
	PprofEnabled    bool
	PprofUser       string
	PprofPass       string
	SecurityHeaders bool
	HSTS            bool
}

func newRouter(deps *app.Dependencies, opts routerOptions) http.Handler {
	cfg := deps.Config
	logger := opts.Logger

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.TracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if opts.MetricsEnabled {
		httpMetrics := obs.NewHTTPMetrics(opts.MetricsNamespace, opts.MetricsBuckets, opts.MetricsRegistry)
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: opts.SecurityHeaders, EnableHSTS: opts.HSTS}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"Location", "X-Total-Count", "X-Request-ID", "Retry-After", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if opts.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if opts.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), opts.PprofUser, opts.PprofPass))
	}

	healthHandler := health.Handler{Checks: deps.Checks()}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	mw := billing.Middlewares{}
	if deps.Redis != nil {
		mw.Idempotency = common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}.Middleware
	}
	if deps.RateLimiter != nil && cfg.RateLimitCalculatePerMin > 0 {
		mw.CalculateLimit = ratelimit.Handler{
			Limiter: deps.RateLimiter,
			Config: ratelimit.Config{
				Key:    ratelimit.ClientRouteKey("calculate"),
				Window: time.Minute,
				Max:    cfg.RateLimitCalculatePerMin,
			},
			Scope: "calculate",
			OnError: func(err error) {
				logger.Warn().Err(err).Msg("rate limit backend unavailable")
			},
		}.Middleware
	}
	billingHandler := &billing.Handler{Svc: deps.Billing}
	ledgerHandler := &ledger.Handler{Svc: deps.Ledger}

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
		billingHandler.Register(v, mw)
		ledgerHandler.Register(v)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorised", nil)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

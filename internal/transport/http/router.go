package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"cwtcli/internal/config"
	apperrors "cwtcli/internal/errors"
	"cwtcli/internal/infrastructure"
)

// RouterDeps carries everything the router mounts
type RouterDeps struct {
	Analytics AnalyticsService
	Audits    AuditReader
	DB        Pinger
	Version   string
	Logger    *slog.Logger
}

// NewRouter assembles the full API surface
func NewRouter(cfg config.ServerConfig, deps RouterDeps) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errorHandler := apperrors.NewErrorHandler(logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(rateLimiter(cfg))

	metrics := infrastructure.GetMetrics()
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", NewHealthHandler(deps.DB, deps.Version))
		r.Mount("/audits", NewAuditHandler(deps.Audits, logger, errorHandler).Routes())
		r.Mount("/", NewAnalyticsHandler(deps.Analytics, logger, errorHandler).Routes())
	})

	return r
}

// rateLimiter applies one shared token bucket across all clients
func rateLimiter(cfg config.ServerConfig) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				problem := &apperrors.Problem{
					Type:      "rate-limited",
					Title:     "Too many requests",
					Status:    http.StatusTooManyRequests,
					Retryable: true,
					RequestID: middleware.GetReqID(r.Context()),
				}
				_ = render.Render(w, r, problem)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs one line per request with latency
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t0 := time.Now()
			defer func() {
				logger.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(t0).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

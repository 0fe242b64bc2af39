// Package httpserver exposes the activation service over HTTP.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CloudNativeWorks/cnw-license-server/cnwlicense"
	"github.com/CloudNativeWorks/cnw-license-server/internal/config"
	"github.com/CloudNativeWorks/cnw-license-server/internal/ratelimit"
)

const maxRequestBytes = 64 << 10

// Server routes HTTP requests to a cnwlicense.Service.
type Server struct {
	svc            *cnwlicense.Service
	logger         *slog.Logger
	limiter        ratelimit.Limiter
	validate       *validator.Validate
	metrics        *metrics
	gatherer       prometheus.Gatherer
	requestTimeout time.Duration
	requestLog     bool
	requestLogJSON bool
	trustProxy     bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the application logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithLimiter enables rate limiting of /activate per client IP.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

// WithRegistry registers metrics on reg and serves them from /metrics.
// Default is a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.metrics = newMetrics(reg)
		s.gatherer = reg
	}
}

// WithRequestLogging enables per-request access logs.
func WithRequestLogging(json bool) Option {
	return func(s *Server) {
		s.requestLog = true
		s.requestLogJSON = json
	}
}

// WithTrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
// Enable it only behind a proxy that overwrites those headers; otherwise the
// socket address is used.
func WithTrustProxy() Option {
	return func(s *Server) {
		s.trustProxy = true
	}
}

// WithRequestTimeout bounds the time spent on a single activation. Default is 10s.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.requestTimeout = d
	}
}

// New creates a Server for svc.
func New(svc *cnwlicense.Service, opts ...Option) *Server {
	s := &Server{
		svc:            svc,
		logger:         slog.Default(),
		requestTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		reg := prometheus.NewRegistry()
		s.metrics = newMetrics(reg)
		s.gatherer = reg
	}
	s.logger = s.logger.With(slog.String("component", "http_server"))

	v := validator.New()
	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	s.validate = v
	return s
}

// Handler returns the router serving all endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	if s.requestLog {
		requestLogger := httplog.NewLogger("cnw-license-server", httplog.Options{
			LogLevel:         slog.LevelInfo,
			JSON:             s.requestLogJSON,
			Concise:          true,
			MessageFieldName: "msg",
		})
		r.Use(httplog.RequestLogger(requestLogger))
	}
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.rateLimit)
		}
		r.Post("/activate", s.handleActivate)
	})
	return r
}

// ListenAndServe serves on cfg's port until ctx is cancelled, then shuts down
// gracefully within cfg.ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, cfg config.ServerConfig) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

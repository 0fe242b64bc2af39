package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/CloudNativeWorks/cnw-license-server/cnwlicense"
)

const statusSuccess = "success"

// handleRoot handles GET /. It is a liveness probe only.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"message": "license server is running"})
}

// handleHealth handles GET /healthz. It reports 503 until storage and the
// signing secret are configured and the store answers a ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ready(r.Context()); err != nil {
		s.logger.WarnContext(r.Context(), "readiness check failed", slog.String("error", err.Error()))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "unavailable"})
		return
	}
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// handleActivate handles POST /activate.
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()
	start := time.Now()
	defer func() { s.metrics.duration.Observe(time.Since(start).Seconds()) }()

	var req cnwlicense.ActivateRequest
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxRequestBytes), &req); err != nil {
		s.fail(w, r, newErrorResponse(http.StatusBadRequest, cnwlicense.CodeInvalidRequest, "invalid request body"), outcomeInvalidRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.fail(w, r, newErrorResponse(http.StatusBadRequest, cnwlicense.CodeInvalidRequest, validationMessage(err)), outcomeInvalidRequest)
		return
	}

	res, err := s.svc.Activate(ctx, req.ProductKey, req.MachineID)
	if err != nil {
		resp, outcome := classify(err)
		if resp.HTTPStatus >= http.StatusInternalServerError {
			s.logger.ErrorContext(ctx, "activation failed",
				slog.String("request_id", middleware.GetReqID(ctx)),
				slog.String("machine_id", req.MachineID),
				slog.String("error", err.Error()),
			)
		}
		s.fail(w, r, resp, outcome)
		return
	}

	if res.Created {
		s.metrics.activations.WithLabelValues(outcomeActivated).Inc()
	} else {
		s.metrics.activations.WithLabelValues(outcomeRepeat).Inc()
	}
	render.JSON(w, r, cnwlicense.ActivateResponse{
		Status:     statusSuccess,
		LicenseKey: res.Credential,
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, resp *errorResponse, outcome string) {
	s.metrics.activations.WithLabelValues(outcome).Inc()
	if err := render.Render(w, r, resp); err != nil {
		s.logger.ErrorContext(r.Context(), "render error response", slog.String("error", err.Error()))
	}
}

// rateLimit rejects requests from client IPs that exceed the limiter.
// Limiter failures let the request through.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ok, err := s.limiter.Allow(ctx, clientIP(r))
		if err != nil {
			s.logger.WarnContext(ctx, "rate limiter unavailable", slog.String("error", err.Error()))
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			s.logger.WarnContext(ctx, "rate limit exceeded",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "60")
			s.fail(w, r, newErrorResponse(http.StatusTooManyRequests, cnwlicense.CodeRateLimited, "rate limit exceeded"), outcomeRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the host part of RemoteAddr. RemoteAddr is the socket
// peer unless WithTrustProxy installed RealIP.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// validationMessage turns validator errors into "field: rule" pairs.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+": "+fe.Tag())
	}
	return strings.Join(parts, ", ")
}

// Package handler exposes the intake pipeline over a websocket event channel
// plus the health and metrics endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"

	"casegate/internal/intake/metrics"
	"casegate/internal/intake/models"
	dErrors "casegate/pkg/domain-errors"
	"casegate/pkg/platform/httputil"
)

const (
	// EventSubmit is the inbound frame type carrying a submission.
	EventSubmit = "event"
	// EventVerification is the outbound frame type carrying an outcome.
	EventVerification = "verification"
	// EventError is the outbound frame type for failed frames.
	EventError = "error"
)

// Service defines the interface for intake operations. Reject records a
// payload that never became a submission.
type Service interface {
	Submit(ctx context.Context, sub models.Submission) (*models.Outcome, error)
	Reject(ctx context.Context, err error) error
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) Health(ctx context.Context) error { return f(ctx) }

// Handler wires the intake endpoints to the intake service.
type Handler struct {
	service    Service
	dispatcher *Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
	checks     map[string]HealthChecker
	throttle   func(http.Handler) http.Handler
	authorize  func(http.Handler) http.Handler
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithGatherer serves the given registry on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.gatherer = g
	}
}

// WithHealthCheck adds a named dependency to /health.
func WithHealthCheck(name string, checker HealthChecker) Option {
	return func(h *Handler) {
		if checker != nil {
			h.checks[name] = checker
		}
	}
}

// WithAuth guards the websocket upgrade with the given middleware.
func WithAuth(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.authorize = mw
	}
}

// WithConnectLimit throttles websocket upgrades before authentication runs.
func WithConnectLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.throttle = mw
	}
}

// New constructs an intake handler and registers the submit event.
func New(service Service, opts ...Option) *Handler {
	h := &Handler{
		service:    service,
		dispatcher: NewDispatcher(),
		logger:     slog.Default(),
		checks:     make(map[string]HealthChecker),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.dispatcher.Register(EventSubmit, h.handleSubmit)
	return h
}

// Dispatcher exposes the frame router so callers can register more events.
func (h *Handler) Dispatcher() *Dispatcher {
	return h.dispatcher
}

// Register mounts the intake endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	var ws http.Handler = http.HandlerFunc(h.HandleWebsocket)
	if h.authorize != nil {
		ws = h.authorize(ws)
	}
	if h.throttle != nil {
		ws = h.throttle(ws)
	}
	r.Method(http.MethodGet, "/ws", ws)
	r.Get("/health", h.HandleHealth)
	if h.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
}

// HandleWebsocket upgrades GET /ws and serves frames until the client leaves.
func (h *Handler) HandleWebsocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(h.serveConn).ServeHTTP(w, r)
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]any{"status": "ok"}
	deps := make(map[string]string, len(h.checks))
	for name, checker := range h.checks {
		if err := checker.Health(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
			deps[name] = "unavailable"
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			continue
		}
		deps[name] = "ok"
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}
	httputil.WriteJSON(w, status, body)
}

func (h *Handler) handleSubmit(ctx context.Context, payload json.RawMessage) (*Reply, error) {
	var req SubmitRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, h.service.Reject(ctx, dErrors.New(dErrors.CodeBadRequest, "invalid event payload"))
	}
	sub, err := req.ToSubmission()
	if err != nil {
		return nil, h.service.Reject(ctx, err)
	}

	outcome, err := h.service.Submit(ctx, sub)
	if err != nil {
		return nil, err
	}
	return &Reply{Type: EventVerification, Payload: FromOutcome(outcome)}, nil
}

// Package api provides HTTP handlers for the compiler API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
	apimw "github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/api/middleware"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/events"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/installer"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/scheduler"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/store"
)

// =============================================================================
// Collaborators
// =============================================================================

// Queue is the scheduler surface the API drives.
type Queue interface {
	Enqueue(appID string, force bool) *scheduler.Ticket
	QueueStatus(ctx context.Context) scheduler.QueueStatus
	RecentJobs(limit int) []domain.Job
	IsBuilding(appID string) bool
	IsQueued(appID string) bool
	CancelQueued(appID string) bool
}

// Platform starts, stops and removes installed applications.
type Platform interface {
	Toggle(ctx context.Context, appID string, start bool) (installer.Outcome, error)
	Uninstall(ctx context.Context, appID string, preserveData bool) (installer.Outcome, error)
	AppStatus(ctx context.Context, appID string) installer.AppStatus
}

// EventHub streams and replays application events.
type EventHub interface {
	Subscribe(appID string, client events.Subscriber, replay int)
	Unregister(appID string, client events.Subscriber)
	Recent(appID string, n int) []events.Event
	Forget(appID string)
	Status(app *domain.Application)
}

// Pinger reports whether the container runtime is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps groups the handler's collaborators.
type Deps struct {
	Store    store.Store
	Queue    Queue
	Platform Platform
	Events   EventHub
	Docker   Pinger

	// Gatherer serves /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer

	// Token enables shared-token authentication on /api/v1 when set.
	Token string
}

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	store    store.Store
	queue    Queue
	platform Platform
	events   EventHub
	docker   Pinger
	gatherer prometheus.Gatherer
	auth     *apimw.AuthMiddleware
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		store:    deps.Store,
		queue:    deps.Queue,
		platform: deps.Platform,
		events:   deps.Events,
		docker:   deps.Docker,
		gatherer: gatherer,
		auth:     apimw.NewAuthMiddleware(apimw.AuthConfig{Token: deps.Token, Logger: l}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: l,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.With(h.jsonContentType).Get("/health", h.handleHealth)
	r.With(h.jsonContentType).Get("/ready", h.handleReady)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.auth.Handler)
		r.Use(h.jsonContentType)

		r.Route("/apps", func(r chi.Router) {
			r.Post("/", h.handleCreateApp)
			r.Get("/", h.handleListApps)
			r.Get("/{id}", h.handleGetApp)
			r.Put("/{id}", h.handleUpdateApp)
			r.Delete("/{id}", h.handleDeleteApp)
			r.Post("/{id}/deploy", h.handleDeployApp)
			r.Delete("/{id}/queue", h.handleCancelQueued)
			r.Post("/{id}/start", h.handleStartApp)
			r.Post("/{id}/stop", h.handleStopApp)
			r.Post("/{id}/uninstall", h.handleUninstallApp)
			r.Get("/{id}/logs", h.handleAppLogs)
			r.Get("/{id}/events", h.handleEventStream)
		})

		r.Get("/queue", h.handleQueueStatus)
		r.Get("/jobs", h.handleListJobs)
		r.Get("/settings", h.handleGetSettings)
		r.Put("/settings", h.handleUpdateSettings)
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	// Store is ready if settings can be read
	if _, err := h.store.GetSettings(r.Context()); err != nil {
		checks["store"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Checks: checks})
		return
	}
	checks["store"] = "ok"

	if h.docker != nil {
		if err := h.docker.Ping(r.Context()); err != nil {
			checks["docker"] = "failed"
			h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Checks: checks})
			return
		}
		checks["docker"] = "ok"
	}

	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// writeDomainError maps the deployment error taxonomy to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	kind := domain.ErrorKind(err)
	status := http.StatusInternalServerError
	switch kind {
	case "validation":
		status = http.StatusBadRequest
	case "platform_unavailable":
		status = http.StatusServiceUnavailable
	case "timeout":
		status = http.StatusGatewayTimeout
	case "external_tool", "verification_mismatch":
		status = http.StatusBadGateway
	}
	h.writeError(w, status, err.Error(), kind)
}

// queryInt parses a non-negative integer query parameter.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// isNotFound checks if an error is a not found error.
func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

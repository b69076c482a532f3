package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotifier/internal/shared"
	"github.com/desertthunder/spotifier/internal/tasks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Syncer starts and reports on background library syncs.
type Syncer interface {
	Sync(ctx context.Context, userID string) (tasks.SyncResult, error)
	Status(userID string) (tasks.SyncResult, bool)
}

// QueueStater reports detail queue state.
type QueueStater interface {
	Stats() tasks.QueueStats
}

// SyncResponse is the JSON form of a [tasks.SyncResult].
type SyncResponse struct {
	UserID     string     `json:"user_id"`
	Status     string     `json:"status"`
	Pages      int        `json:"pages"`
	Tracks     int        `json:"tracks"`
	Artists    int        `json:"artists"`
	Created    int        `json:"created"`
	Assigned   int        `json:"assigned"`
	Enqueued   int        `json:"enqueued"`
	Refreshed  bool       `json:"refreshed"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func newSyncResponse(r tasks.SyncResult) SyncResponse {
	resp := SyncResponse{
		UserID:    r.UserID,
		Status:    r.Status.String(),
		Pages:     r.Pages,
		Tracks:    r.Tracks,
		Artists:   r.Artists,
		Created:   r.Created,
		Assigned:  r.Assigned,
		Enqueued:  r.Enqueued,
		Refreshed: r.Refreshed,
	}
	if r.Err != nil {
		resp.Error = r.Err.Error()
	}
	if !r.StartedAt.IsZero() {
		resp.StartedAt = &r.StartedAt
	}
	if !r.FinishedAt.IsZero() {
		resp.FinishedAt = &r.FinishedAt
	}
	return resp
}

type errorResponse struct {
	Error string `json:"error"`
}

// SyncHandler exposes library syncs over HTTP.
//
//	POST /sync?user=<id>         starts a background sync, 202 Accepted
//	GET  /sync/status?user=<id>  latest result for the user
type SyncHandler struct {
	syncer Syncer
	logger *log.Logger
}

// NewSyncHandler creates a [SyncHandler].
func NewSyncHandler(syncer Syncer, logger *log.Logger) *SyncHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SyncHandler{syncer: syncer, logger: shared.WithLogger(logger, "component", "sync_handler")}
}

// Routes implements [Handler].
func (h *SyncHandler) Routes() []string {
	return []string{"POST /sync", "GET /sync/status"}
}

// ServeHTTP implements [Handler].
func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")

	if r.URL.Path == "/sync/status" {
		result, ok := h.syncer.Status(userID)
		if !ok {
			writeError(w, http.StatusNotFound, "no sync started for user")
			return
		}
		writeJSON(w, http.StatusOK, newSyncResponse(result))
		return
	}

	result, err := h.syncer.Sync(r.Context(), userID)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("failed to start sync", "user", userID, "err", err)
		}
		writeError(w, status, err.Error())
		return
	}
	h.logger.Info("sync started", "user", userID)
	writeJSON(w, http.StatusAccepted, newSyncResponse(result))
}

// HealthHandler reports liveness and the detail queue counters.
type HealthHandler struct {
	queue QueueStater
}

// NewHealthHandler creates a [HealthHandler]. queue may be nil.
func NewHealthHandler(queue QueueStater) *HealthHandler {
	return &HealthHandler{queue: queue}
}

// Routes implements [Handler].
func (h *HealthHandler) Routes() []string {
	return []string{"GET /healthz"}
}

// ServeHTTP implements [Handler].
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if h.queue != nil {
		stats := h.queue.Stats()
		body["queue"] = map[string]any{
			"state":     stats.State.String(),
			"queued":    stats.Queued,
			"running":   stats.Running,
			"completed": stats.Completed,
			"failed":    stats.Failed,
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// NewAPIRouter builds the router served by the long-running process.
//
// Metrics are exposed at /metrics from gatherer.
func NewAPIRouter(syncer Syncer, queue QueueStater, gatherer prometheus.Gatherer, logger *log.Logger) *BasicRouter {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	router := NewBasicRouter()
	router.Use(Recoverer(logger), RequestLogger(logger))
	router.Handler(NewSyncHandler(syncer, logger))
	router.Handler(NewHealthHandler(queue))
	router.Handle(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return router
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrSyncInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

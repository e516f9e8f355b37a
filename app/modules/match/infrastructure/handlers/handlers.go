package matchhandlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	matchservice "github.com/north-end-collective/matchday-bot/app/modules/match/application"
	"github.com/north-end-collective/matchday-bot/internal/observability/attr"
)

// MatchHandlers exposes the scheduling service over HTTP for the admin panel.
type MatchHandlers struct {
	service matchservice.Service
	health  func(ctx context.Context) error
	logger  *slog.Logger
}

// NewMatchHandlers creates the HTTP handlers. health is the queue health
// probe backing /healthz; nil means always healthy.
func NewMatchHandlers(service matchservice.Service, health func(ctx context.Context) error, logger *slog.Logger) *MatchHandlers {
	return &MatchHandlers{
		service: service,
		health:  health,
		logger:  logger,
	}
}

// RegisterRoutes mounts every match-task route onto the router. All mutating
// routes sit behind the admin-role middleware installed by the caller.
func (h *MatchHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/matches/{matchID}/tasks", h.HandleMatchTaskStatus)
	r.Post("/matches/{matchID}/schedule", h.HandleScheduleMatch)
	r.Delete("/matches/{matchID}/schedule", h.HandleUnscheduleMatch)
	r.Post("/matches/{matchID}/resync", h.HandleResyncMatch)
	r.Post("/matches/schedule-all", h.HandleScheduleAll)
	r.Post("/tasks/revoke-all", h.HandleRevokeAll)
	r.Post("/tasks/recover", h.HandleRecover)
	r.Get("/tasks/monitor", h.HandleMonitor)
}

// HandleMatchTaskStatus returns the aggregated task status for one match.
func (h *MatchHandlers) HandleMatchTaskStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	matchID, ok := h.matchID(w, r)
	if !ok {
		return
	}

	status, err := h.service.GetMatchTaskStatus(ctx, matchID)
	if err != nil {
		h.writeServiceError(ctx, w, "get match task status", err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// HandleScheduleMatch ensures both tasks exist for one match. The force query
// parameter revokes and rebuilds existing tasks.
func (h *MatchHandlers) HandleScheduleMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	matchID, ok := h.matchID(w, r)
	if !ok {
		return
	}
	force := r.URL.Query().Get("force") == "1" || r.URL.Query().Get("force") == "true"

	report, err := h.service.ScheduleMatchTasks(ctx, matchID, force)
	if err != nil {
		h.writeServiceError(ctx, w, "schedule match tasks", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// HandleUnscheduleMatch revokes both tasks for one match.
func (h *MatchHandlers) HandleUnscheduleMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	matchID, ok := h.matchID(w, r)
	if !ok {
		return
	}

	report, err := h.service.UnscheduleMatchTasks(ctx, matchID)
	if err != nil {
		h.writeServiceError(ctx, w, "unschedule match tasks", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// HandleResyncMatch runs one reconciliation pass and returns the action list.
func (h *MatchHandlers) HandleResyncMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	matchID, ok := h.matchID(w, r)
	if !ok {
		return
	}

	report, err := h.service.ResyncMatch(ctx, matchID)
	if err != nil {
		h.writeServiceError(ctx, w, "resync match", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// HandleScheduleAll reconciles every match in the lookahead window.
func (h *MatchHandlers) HandleScheduleAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.service.EnsureWindowScheduled(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "ensure window scheduled", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// HandleRevokeAll is the emergency stop.
func (h *MatchHandlers) HandleRevokeAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.service.RevokeAll(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "revoke all", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// HandleRecover runs the full reset: revoke everything then reschedule.
func (h *MatchHandlers) HandleRecover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.service.Recover(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "recover", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// HandleMonitor lists every live queue job and marker.
func (h *MatchHandlers) HandleMonitor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.service.MonitorScheduledTasks(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "monitor scheduled tasks", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// HandleHealth reports queue reachability.
func (h *MatchHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *MatchHandlers) matchID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "matchID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid match id"})
		return 0, false
	}
	return id, true
}

// writeServiceError maps service errors onto HTTP statuses. The raw error
// string goes into the payload: operators prefer visible failures over
// polished ones.
func (h *MatchHandlers) writeServiceError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	if errors.Is(err, matchservice.ErrMatchNotFound) {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "match not found"})
		return
	}
	h.logger.ErrorContext(ctx, "Request failed",
		attr.String("operation", operation),
		attr.Error(err))
	h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (h *MatchHandlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", attr.Error(err))
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/leeaandrob/volwatch/internal/content"
	"github.com/leeaandrob/volwatch/internal/gate"
	"github.com/leeaandrob/volwatch/internal/models"
	"github.com/leeaandrob/volwatch/internal/pipeline"
	"github.com/leeaandrob/volwatch/internal/storage"
)

// HistoryStore is the read side of the notification history.
type HistoryStore interface {
	GetRecentNotifications(ctx context.Context, limit int) ([]models.NotificationRecord, error)
	GetLatestCalendarSnapshot(ctx context.Context) (*models.CalendarSnapshot, error)
	GetStats(ctx context.Context) (*storage.Stats, error)
}

// Handlers holds the API handlers.
type Handlers struct {
	store  HistoryStore
	runner *pipeline.Runner
}

// NewHandlers creates new API handlers.
func NewHandlers(store HistoryStore, runner *pipeline.Runner) *Handlers {
	return &Handlers{store: store, runner: runner}
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func getLimit(r *http.Request, defaultLimit int) int {
	limit := defaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	return limit
}

// ============================================================================
// STATE HANDLERS
// ============================================================================

// GetState returns the last evaluated state and the gate latch.
// With ?debug=1 it also runs a fresh evaluation and returns the clusters.
func (h *Handlers) GetState(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		respondError(w, http.StatusServiceUnavailable, "Runner not available")
		return
	}

	resp := map[string]interface{}{
		"now":   h.runner.Now(),
		"latch": h.runner.Gate().Snapshot(),
	}
	if out := h.runner.Current(); out != nil {
		resp["last_tick"] = out
	}
	if r.URL.Query().Get("debug") == "1" {
		resp["evaluation"] = h.runner.Evaluate(r.Context())
	}

	respondJSON(w, http.StatusOK, resp)
}

// previewRequest is a payload plus an optional candidate text to validate.
type previewRequest struct {
	models.VolatilityPayload
	Text     string `json:"text,omitempty"`
	Generate bool   `json:"generate,omitempty"`
}

// Preview renders the template for a posted payload and validates it, or a posted text.
// With "generate": true it runs the full generative path.
func (h *Handlers) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if req.State != models.StateGreen && req.State != models.StateRed {
		respondError(w, http.StatusBadRequest, "state must be GREEN or RED")
		return
	}
	if req.Phase == "" {
		req.Phase = models.PhaseNone
	}

	generator := content.NewGenerator(nil, content.DefaultPolicy(), 0)
	if h.runner != nil {
		generator = h.runner.Generator()
	}
	policy := generator.Policy()

	resp := map[string]interface{}{
		"template": content.RenderTemplate(req.VolatilityPayload),
	}
	if req.Text != "" {
		resp["validation"] = policy.Validate(req.Text, req.VolatilityPayload)
	} else {
		resp["validation"] = policy.Validate(resp["template"].(string), req.VolatilityPayload)
	}
	if req.Generate {
		resp["generation"] = generator.Generate(r.Context(), req.VolatilityPayload)
	}

	respondJSON(w, http.StatusOK, resp)
}

// ============================================================================
// HISTORY HANDLERS
// ============================================================================

// GetNotifications returns recent notification records.
func (h *Handlers) GetNotifications(w http.ResponseWriter, r *http.Request) {
	limit := getLimit(r, 20)

	records, err := h.store.GetRecentNotifications(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch notifications")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": records,
		"count":         len(records),
	})
}

// GetCalendar returns the latest stored calendar snapshot.
func (h *Handlers) GetCalendar(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.GetLatestCalendarSnapshot(r.Context())
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "No calendar snapshot yet")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch calendar")
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

// GetStats returns general statistics.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch stats")
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// HealthCheck returns service health.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":  "healthy",
		"service": "volwatch",
	}
	if h.runner != nil {
		if out := h.runner.Current(); out != nil {
			resp["last_tick_at"] = out.EvaluatedAt.Format(time.RFC3339)
			resp["state"] = out.State.State
			resp["phase"] = out.State.Phase
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// tickResponse is returned by the manual tick trigger.
type tickResponse struct {
	Outcome       *pipeline.Outcome `json:"outcome"`
	DeliveryError string            `json:"delivery_error,omitempty"`
	Latch         gate.Latch        `json:"latch"`
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
)

const defaultJobLimit = 20

// =============================================================================
// Queue Handlers
// =============================================================================

func (h *Handler) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.queue.QueueStatus(r.Context()))
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.queue.RecentJobs(queryInt(r, "limit", defaultJobLimit))
	if jobs == nil {
		jobs = []domain.Job{}
	}
	h.writeJSON(w, http.StatusOK, ListJobsResponse{Jobs: jobs, Total: len(jobs)})
}

// =============================================================================
// Settings Handlers
// =============================================================================

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.GetSettings(r.Context())
	if err != nil {
		h.logger.Error("failed to read settings", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to read settings", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

// handleUpdateSettings replaces the settings. Omitted fields keep their
// current values; zero values fall back to defaults.
func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	current, err := h.store.GetSettings(r.Context())
	if err != nil {
		h.logger.Error("failed to read settings", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to read settings", "internal_error")
		return
	}

	if err := json.NewDecoder(r.Body).Decode(&current); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}
	if current.ConcurrencyLimit < 0 {
		h.writeError(w, http.StatusBadRequest, "concurrency_limit must be positive", "validation_error")
		return
	}

	updated := current.Normalize()
	if err := h.store.SaveSettings(r.Context(), updated); err != nil {
		h.logger.Error("failed to save settings", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to save settings", "internal_error")
		return
	}

	h.logger.Info("settings updated", "concurrency_limit", updated.ConcurrencyLimit, "ref_domain", updated.RefDomain)
	h.writeJSON(w, http.StatusOK, updated)
}

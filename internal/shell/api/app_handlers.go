package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/compose"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
)

const defaultLogLimit = 100

// =============================================================================
// Application Handlers
// =============================================================================

func (h *Handler) handleCreateApp(w http.ResponseWriter, r *http.Request) {
	var req CreateAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	kind := domain.SourceKind(req.SourceKind)
	if kind == "" {
		kind = domain.SourceRepository
		if req.Descriptor != "" {
			kind = domain.SourceDescriptor
		}
	}

	id := req.ID
	if kind == domain.SourceDescriptor {
		desc, err := compose.Parse(req.Descriptor)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
			return
		}
		if id == "" {
			id = desc.AppID()
		}
		if desc.AppID() != id {
			h.writeError(w, http.StatusBadRequest, "descriptor name must equal the application id", "validation_error")
			return
		}
	}
	if id == "" {
		name := req.Name
		if name == "" {
			name = strings.TrimSuffix(path.Base(req.RepoURL), ".git")
		}
		id = domain.AppIDFromName(name)
	}

	app, err := domain.NewApplication(id, req.Name, kind)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}
	app.RepoURL = req.RepoURL
	app.Branch = req.Branch
	app.ComposePath = req.ComposePath
	app.Descriptor = req.Descriptor
	app.AutoUpdate = req.AutoUpdate
	if err := app.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	if _, err := h.store.GetApplication(r.Context(), id); err == nil {
		h.writeError(w, http.StatusConflict, "application "+id+" already exists", "conflict")
		return
	} else if !isNotFound(err) {
		h.logger.Error("failed to check application", "app_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create application", "internal_error")
		return
	}

	if err := h.store.SaveApplication(r.Context(), app); err != nil {
		h.logger.Error("failed to create application", "app_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create application", "internal_error")
		return
	}

	h.logger.Info("application registered", "app_id", id, "source", kind)
	h.writeJSON(w, http.StatusCreated, h.appToResponse(app))
}

func (h *Handler) handleListApps(w http.ResponseWriter, r *http.Request) {
	apps, err := h.store.ListApplications(r.Context())
	if err != nil {
		h.logger.Error("failed to list applications", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list applications", "internal_error")
		return
	}

	resp := ListAppsResponse{Apps: make([]AppResponse, 0, len(apps)), Total: len(apps)}
	for i := range apps {
		resp.Apps = append(resp.Apps, h.appToResponse(&apps[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// handleGetApp returns an application. With ?refresh=true the installed and
// running flags are re-read from the platform first.
func (h *Handler) handleGetApp(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadApp(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("refresh") == "true" && !h.busy(app.ID) {
		status := h.platform.AppStatus(r.Context(), app.ID)
		if status.Installed != app.IsInstalled || status.Running != app.IsRunning {
			app.IsInstalled = status.Installed
			app.IsRunning = status.Running
			if err := h.store.SaveApplication(r.Context(), app); err != nil {
				h.logger.Warn("failed to persist refreshed status", "app_id", app.ID, "error", err)
			}
		}
	}

	h.writeJSON(w, http.StatusOK, h.appToResponse(app))
}

func (h *Handler) handleUpdateApp(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadApp(w, r)
	if !ok {
		return
	}
	if h.busy(app.ID) {
		h.writeError(w, http.StatusConflict, "application is queued or building", "conflict")
		return
	}

	var req UpdateAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	if req.Name != nil {
		app.Name = *req.Name
	}
	if req.RepoURL != nil {
		app.RepoURL = *req.RepoURL
	}
	if req.Branch != nil {
		app.Branch = *req.Branch
	}
	if req.ComposePath != nil {
		app.ComposePath = *req.ComposePath
	}
	if req.AutoUpdate != nil {
		app.AutoUpdate = *req.AutoUpdate
	}
	if req.Descriptor != nil {
		desc, err := compose.Parse(*req.Descriptor)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
			return
		}
		if desc.AppID() != app.ID {
			h.writeError(w, http.StatusBadRequest, "descriptor name must equal the application id", "validation_error")
			return
		}
		app.Descriptor = *req.Descriptor
	}
	if err := app.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	if err := h.store.SaveApplication(r.Context(), app); err != nil {
		h.logger.Error("failed to update application", "app_id", app.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to update application", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, h.appToResponse(app))
}

// handleDeleteApp removes the record of an application that is not
// installed. Installed applications must be uninstalled first.
func (h *Handler) handleDeleteApp(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadApp(w, r)
	if !ok {
		return
	}
	if h.busy(app.ID) {
		h.writeError(w, http.StatusConflict, "application is queued or building", "conflict")
		return
	}
	if app.IsInstalled {
		h.writeError(w, http.StatusConflict, "application is installed; uninstall it first", "conflict")
		return
	}

	if err := h.store.DeleteApplication(r.Context(), app.ID); err != nil {
		h.logger.Error("failed to delete application", "app_id", app.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete application", "internal_error")
		return
	}
	h.events.Forget(app.ID)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Deployment Handlers
// =============================================================================

func (h *Handler) handleDeployApp(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadApp(w, r)
	if !ok {
		return
	}

	var req DeployRequest
	if err := decodeOptional(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	ticket := h.queue.Enqueue(app.ID, req.Force)
	if !ticket.Accepted {
		res := ticket.Wait(r.Context())
		h.writeJSON(w, http.StatusConflict, DeployResponse{Accepted: false, Job: ticket.Job, Result: &res})
		return
	}

	if !req.Wait {
		h.writeJSON(w, http.StatusAccepted, DeployResponse{Accepted: true, Job: ticket.Job})
		return
	}

	res := ticket.Wait(r.Context())
	h.writeJSON(w, http.StatusOK, DeployResponse{Accepted: true, Job: ticket.Job, Result: &res})
}

func (h *Handler) handleCancelQueued(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.queue.CancelQueued(id) {
		h.writeError(w, http.StatusNotFound, "no queued deployment for "+id, "not_found")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"app_id": id, "cancelled": true})
}

// =============================================================================
// Lifecycle Handlers
// =============================================================================

func (h *Handler) handleStartApp(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

func (h *Handler) handleStopApp(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, start bool) {
	app, ok := h.loadApp(w, r)
	if !ok {
		return
	}
	if h.busy(app.ID) {
		h.writeError(w, http.StatusConflict, "application is queued or building", "conflict")
		return
	}
	action := "stop"
	if start {
		action = "start"
	}

	outcome, err := h.platform.Toggle(r.Context(), app.ID, start)
	if err != nil {
		h.logger.Warn("toggle failed", "app_id", app.ID, "action", action, "error", err)
		h.writeDomainError(w, err)
		return
	}

	app.IsRunning = start
	h.persist(r, app)
	h.writeJSON(w, http.StatusOK, LifecycleResponse{AppID: app.ID, Action: action, Outcome: string(outcome)})
}

func (h *Handler) handleUninstallApp(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadApp(w, r)
	if !ok {
		return
	}
	if h.busy(app.ID) {
		h.writeError(w, http.StatusConflict, "application is queued or building", "conflict")
		return
	}

	var req UninstallRequest
	if err := decodeOptional(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	outcome, err := h.platform.Uninstall(r.Context(), app.ID, req.PreserveData)
	if err != nil {
		h.logger.Warn("uninstall failed", "app_id", app.ID, "error", err)
		h.writeDomainError(w, err)
		return
	}

	app.IsInstalled = false
	app.IsRunning = false
	h.persist(r, app)
	h.writeJSON(w, http.StatusOK, LifecycleResponse{AppID: app.ID, Action: "uninstall", Outcome: string(outcome)})
}

func (h *Handler) handleAppLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := queryInt(r, "limit", defaultLogLimit)

	recent := h.events.Recent(id, limit)
	resp := LogsResponse{AppID: id, Entries: make([]LogEntry, 0, len(recent))}
	for _, ev := range recent {
		resp.Entries = append(resp.Entries, LogEntry{
			Kind:     string(ev.Kind),
			Severity: string(ev.Severity),
			Message:  ev.Message,
			Status:   ev.Status,
			Progress: ev.Progress,
			Time:     ev.Time,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Helpers
// =============================================================================

// loadApp fetches the application named in the URL or writes an error.
func (h *Handler) loadApp(w http.ResponseWriter, r *http.Request) (*domain.Application, bool) {
	id := chi.URLParam(r, "id")
	app, err := h.store.GetApplication(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "application not found", "not_found")
			return nil, false
		}
		h.logger.Error("failed to get application", "app_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get application", "internal_error")
		return nil, false
	}
	return app, true
}

func (h *Handler) busy(appID string) bool {
	return h.queue.IsBuilding(appID) || h.queue.IsQueued(appID)
}

func (h *Handler) persist(r *http.Request, app *domain.Application) {
	if err := h.store.SaveApplication(r.Context(), app); err != nil {
		h.logger.Warn("failed to persist application", "app_id", app.ID, "error", err)
	}
	h.events.Status(app)
}

func (h *Handler) appToResponse(app *domain.Application) AppResponse {
	return AppResponse{
		Application: *app,
		Queued:      h.queue.IsQueued(app.ID),
		Building:    h.queue.IsBuilding(app.ID),
	}
}

// decodeOptional decodes a JSON body, treating an empty body as zero values.
func decodeOptional(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

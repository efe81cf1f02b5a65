package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ingeweb/contactws/internal/model"
	"github.com/ingeweb/contactws/internal/notify"
	"github.com/ingeweb/contactws/internal/reconcile"
	"github.com/ingeweb/contactws/internal/task"
)

// StatsReader exposes the statistics of the last reconciliation run.
type StatsReader interface {
	LoadStats(ctx context.Context) (*model.SyncStats, error)
}

// TaskTrigger starts scheduled tasks on demand.
type TaskTrigger interface {
	Trigger(ctx context.Context, name string) error
	Statuses() []task.Status
}

// AdminHandler serves the site administrator API. Routes are mounted
// behind auth.RequireAuth and auth.RequireSiteAdmin.
type AdminHandler struct {
	stats  StatsReader
	tasks  TaskTrigger
	logger *slog.Logger
}

func NewAdminHandler(stats StatsReader, tasks TaskTrigger, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{stats: stats, tasks: tasks, logger: logger}
}

// HandleSyncStats returns the statistics published by the last run.
//
// HTTP: GET /api/sync/stats
func (h *AdminHandler) HandleSyncStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.stats.LoadStats(r.Context())
	if err != nil {
		h.logger.Error("loading sync stats failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	if st.MissingUsers == nil {
		st.MissingUsers = []model.MissingUser{}
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleRunSync starts a reconciliation run.
//
// HTTP: POST /api/sync/run → 202, or 409 while a run is in progress
func (h *AdminHandler) HandleRunSync(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, reconcile.TaskName)
}

// HandleRunNotify sends the administrator report now.
//
// HTTP: POST /api/notify/run
func (h *AdminHandler) HandleRunNotify(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, notify.TaskName)
}

// HandleTasks lists the registered tasks and their last outcome.
//
// HTTP: GET /api/tasks
func (h *AdminHandler) HandleTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tasks.Statuses())
}

func (h *AdminHandler) trigger(w http.ResponseWriter, r *http.Request, name string) {
	if err := h.tasks.Trigger(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("task triggered from admin api", slog.String("task", name))
	writeJSON(w, http.StatusAccepted, map[string]string{"task": name, "status": "started"})
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-sync-client/internal/gateway"
	"github.com/BuzzLyutic/task-sync-client/internal/model"
	"github.com/BuzzLyutic/task-sync-client/internal/service"
	"github.com/BuzzLyutic/task-sync-client/internal/view"
	"github.com/BuzzLyutic/task-sync-client/internal/worker"
	"github.com/BuzzLyutic/task-sync-client/pkg/respond"
)

// Identity supplies the signed-in user's display name.
type Identity interface {
	DisplayName() string
}

type StaticIdentity string

func (s StaticIdentity) DisplayName() string { return string(s) }

type Notifications interface {
	Items() []model.Notification
	Remove(id int64) bool
}

// Purger drops locally persisted pages. storage.RedisSnapshots satisfies it.
type Purger interface {
	Purge(ctx context.Context) error
}

// TaskHandler exposes the synchronized task list to a presentation layer.
type TaskHandler struct {
	service  *service.TaskService
	view     *view.Controller
	notices  Notifications
	identity Identity
	purger   Purger
	logger   *zap.Logger
}

// NewTaskHandler wires the bridge. purger may be nil when no snapshots are
// kept.
func NewTaskHandler(srv *service.TaskService, ctrl *view.Controller, notices Notifications, identity Identity, purger Purger, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service:  srv,
		view:     ctrl,
		notices:  notices,
		identity: identity,
		purger:   purger,
		logger:   logger,
	}
}

func (h *TaskHandler) Routes(r chi.Router) {
	r.Get("/me", h.Me)
	r.Post("/logout", h.Logout)

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Post("/reset", h.ResetFilters)
		r.Post("/refresh", h.Refresh)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
		r.Post("/{id}/toggle", h.Toggle)
	})

	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.Session)
		r.Post("/", h.OpenSession)
		r.Delete("/", h.CloseSession)
	})

	r.Get("/notifications", h.Notifications)
	r.Delete("/notifications/{id}", h.Dismiss)
}

type filterResponse struct {
	Search   string         `json:"search"`
	Status   model.Status   `json:"status"`
	Priority model.Priority `json:"priority"`
}

type paginationResponse struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
	TotalItems int `json:"totalItems"`
}

type listResponse struct {
	Tasks      []view.Row         `json:"tasks"`
	Pagination paginationResponse `json:"pagination"`
	Filters    filterResponse     `json:"filters"`
	Loaded     bool               `json:"loaded"`
	Status     string             `json:"status"`
	Error      string             `json:"error,omitempty"`
	Empty      view.EmptyState    `json:"empty,omitempty"`
}

func (h *TaskHandler) Me(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, r, http.StatusOK, map[string]string{"name": h.identity.DisplayName()})
}

// Logout drops the persisted pages and the local list state of the signed-in
// user.
func (h *TaskHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.purger != nil {
		if err := h.purger.Purge(r.Context()); err != nil {
			h.logger.Error("failed to purge snapshots", zap.Error(err))
			respond.Error(w, r, http.StatusInternalServerError, "failed to clear local data")
			return
		}
	}
	h.service.CloseSession()
	h.view.ResetFilters()
	h.view.Refresh()
	w.WriteHeader(http.StatusNoContent)
}

// List applies any filter parameters present in the query and returns the
// effective list. Nothing is applied unless every parameter is valid.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if q.Has("limit") {
		v, err := strconv.Atoi(q.Get("limit"))
		if err != nil || v <= 0 {
			respond.Error(w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}
	page := 0
	if q.Has("page") {
		v, err := strconv.Atoi(q.Get("page"))
		if err != nil {
			respond.Error(w, r, http.StatusBadRequest, "invalid page")
			return
		}
		page = v
	}

	current := h.view.Filter()
	if limit != 0 && limit != current.PageSize {
		h.view.SetPageSize(limit)
	}
	if q.Has("search") && q.Get("search") != current.Search {
		h.view.SetSearch(q.Get("search"))
	}
	if q.Has("status") && model.Status(q.Get("status")) != current.Status {
		h.view.SetStatus(model.Status(q.Get("status")))
	}
	if q.Has("priority") && model.Priority(q.Get("priority")) != current.Priority {
		h.view.SetPriority(model.Priority(q.Get("priority")))
	}
	if q.Has("page") {
		h.view.SetPage(page)
	}

	h.writeView(w, r)
}

func (h *TaskHandler) ResetFilters(w http.ResponseWriter, r *http.Request) {
	h.view.ResetFilters()
	h.writeView(w, r)
}

func (h *TaskHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.view.Refresh()
	h.writeView(w, r)
}

func (h *TaskHandler) writeView(w http.ResponseWriter, r *http.Request) {
	state := h.view.View(r.Context())

	resp := listResponse{
		Tasks: state.Tasks,
		Pagination: paginationResponse{
			Page:       state.Filter.Page,
			PageSize:   state.Filter.PageSize,
			TotalPages: state.TotalPages,
			TotalItems: state.TotalItems,
		},
		Filters: filterResponse{
			Search:   state.Filter.Search,
			Status:   state.Filter.Status,
			Priority: state.Filter.Priority,
		},
		Loaded: state.Loaded,
		Status: state.Status.String(),
		Empty:  state.Empty,
	}
	if state.Err != nil {
		resp.Error = gateway.Message(state.Err, "Failed to load tasks")
	}
	respond.JSON(w, r, http.StatusOK, resp)
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength == 0 {
		respond.Error(w, r, http.StatusBadRequest, "empty request body")
		return
	}

	var draft model.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		respond.Error(w, r, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return
	}

	task, err := h.service.Create(r.Context(), draft)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusCreated, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch model.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid json")
		return
	}

	task, err := h.service.Update(r.Context(), id, patch)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

// Delete hides the row and dispatches the call. The caller must pass
// confirm=true.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))

	ctx := service.WithConfirmation(r.Context(), confirmed)
	if err := h.service.DeleteAsync(ctx, id); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusAccepted, map[string]any{"id": id, "pending": true})
}

// Toggle flips completion. status is the status the row currently shows.
func (h *TaskHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	current := model.Status(r.URL.Query().Get("status"))
	if current != model.StatusPending && current != model.StatusCompleted {
		respond.Error(w, r, http.StatusBadRequest, "status must be Pending or Completed")
		return
	}

	if err := h.service.ToggleCompleteAsync(r.Context(), id, current); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusAccepted, map[string]any{
		"id":      id,
		"status":  current.Opposite(),
		"pending": true,
	})
}

type sessionResponse struct {
	Open bool        `json:"open"`
	Task *model.Task `json:"task,omitempty"`
}

func (h *TaskHandler) Session(w http.ResponseWriter, r *http.Request) {
	s := h.service.Session()
	respond.JSON(w, r, http.StatusOK, sessionResponse{Open: s.Open, Task: s.Task})
}

// OpenSession starts editing the task in the body, or a new task when the
// body is empty.
func (h *TaskHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength == 0 {
		h.service.BeginCreate()
	} else {
		var task model.Task
		if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
			respond.Error(w, r, http.StatusBadRequest, "invalid json")
			return
		}
		if task.ID == "" {
			h.service.BeginCreate()
		} else {
			h.service.BeginEdit(task)
		}
	}
	h.Session(w, r)
}

func (h *TaskHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	h.service.CloseSession()
	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, r, http.StatusOK, h.notices.Items())
}

func (h *TaskHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	if !h.notices.Remove(id) {
		respond.Error(w, r, http.StatusNotFound, "not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) handleErrors(w http.ResponseWriter, r *http.Request, err error) {
	var (
		vErr  *service.ValidationError
		gwErr *gateway.Error
	)
	switch {
	case errors.As(err, &vErr):
		respond.FieldErrors(w, r, http.StatusUnprocessableEntity, "validation error", vErr.Fields)
	case errors.Is(err, service.ErrNotConfirmed):
		respond.Error(w, r, http.StatusPreconditionRequired, "confirmation required")
	case errors.Is(err, worker.ErrStopped):
		respond.Error(w, r, http.StatusServiceUnavailable, "shutting down")
	case errors.As(err, &gwErr):
		code := gwErr.Status
		if code < 400 || code > 499 {
			code = http.StatusBadGateway
		}
		respond.FieldErrors(w, r, code, gateway.Message(err, "gateway error"), gwErr.FieldErrors())
	default:
		h.logger.Error("internal error", zap.Error(err))
		respond.Error(w, r, http.StatusInternalServerError, "internal error")
	}
}

package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/checktick/internal/models"
	"github.com/starford/checktick/internal/sse"
	"github.com/starford/checktick/internal/store"
)

// Handler holds HTTP handler dependencies.
type Handler struct {
	repo   store.Repository
	events Publisher
}

// NewHandler creates a Handler. events may be nil.
func NewHandler(repo store.Repository, events Publisher) *Handler {
	return &Handler{repo: repo, events: events}
}

func (h *Handler) publish(entity, kind string, payload any) {
	if h.events != nil {
		h.events.PublishEntityEvent(entity, kind, payload)
	}
}

// ListTasks returns every task ordered by position.
//
//	@Summary	List tasks
//	@Tags		tasks
//	@Produce	json
//	@Success	200	{array}	models.Task
//	@Router		/tasks [get]
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.repo.ListTasks(r.Context())
	if err != nil {
		writeError(w, "list tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// GetTask returns one task.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := h.repo.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, "get task", err, slog.String("task_id", id))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CreateTask creates a task at the end of the list.
//
//	@Summary	Create task
//	@Tags		tasks
//	@Accept		json
//	@Produce	json
//	@Param		body	body		models.Task	true	"Task draft"
//	@Success	201		{object}	models.Task
//	@Failure	400		{object}	errResponse
//	@Router		/tasks [post]
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var draft models.Task
	if !decodeJSON(w, r, &draft) {
		return
	}
	t, err := h.repo.CreateTask(r.Context(), draft)
	if err != nil {
		writeError(w, "create task", err)
		return
	}
	h.publish("task", sse.Created, t)
	writeJSON(w, http.StatusCreated, t)
}

// UpdateTask applies a partial update. Completing a recurring task also
// creates its next occurrence, which is announced as a separate event.
//
//	@Summary	Update task
//	@Tags		tasks
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string			true	"Task ID"
//	@Param		body	body		models.Patch	true	"Changed fields"
//	@Success	200		{object}	models.Task
//	@Failure	400		{object}	errResponse
//	@Failure	404		{object}	errResponse
//	@Router		/tasks/{id} [put]
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch models.Patch
	if !decodeJSON(w, r, &patch) {
		return
	}
	t, spawned, err := h.repo.UpdateTask(r.Context(), id, patch)
	if err != nil {
		writeError(w, "update task", err, slog.String("task_id", id))
		return
	}
	h.publish("task", sse.Updated, t)
	if spawned != nil {
		h.publish("task", sse.Created, *spawned)
	}
	writeJSON(w, http.StatusOK, t)
}

// DeleteTask removes a task.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.DeleteTask(r.Context(), id); err != nil {
		writeError(w, "delete task", err, slog.String("task_id", id))
		return
	}
	h.publish("task", sse.Deleted, map[string]string{"task_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// ReorderTasks stores a full order mapping in one transaction.
//
//	@Summary	Reorder tasks
//	@Tags		tasks
//	@Accept		json
//	@Param		body	body		[]models.OrderItem	true	"New positions"
//	@Success	200		{object}	messageResponse
//	@Router		/tasks/reorder [put]
func (h *Handler) ReorderTasks(w http.ResponseWriter, r *http.Request) {
	var items []models.OrderItem
	if !decodeJSON(w, r, &items) {
		return
	}
	if err := h.repo.ReorderTasks(r.Context(), items); err != nil {
		writeError(w, "reorder tasks", err, slog.Int("items", len(items)))
		return
	}
	h.publish("task", sse.Reordered, items)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Tasks reordered"})
}

// SearchTasks runs a full-text query over titles and descriptions.
func (h *Handler) SearchTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid limit"))
			return
		}
		limit = n
	}
	tasks, err := h.repo.SearchTasks(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search tasks", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// ListNotes returns every note on the board.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.repo.ListNotes(r.Context())
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.repo.GetNote(r.Context(), id)
	if err != nil {
		writeError(w, "get note", err, slog.String("note_id", id))
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var draft models.Note
	if !decodeJSON(w, r, &draft) {
		return
	}
	n, err := h.repo.CreateNote(r.Context(), draft)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	h.publish("note", sse.Created, n)
	writeJSON(w, http.StatusCreated, n)
}

func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch models.Patch
	if !decodeJSON(w, r, &patch) {
		return
	}
	n, err := h.repo.UpdateNote(r.Context(), id, patch)
	if err != nil {
		writeError(w, "update note", err, slog.String("note_id", id))
		return
	}
	h.publish("note", sse.Updated, n)
	writeJSON(w, http.StatusOK, n)
}

// DeleteNote removes a note and every edge touching it.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	edges, err := h.repo.DeleteNote(r.Context(), id)
	if err != nil {
		writeError(w, "delete note", err, slog.String("note_id", id))
		return
	}
	h.publish("note", sse.Deleted, map[string]string{"note_id": id})
	for _, e := range edges {
		h.publish("edge", sse.Deleted, map[string]string{"edge_id": e.ID})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListEdges(w http.ResponseWriter, r *http.Request) {
	edges, err := h.repo.ListEdges(r.Context())
	if err != nil {
		writeError(w, "list edges", err)
		return
	}
	writeJSON(w, http.StatusOK, edges)
}

// CreateEdge connects two notes. Duplicate connections are rejected with 409.
func (h *Handler) CreateEdge(w http.ResponseWriter, r *http.Request) {
	var draft models.Edge
	if !decodeJSON(w, r, &draft) {
		return
	}
	e, err := h.repo.CreateEdge(r.Context(), draft)
	if err != nil {
		writeError(w, "create edge", err)
		return
	}
	h.publish("edge", sse.Created, e)
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) DeleteEdge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.DeleteEdge(r.Context(), id); err != nil {
		writeError(w, "delete edge", err, slog.String("edge_id", id))
		return
	}
	h.publish("edge", sse.Deleted, map[string]string{"edge_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// Stats returns the dashboard aggregates.
//
//	@Summary	Dashboard statistics
//	@Tags		stats
//	@Produce	json
//	@Success	200	{object}	models.Stats
//	@Router		/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.repo.Stats(r.Context())
	if err != nil {
		writeError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type startPomodoroRequest struct {
	TaskID   string `json:"task_id"`
	Duration int    `json:"duration"`
}

// StartPomodoro opens a focus session; duration is in minutes.
func (h *Handler) StartPomodoro(w http.ResponseWriter, r *http.Request) {
	var req startPomodoroRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Duration < 0 {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "duration must not be negative", Field: "duration"})
		return
	}
	s, err := h.repo.StartPomodoro(r.Context(), req.TaskID, req.Duration)
	if err != nil {
		writeError(w, "start pomodoro", err)
		return
	}
	h.publish("pomodoro", sse.Created, s)
	writeJSON(w, http.StatusCreated, s)
}

func (h *Handler) CompletePomodoro(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.repo.CompletePomodoro(r.Context(), id)
	if err != nil {
		writeError(w, "complete pomodoro", err, slog.String("session_id", id))
		return
	}
	h.publish("pomodoro", sse.Updated, s)
	writeJSON(w, http.StatusOK, s)
}

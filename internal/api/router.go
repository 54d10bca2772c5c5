package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/checktick/internal/store"
)

// Publisher receives entity changes after they are committed.
type Publisher interface {
	PublishEntityEvent(entity, kind string, payload any)
}

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether the session token is enforced.
// events may be nil; sseHandler, if non-nil, is mounted at GET /events
// inside the auth group.
func NewRouter(repo store.Repository, authEnabled bool, token string, events Publisher, sseHandler http.Handler) chi.Router {
	h := NewHandler(repo, events)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", h.ListTasks)
		r.Post("/", h.CreateTask)
		r.Get("/search", h.SearchTasks)
		r.Put("/reorder", h.ReorderTasks)
		r.Get("/{id}", h.GetTask)
		r.Put("/{id}", h.UpdateTask)
		r.Delete("/{id}", h.DeleteTask)
	})

	r.Route("/notes", func(r chi.Router) {
		r.Get("/", h.ListNotes)
		r.Post("/", h.CreateNote)
		r.Get("/{id}", h.GetNote)
		r.Put("/{id}", h.UpdateNote)
		r.Delete("/{id}", h.DeleteNote)
	})

	r.Get("/edges", h.ListEdges)
	r.Post("/edges", h.CreateEdge)
	r.Delete("/edges/{id}", h.DeleteEdge)

	r.Get("/stats", h.Stats)
	r.Post("/pomodoro/start", h.StartPomodoro)
	r.Post("/pomodoro/{id}/complete", h.CompletePomodoro)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

// NewRoot wraps apiRouter with the process-level middleware and health
// endpoints. The API is mounted under /api.
func NewRoot(repo store.Repository, apiRouter http.Handler, mw ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(mw...)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorBody("database unavailable"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Mount("/api", apiRouter)
	return r
}

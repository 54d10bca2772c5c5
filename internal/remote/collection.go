package remote

import (
	"context"
	"net/url"
	"time"

	"github.com/starford/checktick/internal/models"
)

// Collection is one REST resource: GET/POST on its path, PUT/DELETE on
// path/{id}.
type Collection[E any] struct {
	c    *Client
	path string
}

// NewCollection returns the collection mounted at path.
func NewCollection[E any](c *Client, path string) *Collection[E] {
	return &Collection[E]{c: c, path: path}
}

func (col *Collection[E]) item(id string) string {
	return col.path + "/" + url.PathEscape(id)
}

// List returns every entity in server order.
func (col *Collection[E]) List(ctx context.Context) ([]E, error) {
	var out []E
	if err := col.c.do(ctx, "GET", col.path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one entity.
func (col *Collection[E]) Get(ctx context.Context, id string) (E, error) {
	var out E
	err := col.c.do(ctx, "GET", col.item(id), nil, &out)
	return out, err
}

// Create posts draft and returns the stored entity with its server id.
func (col *Collection[E]) Create(ctx context.Context, draft E) (E, error) {
	var out E
	err := col.c.do(ctx, "POST", col.path, draft, &out)
	return out, err
}

// Update sends a partial patch and returns the full updated entity.
func (col *Collection[E]) Update(ctx context.Context, id string, patch models.Patch) (E, error) {
	var out E
	err := col.c.do(ctx, "PUT", col.item(id), patch, &out)
	return out, err
}

// Delete removes the entity.
func (col *Collection[E]) Delete(ctx context.Context, id string) error {
	return col.c.do(ctx, "DELETE", col.item(id), nil, nil)
}

// TaskCollection adds the batched reorder call to the task resource.
type TaskCollection struct {
	*Collection[models.Task]
}

// Reorder persists the full order mapping in one request.
func (t *TaskCollection) Reorder(ctx context.Context, items []models.OrderItem) error {
	return t.c.do(ctx, "PUT", t.path+"/reorder", items, nil)
}

// Stats returns the dashboard counters.
func (c *Client) Stats(ctx context.Context) (models.Stats, error) {
	var out models.Stats
	err := c.do(ctx, "GET", "/api/stats", nil, &out)
	return out, err
}

// StartPomodoro opens a focus session, optionally tied to a task.
func (c *Client) StartPomodoro(ctx context.Context, taskID string, duration time.Duration) (models.PomodoroSession, error) {
	body := struct {
		TaskID   string `json:"task_id,omitempty"`
		Duration int    `json:"duration"`
	}{TaskID: taskID, Duration: int(duration / time.Minute)}
	var out models.PomodoroSession
	err := c.do(ctx, "POST", "/api/pomodoro/start", body, &out)
	return out, err
}

// CompletePomodoro marks a session as finished.
func (c *Client) CompletePomodoro(ctx context.Context, sessionID string) (models.PomodoroSession, error) {
	var out models.PomodoroSession
	err := c.do(ctx, "POST", "/api/pomodoro/"+url.PathEscape(sessionID)+"/complete", nil, &out)
	return out, err
}

// Health checks that the store is ready to serve.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "GET", "/health/ready", nil, nil)
}

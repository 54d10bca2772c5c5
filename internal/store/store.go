package store

import (
	"context"

	"github.com/starford/checktick/internal/models"
)

// Repository is the persistence surface the HTTP API and MCP tools use.
// Consumers should depend on this interface rather than the concrete *DB.
type Repository interface {
	ListTasks(ctx context.Context) ([]models.Task, error)
	GetTask(ctx context.Context, id string) (models.Task, error)
	CreateTask(ctx context.Context, draft models.Task) (models.Task, error)
	UpdateTask(ctx context.Context, id string, patch models.Patch) (models.Task, *models.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ReorderTasks(ctx context.Context, items []models.OrderItem) error
	SearchTasks(ctx context.Context, query string, limit int) ([]models.Task, error)

	ListNotes(ctx context.Context) ([]models.Note, error)
	GetNote(ctx context.Context, id string) (models.Note, error)
	CreateNote(ctx context.Context, draft models.Note) (models.Note, error)
	UpdateNote(ctx context.Context, id string, patch models.Patch) (models.Note, error)
	DeleteNote(ctx context.Context, id string) ([]models.Edge, error)

	ListEdges(ctx context.Context) ([]models.Edge, error)
	CreateEdge(ctx context.Context, e models.Edge) (models.Edge, error)
	DeleteEdge(ctx context.Context, id string) error

	StartPomodoro(ctx context.Context, taskID string, minutes int) (models.PomodoroSession, error)
	CompletePomodoro(ctx context.Context, id string) (models.PomodoroSession, error)
	Stats(ctx context.Context) (models.Stats, error)

	Ping(ctx context.Context) error
	Close() error
}

// Verify *DB satisfies Repository at compile time.
var _ Repository = (*DB)(nil)

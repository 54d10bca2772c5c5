package board

import (
	"context"
	"fmt"

	"github.com/starford/checktick/internal/models"
	"github.com/starford/checktick/internal/syncer"
	"github.com/starford/checktick/internal/view"
)

// TaskRemote is the task collection of the remote store.
type TaskRemote interface {
	syncer.Remote[models.Task]
	syncer.Reorderer
	List(ctx context.Context) ([]models.Task, error)
}

// TaskList is the client-side task list: optimistic edits, ordered display
// and background persistence.
type TaskList struct {
	remote TaskRemote
	opts   options
	tasks  *syncer.Mutator[models.Task]
	order  *syncer.OrderModel[models.Task]
}

// NewTaskList returns an empty list; call Load to fill it.
func NewTaskList(remote TaskRemote, opts ...Option) *TaskList {
	o := newOptions(opts)
	l := &TaskList{remote: remote, opts: o}
	l.tasks = syncer.NewMutator(syncer.Config[models.Task]{
		Entity:   "task",
		Remote:   remote,
		Notifier: o.notifier,
		Logger:   o.logger,
		Clock:    o.clock,
		Timeout:  o.timeout,
		Toggle: func(t models.Task) models.Patch {
			return models.Patch{"completed": !t.Completed}
		},
		AfterToggle: l.afterToggle,
	})
	l.order = syncer.NewOrderModel(l.tasks.Cache(), remote, syncer.OrderConfig{
		Entity:   "task",
		Timeout:  o.timeout,
		Notifier: o.notifier,
		Logger:   o.logger,
	})
	return l
}

// Load fetches every task and merges it with local pending state.
func (l *TaskList) Load(ctx context.Context) error {
	since := l.tasks.Generation()
	tasks, err := l.remote.List(ctx)
	if err != nil {
		return fmt.Errorf("board: load tasks: %w", err)
	}
	l.tasks.Reconcile(since, tasks)
	l.order.Normalize()
	return nil
}

// Add appends a task with default fields.
func (l *TaskList) Add(title string) *syncer.Operation[models.Task] {
	return l.Save(models.Task{Title: title})
}

// Save creates draft when it has no server id yet, otherwise writes its
// editable fields.
func (l *TaskList) Save(draft models.Task) *syncer.Operation[models.Task] {
	if draft.ID == "" {
		draft = draft.WithDefaults()
		draft.Order = l.tasks.Cache().Len()
		return l.tasks.Create(draft)
	}
	subtasks := draft.Subtasks
	if subtasks == nil {
		subtasks = []models.Subtask{}
	}
	return l.tasks.Update(draft.ID, models.Patch{
		"title":       draft.Title,
		"description": draft.Description,
		"priority":    draft.Priority,
		"category":    draft.Category,
		"due_date":    draft.DueDate,
		"recurring":   draft.Recurring,
		"subtasks":    subtasks,
	})
}

// Edit applies a partial update.
func (l *TaskList) Edit(id string, patch models.Patch) *syncer.Operation[models.Task] {
	return l.tasks.Update(id, patch)
}

// Toggle flips completion and adopts the store's view of the task.
func (l *TaskList) Toggle(id string) *syncer.Operation[models.Task] {
	return l.tasks.ToggleComplete(id)
}

// Remove deletes a task.
func (l *TaskList) Remove(id string) *syncer.Operation[models.Task] {
	return l.tasks.Delete(id)
}

// Move reorders by index in the full list.
func (l *TaskList) Move(from, to int) *syncer.Operation[[]models.Task] {
	return l.order.Reorder(from, to)
}

// MoveByID drops activeID onto overID, as a drag-and-drop over a filtered
// view does.
func (l *TaskList) MoveByID(activeID, overID string) *syncer.Operation[[]models.Task] {
	return l.order.ReorderByID(l.tasks.Resolve(activeID), l.tasks.Resolve(overID))
}

// Get returns the cached task.
func (l *TaskList) Get(id string) (models.Task, bool) {
	return l.tasks.Cache().Get(l.tasks.Resolve(id))
}

// All returns the tasks in display order.
func (l *TaskList) All() []models.Task {
	return l.tasks.Cache().List()
}

// View projects the list through f, sorted by key.
func (l *TaskList) View(f view.Filter, key string) []models.Task {
	return view.Project(l.tasks.Cache().List(), f, key)
}

// Wait blocks until every queued write has settled.
func (l *TaskList) Wait(ctx context.Context) error {
	if err := l.tasks.Wait(ctx); err != nil {
		return err
	}
	return l.order.Wait(ctx)
}

// Close flushes pending writes.
func (l *TaskList) Close(ctx context.Context) error {
	return l.Wait(ctx)
}

// afterToggle picks up the next occurrence the store creates when a
// recurring task is completed.
func (l *TaskList) afterToggle(ctx context.Context, t models.Task) error {
	if !t.Completed || t.Recurring == "" {
		return nil
	}
	return l.Load(ctx)
}

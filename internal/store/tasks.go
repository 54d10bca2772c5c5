package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/checktick/internal/apperr"
	"github.com/starford/checktick/internal/models"
)

const taskColumnsQualified = `t.task_id, t.title, t.description, t.priority, t.category, t.due_date,
	t.completed, t.position, t.recurring, t.subtasks, t.created_at, t.completed_at`

func scanTask(sc scanner) (models.Task, error) {
	var (
		t           models.Task
		subtasks    string
		completedAt sql.NullTime
	)
	if err := sc.Scan(&t.ID, &t.Title, &t.Description, &t.Priority, &t.Category, &t.DueDate,
		&t.Completed, &t.Order, &t.Recurring, &subtasks, &t.CreatedAt, &completedAt); err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(subtasks), &t.Subtasks); err != nil {
		return t, fmt.Errorf("store: decode subtasks of %s: %w", t.ID, err)
	}
	if t.Subtasks == nil {
		t.Subtasks = []models.Subtask{}
	}
	if completedAt.Valid {
		at := completedAt.Time
		t.CompletedAt = &at
	}
	return t, nil
}

func collectTasks(rows *sql.Rows) ([]models.Task, error) {
	defer rows.Close()
	out := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTasks returns every task by position.
func (db *DB) ListTasks(ctx context.Context) ([]models.Task, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+taskColumnsQualified+` FROM tasks t ORDER BY t.position, t.created_at`)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	return collectTasks(rows)
}

// GetTask returns one task or apperr.ErrNotFound.
func (db *DB) GetTask(ctx context.Context, id string) (models.Task, error) {
	return getTask(ctx, db.conn, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTask(ctx context.Context, q queryer, id string) (models.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumnsQualified+` FROM tasks t WHERE t.task_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return t, fmt.Errorf("store: task %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return t, fmt.Errorf("store: get task: %w", err)
	}
	return t, nil
}

// CreateTask stores draft under a fresh id at the end of the list.
func (db *DB) CreateTask(ctx context.Context, draft models.Task) (models.Task, error) {
	t := draft.WithDefaults()
	if err := t.Validate(); err != nil {
		return models.Task{}, err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.Task{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	t, err = db.insertTask(ctx, tx, t)
	if err != nil {
		return models.Task{}, err
	}
	if err := logActivity(ctx, tx, "created", t, db.now()); err != nil {
		return models.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Task{}, fmt.Errorf("store: commit: %w", err)
	}
	return t, nil
}

func (db *DB) insertTask(ctx context.Context, tx *sql.Tx, t models.Task) (models.Task, error) {
	var next int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM tasks`).Scan(&next); err != nil {
		return t, fmt.Errorf("store: next position: %w", err)
	}
	t.ID = newID("task")
	t.Order = next
	t.CreatedAt = db.now()
	t.CompletedAt = nil
	if t.Completed {
		at := t.CreatedAt
		t.CompletedAt = &at
	}
	if err := writeTask(ctx, tx, t, true); err != nil {
		return t, err
	}
	return t, nil
}

func writeTask(ctx context.Context, tx *sql.Tx, t models.Task, insert bool) error {
	subtasks, err := json.Marshal(t.Subtasks)
	if err != nil {
		return fmt.Errorf("store: encode subtasks: %w", err)
	}
	var completedAt sql.NullTime
	if t.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *t.CompletedAt, Valid: true}
	}
	if insert {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (task_id, title, description, priority, category, due_date,
				completed, position, recurring, subtasks, created_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.Title, t.Description, t.Priority, t.Category, t.DueDate,
			t.Completed, t.Order, t.Recurring, string(subtasks), t.CreatedAt, completedAt)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE tasks SET
				title = ?, description = ?, priority = ?, category = ?, due_date = ?,
				completed = ?, position = ?, recurring = ?, subtasks = ?, completed_at = ?
			WHERE task_id = ?
		`, t.Title, t.Description, t.Priority, t.Category, t.DueDate,
			t.Completed, t.Order, t.Recurring, string(subtasks), completedAt, t.ID)
	}
	if err != nil {
		return fmt.Errorf("store: write task: %w", err)
	}
	return ftsUpsert(tx, t)
}

// UpdateTask applies patch to the stored task. Completing a task stamps
// completed_at, records the completion and, for recurring tasks, creates the
// next occurrence, which is returned as spawned.
func (db *DB) UpdateTask(ctx context.Context, id string, patch models.Patch) (models.Task, *models.Task, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.Task{}, nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	cur, err := getTask(ctx, tx, id)
	if err != nil {
		return models.Task{}, nil, err
	}
	next, err := models.ApplyPatch(cur, patch)
	if err != nil {
		return models.Task{}, nil, err
	}
	next.ID, next.CreatedAt = cur.ID, cur.CreatedAt
	next = next.WithDefaults()
	if err := next.Validate(); err != nil {
		return models.Task{}, nil, err
	}

	var spawned *models.Task
	now := db.now()
	switch {
	case next.Completed && !cur.Completed:
		next.CompletedAt = &now
		if err := logActivity(ctx, tx, "completed", next, now); err != nil {
			return models.Task{}, nil, err
		}
		if due, ok := next.NextDue(now); ok {
			occ := next
			occ.Completed = false
			occ.DueDate = due
			occ.Subtasks = resetSubtasks(next.Subtasks)
			occ, err = db.insertTask(ctx, tx, occ)
			if err != nil {
				return models.Task{}, nil, err
			}
			spawned = &occ
		}
	case !next.Completed:
		next.CompletedAt = nil
	default:
		next.CompletedAt = cur.CompletedAt
	}

	if err := writeTask(ctx, tx, next, false); err != nil {
		return models.Task{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return models.Task{}, nil, fmt.Errorf("store: commit: %w", err)
	}
	return next, spawned, nil
}

func resetSubtasks(in []models.Subtask) []models.Subtask {
	out := make([]models.Subtask, len(in))
	for i, s := range in {
		out[i] = models.Subtask{Title: s.Title}
	}
	return out
}

// DeleteTask removes a task.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE task_id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: task %s: %w", id, apperr.ErrNotFound)
	}
	ftsDelete(tx, id)
	return tx.Commit()
}

// ReorderTasks sets the position of every listed task in one transaction.
// Unknown ids are skipped.
func (db *DB) ReorderTasks(ctx context.Context, items []models.OrderItem) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `UPDATE tasks SET position = ? WHERE task_id = ?`)
	if err != nil {
		return fmt.Errorf("store: prepare reorder: %w", err)
	}
	defer stmt.Close()
	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.Order, it.ID); err != nil {
			return fmt.Errorf("store: reorder %s: %w", it.ID, err)
		}
	}
	return tx.Commit()
}

func logActivity(ctx context.Context, tx *sql.Tx, action string, t models.Task, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO activity_log (action, task_id, task_title, created_at) VALUES (?, ?, ?, ?)`,
		action, t.ID, t.Title, at)
	if err != nil {
		return fmt.Errorf("store: log activity: %w", err)
	}
	return nil
}

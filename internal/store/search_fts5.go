//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/checktick/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS tasks_fts USING fts5(
			task_id UNINDEXED,
			title,
			description,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, t models.Task) error {
	_, _ = tx.Exec(`DELETE FROM tasks_fts WHERE task_id = ?`, t.ID)
	_, err := tx.Exec(`INSERT INTO tasks_fts (task_id, title, description) VALUES (?, ?, ?)`,
		t.ID, t.Title, t.Description)
	if err != nil {
		return fmt.Errorf("store: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, id string) {
	_, _ = tx.Exec(`DELETE FROM tasks_fts WHERE task_id = ?`, id)
}

// SearchTasks runs an FTS5 query over titles and descriptions, best match first.
func (db *DB) SearchTasks(ctx context.Context, query string, limit int) ([]models.Task, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+taskColumnsQualified+`
		FROM tasks_fts JOIN tasks t ON t.task_id = tasks_fts.task_id
		WHERE tasks_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	return collectTasks(rows)
}

//go:build !sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/checktick/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE on the tasks table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ models.Task) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) {}

// SearchTasks matches titles and descriptions with LIKE (fallback when FTS5
// is not compiled in).
func (db *DB) SearchTasks(ctx context.Context, query string, limit int) ([]models.Task, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+taskColumnsQualified+`
		FROM tasks t
		WHERE t.title LIKE ? OR t.description LIKE ?
		ORDER BY t.position
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	return collectTasks(rows)
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/checktick/internal/apperr"
	"github.com/starford/checktick/internal/models"
)

const noteColumns = `note_id, content, color, x_position, y_position, z_index, is_expanded, created_at, updated_at`

func scanNote(sc scanner) (models.Note, error) {
	var n models.Note
	err := sc.Scan(&n.ID, &n.Content, &n.Color, &n.X, &n.Y, &n.ZIndex, &n.IsExpanded, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

// ListNotes returns every note, lowest z_index first.
func (db *DB) ListNotes(ctx context.Context) ([]models.Note, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+noteColumns+` FROM notes ORDER BY z_index, created_at`)
	if err != nil {
		return nil, fmt.Errorf("store: list notes: %w", err)
	}
	defer rows.Close()
	out := []models.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// GetNote returns one note or apperr.ErrNotFound.
func (db *DB) GetNote(ctx context.Context, id string) (models.Note, error) {
	return getNote(ctx, db.conn, id)
}

func getNote(ctx context.Context, q queryer, id string) (models.Note, error) {
	n, err := scanNote(q.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE note_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return n, fmt.Errorf("store: note %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return n, fmt.Errorf("store: get note: %w", err)
	}
	return n, nil
}

// CreateNote stores draft under a fresh id.
func (db *DB) CreateNote(ctx context.Context, draft models.Note) (models.Note, error) {
	n := draft.WithDefaults()
	if err := n.Validate(); err != nil {
		return models.Note{}, err
	}
	n.ID = newID("note")
	n.CreatedAt = db.now()
	n.UpdatedAt = n.CreatedAt
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO notes (`+noteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.Content, n.Color, n.X, n.Y, n.ZIndex, n.IsExpanded, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return models.Note{}, fmt.Errorf("store: insert note: %w", err)
	}
	return n, nil
}

// UpdateNote applies patch and bumps updated_at.
func (db *DB) UpdateNote(ctx context.Context, id string, patch models.Patch) (models.Note, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.Note{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	cur, err := getNote(ctx, tx, id)
	if err != nil {
		return models.Note{}, err
	}
	next, err := models.ApplyPatch(cur, patch)
	if err != nil {
		return models.Note{}, err
	}
	next.ID, next.CreatedAt = cur.ID, cur.CreatedAt
	next.UpdatedAt = db.now()
	next = next.WithDefaults()
	if err := next.Validate(); err != nil {
		return models.Note{}, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE notes SET content = ?, color = ?, x_position = ?, y_position = ?,
			z_index = ?, is_expanded = ?, updated_at = ?
		WHERE note_id = ?
	`, next.Content, next.Color, next.X, next.Y, next.ZIndex, next.IsExpanded, next.UpdatedAt, next.ID)
	if err != nil {
		return models.Note{}, fmt.Errorf("store: update note: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Note{}, fmt.Errorf("store: commit: %w", err)
	}
	return next, nil
}

// DeleteNote removes a note together with its edges and returns the removed
// edges.
func (db *DB) DeleteNote(ctx context.Context, id string) ([]models.Edge, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	edges, err := queryEdges(ctx, tx, `WHERE source = ? OR target = ?`, id, id)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE source = ? OR target = ?`, id, id); err != nil {
		return nil, fmt.Errorf("store: delete edges: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE note_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("store: delete note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("store: note %s: %w", id, apperr.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return edges, nil
}

type rowsQueryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryEdges(ctx context.Context, q rowsQueryer, where string, args ...any) ([]models.Edge, error) {
	rows, err := q.QueryContext(ctx, `SELECT edge_id, source, target FROM edges `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list edges: %w", err)
	}
	defer rows.Close()
	out := []models.Edge{}
	for rows.Next() {
		var e models.Edge
		if err := rows.Scan(&e.ID, &e.Source, &e.Target); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListEdges returns every edge.
func (db *DB) ListEdges(ctx context.Context) ([]models.Edge, error) {
	return queryEdges(ctx, db.conn, `ORDER BY rowid`)
}

// CreateEdge connects two existing notes. A second edge between the same
// ordered pair is apperr.ErrAlreadyExists.
func (db *DB) CreateEdge(ctx context.Context, e models.Edge) (models.Edge, error) {
	if err := e.Validate(); err != nil {
		return models.Edge{}, err
	}
	for _, end := range [][2]string{{"source", e.Source}, {"target", e.Target}} {
		if _, err := db.GetNote(ctx, end[1]); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return models.Edge{}, apperr.Invalid(end[0], "unknown note %s", end[1])
			}
			return models.Edge{}, err
		}
	}
	e.ID = newID("edge")
	_, err := db.conn.ExecContext(ctx, `INSERT INTO edges (edge_id, source, target) VALUES (?, ?, ?)`, e.ID, e.Source, e.Target)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return models.Edge{}, fmt.Errorf("store: edge %s->%s: %w", e.Source, e.Target, apperr.ErrAlreadyExists)
		}
		return models.Edge{}, fmt.Errorf("store: insert edge: %w", err)
	}
	return e, nil
}

// DeleteEdge removes one edge.
func (db *DB) DeleteEdge(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM edges WHERE edge_id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete edge: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: edge %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

package board

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/starford/checktick/internal/apperr"
	"github.com/starford/checktick/internal/models"
	"github.com/starford/checktick/internal/syncer"
)

// NoteRemote is the note collection of the remote store.
type NoteRemote interface {
	syncer.Remote[models.Note]
	List(ctx context.Context) ([]models.Note, error)
}

// EdgeRemote is the edge collection of the remote store.
type EdgeRemote interface {
	syncer.Remote[models.Edge]
	List(ctx context.Context) ([]models.Edge, error)
}

// NoteBoard holds sticky notes and the edges connecting them.
type NoteBoard struct {
	noteRemote NoteRemote
	edgeRemote EdgeRemote
	opts       options
	notes      *syncer.Mutator[models.Note]
	edges      *syncer.Mutator[models.Edge]
}

// NewNoteBoard returns an empty board; call Load to fill it.
func NewNoteBoard(notes NoteRemote, edges EdgeRemote, opts ...Option) *NoteBoard {
	o := newOptions(opts)
	return &NoteBoard{
		noteRemote: notes,
		edgeRemote: edges,
		opts:       o,
		notes: syncer.NewMutator(syncer.Config[models.Note]{
			Entity:   "note",
			Remote:   notes,
			Notifier: o.notifier,
			Logger:   o.logger,
			Clock:    o.clock,
			Timeout:  o.timeout,
		}),
		edges: syncer.NewMutator(syncer.Config[models.Edge]{
			Entity:   "edge",
			Remote:   edges,
			Notifier: o.notifier,
			Logger:   o.logger,
			Clock:    o.clock,
			Timeout:  o.timeout,
		}),
	}
}

// Load fetches notes and edges concurrently. Neither cache changes unless
// both requests succeed.
func (b *NoteBoard) Load(ctx context.Context) error {
	var (
		notes []models.Note
		edges []models.Edge
	)
	noteGen, edgeGen := b.notes.Generation(), b.edges.Generation()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		notes, err = b.noteRemote.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		edges, err = b.edgeRemote.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("board: load notes: %w", err)
	}
	b.notes.Reconcile(noteGen, notes)
	b.edges.Reconcile(edgeGen, edges)
	return nil
}

// Add places a new note at (x, y).
func (b *NoteBoard) Add(content string, x, y int) *syncer.Operation[models.Note] {
	return b.notes.Create(models.Note{Content: content, X: x, Y: y}.WithDefaults())
}

// EditContent records typed content; the write goes out once typing pauses.
func (b *NoteBoard) EditContent(id, content string) *syncer.Operation[models.Note] {
	return b.notes.UpdateDebounced(id, models.Patch{"content": content}, b.opts.typingDelay)
}

// Drag moves a note locally; positions are written after the drag settles
// or at DragStop.
func (b *NoteBoard) Drag(id string, x, y int) *syncer.Operation[models.Note] {
	return b.notes.UpdateDebounced(id, models.Patch{"x_position": x, "y_position": y}, b.opts.dragDelay)
}

// DragStop sends the final position right away.
func (b *NoteBoard) DragStop(id string) {
	b.notes.FlushNow(id)
}

func (b *NoteBoard) SetColor(id, color string) *syncer.Operation[models.Note] {
	return b.notes.Update(id, models.Patch{"color": color})
}

// Remove deletes a note. Edges touching it disappear locally at once; the
// store drops them with the note.
func (b *NoteBoard) Remove(id string) *syncer.Operation[models.Note] {
	id = b.notes.Resolve(id)
	if _, ok := b.notes.Cache().Get(id); ok {
		b.edges.Cache().RemoveFunc(func(e models.Edge) bool { return e.Touches(id) })
	}
	return b.notes.Delete(id)
}

// Connect links source to target. Both notes must already exist in the
// store, and each pair may be connected once.
func (b *NoteBoard) Connect(source, target string) *syncer.Operation[models.Edge] {
	source, target = b.notes.Resolve(source), b.notes.Resolve(target)
	for _, id := range []string{source, target} {
		if _, ok := b.notes.Cache().Get(id); !ok {
			return b.failedEdge(fmt.Errorf("note %s: %w", id, apperr.ErrNotFound))
		}
		if syncer.IsPlaceholder(id) {
			return b.failedEdge(apperr.Invalid("note", "%s is still being created", id))
		}
	}
	for _, e := range b.edges.Cache().List() {
		if e.Source == source && e.Target == target {
			return b.failedEdge(fmt.Errorf("edge %s->%s: %w", source, target, apperr.ErrAlreadyExists))
		}
	}
	return b.edges.Create(models.Edge{Source: source, Target: target})
}

// Disconnect removes an edge.
func (b *NoteBoard) Disconnect(edgeID string) *syncer.Operation[models.Edge] {
	return b.edges.Delete(edgeID)
}

func (b *NoteBoard) failedEdge(err error) *syncer.Operation[models.Edge] {
	return syncer.Reject[models.Edge](b.opts.notifier, "edge", syncer.OpCreate, "", err)
}

// Note returns the cached note.
func (b *NoteBoard) Note(id string) (models.Note, bool) {
	return b.notes.Cache().Get(b.notes.Resolve(id))
}

// Notes returns every cached note.
func (b *NoteBoard) Notes() []models.Note { return b.notes.Cache().List() }

// Edges returns every cached edge.
func (b *NoteBoard) Edges() []models.Edge { return b.edges.Cache().List() }

// PendingContent reports the content edit still waiting for its window.
func (b *NoteBoard) PendingContent(id string) (string, bool) {
	patch, ok := b.notes.Persister().Pending(b.notes.Resolve(id))
	if !ok {
		return "", false
	}
	s, ok := patch["content"].(string)
	return s, ok
}

// Wait blocks until every queued write has settled.
func (b *NoteBoard) Wait(ctx context.Context) error {
	if err := b.notes.Wait(ctx); err != nil {
		return err
	}
	return b.edges.Wait(ctx)
}

// Close flushes pending edits.
func (b *NoteBoard) Close(ctx context.Context) error {
	return b.Wait(ctx)
}

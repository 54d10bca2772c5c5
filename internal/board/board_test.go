package board

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/starford/checktick/internal/apperr"
	"github.com/starford/checktick/internal/models"
	"github.com/starford/checktick/internal/remote"
	"github.com/starford/checktick/internal/syncer"
	"github.com/starford/checktick/internal/testutil"
	"github.com/starford/checktick/internal/view"
)

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testClient(t *testing.T) *remote.Client {
	t.Helper()
	srv, _ := testutil.TestServer(t, "")
	c, err := remote.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func titles(tasks []models.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}

func TestTaskList_AddAndReload(t *testing.T) {
	c := testClient(t)
	list := NewTaskList(c.Tasks(), quiet())

	op := list.Add("Buy milk")
	if !syncer.IsPlaceholder(op.ID) {
		t.Fatalf("op id = %q, want placeholder", op.ID)
	}
	if got, ok := list.Get(op.ID); !ok || got.Title != "Buy milk" {
		t.Fatalf("placeholder not visible: %+v", got)
	}
	created, err := op.Wait(waitCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	if syncer.IsPlaceholder(created.ID) {
		t.Fatalf("created id = %q", created.ID)
	}

	fresh := NewTaskList(c.Tasks(), quiet())
	if err := fresh.Load(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	all := fresh.All()
	if len(all) != 1 || all[0].ID != created.ID {
		t.Errorf("reloaded = %+v", all)
	}
}

func TestTaskList_MovePersists(t *testing.T) {
	c := testClient(t)
	list := NewTaskList(c.Tasks(), quiet())
	for _, title := range []string{"a", "b", "c", "d"} {
		if _, err := list.Add(title).Wait(waitCtx(t)); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := list.Move(3, 0).Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if err := list.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}

	fresh := NewTaskList(c.Tasks(), quiet())
	if err := fresh.Load(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	got := titles(fresh.All())
	want := []string{"d", "a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("server order = %v, want %v", got, want)
		}
	}
}

func TestTaskList_MoveByIDInFilteredView(t *testing.T) {
	c := testClient(t)
	list := NewTaskList(c.Tasks(), quiet())
	for _, d := range []models.Task{
		{Title: "w1", Category: models.CategoryWork},
		{Title: "p1", Category: models.CategoryPersonal},
		{Title: "w2", Category: models.CategoryWork},
	} {
		if _, err := list.Save(d).Wait(waitCtx(t)); err != nil {
			t.Fatal(err)
		}
	}

	work := list.View(view.Filter{Category: models.CategoryWork}, view.SortOrder)
	if len(work) != 2 {
		t.Fatalf("work view = %v", titles(work))
	}
	if _, err := list.MoveByID(work[1].ID, work[0].ID).Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if got := titles(list.All()); got[0] != "w2" || got[1] != "w1" || got[2] != "p1" {
		t.Errorf("order = %v", got)
	}
}

func TestTaskList_ToggleRecurringPicksUpNextOccurrence(t *testing.T) {
	c := testClient(t)
	list := NewTaskList(c.Tasks(), quiet())
	task, err := list.Save(models.Task{Title: "Stretch", Recurring: models.RecurDaily, DueDate: "2026-03-02"}).Wait(waitCtx(t))
	if err != nil {
		t.Fatal(err)
	}

	done, err := list.Toggle(task.ID).Wait(waitCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	if !done.Completed || done.CompletedAt == nil {
		t.Errorf("toggled = %+v", done)
	}
	if err := list.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}

	all := list.All()
	if len(all) != 2 {
		t.Fatalf("tasks = %v, want the spawned occurrence too", titles(all))
	}
	var next models.Task
	for _, tk := range all {
		if tk.ID != task.ID {
			next = tk
		}
	}
	if next.Completed || next.DueDate != "2026-03-03" {
		t.Errorf("next occurrence = %+v", next)
	}
	pending := list.View(view.Filter{Status: view.StatusPending}, view.SortOrder)
	if len(pending) != 1 || pending[0].ID != next.ID {
		t.Errorf("pending view = %v", titles(pending))
	}
}

func TestTaskList_EditAndRemove(t *testing.T) {
	c := testClient(t)
	list := NewTaskList(c.Tasks(), quiet())
	task, err := list.Add("draft").Wait(waitCtx(t))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := list.Edit(task.ID, models.Patch{"title": "final"}).Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if got, _ := c.Tasks().Get(waitCtx(t), task.ID); got.Title != "final" {
		t.Errorf("server title = %q", got.Title)
	}

	if _, err := list.Remove(task.ID).Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Tasks().Get(waitCtx(t), task.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("get after remove err = %v", err)
	}
}

func TestNoteBoard_EditContentCoalesces(t *testing.T) {
	c := testClient(t)
	b := NewNoteBoard(c.Notes(), c.Edges(), quiet(), WithTypingDelay(time.Hour))
	note, err := b.Add("", 10, 10).Wait(waitCtx(t))
	if err != nil {
		t.Fatal(err)
	}

	for _, s := range []string{"h", "he", "hello"} {
		b.EditContent(note.ID, s)
	}
	if got, _ := b.Note(note.ID); got.Content != "hello" {
		t.Errorf("local content = %q", got.Content)
	}
	if pending, ok := b.PendingContent(note.ID); !ok || pending != "hello" {
		t.Errorf("pending = %q, %v", pending, ok)
	}
	if server, _ := c.Notes().Get(waitCtx(t), note.ID); server.Content != "" {
		t.Errorf("server saw %q before the window closed", server.Content)
	}

	if err := b.Close(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if server, _ := c.Notes().Get(waitCtx(t), note.ID); server.Content != "hello" {
		t.Errorf("server content = %q", server.Content)
	}
}

func TestNoteBoard_DragStopWritesFinalPosition(t *testing.T) {
	c := testClient(t)
	b := NewNoteBoard(c.Notes(), c.Edges(), quiet(), WithDragDelay(time.Hour))
	note, err := b.Add("drag me", 0, 0).Wait(waitCtx(t))
	if err != nil {
		t.Fatal(err)
	}

	b.Drag(note.ID, 5, 5)
	op := b.Drag(note.ID, 120, 80)
	b.DragStop(note.ID)
	moved, err := op.Wait(waitCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	if moved.X != 120 || moved.Y != 80 {
		t.Errorf("server position = (%d,%d)", moved.X, moved.Y)
	}
}

func TestNoteBoard_ConnectAndRemove(t *testing.T) {
	c := testClient(t)
	b := NewNoteBoard(c.Notes(), c.Edges(), quiet())
	a, err := b.Add("a", 0, 0).Wait(waitCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	z, err := b.Add("z", 200, 0).Wait(waitCtx(t))
	if err != nil {
		t.Fatal(err)
	}

	edge, err := b.Connect(a.ID, z.ID).Wait(waitCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	if syncer.IsPlaceholder(edge.ID) || edge.Source != a.ID {
		t.Errorf("edge = %+v", edge)
	}
	if err := b.Connect(a.ID, z.ID).Err(); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate connect err = %v", err)
	}
	if err := b.Connect(a.ID, "note_missing").Err(); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("dangling connect err = %v", err)
	}

	if _, err := b.Remove(a.ID).Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if n := len(b.Edges()); n != 0 {
		t.Errorf("local edges = %d, want 0", n)
	}
	edges, err := c.Edges().List(waitCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 0 {
		t.Errorf("server edges = %+v", edges)
	}
}

func TestNoteBoard_ConnectWhileCreating(t *testing.T) {
	c := testClient(t)
	b := NewNoteBoard(c.Notes(), c.Edges(), quiet())
	a, err := b.Add("a", 0, 0).Wait(waitCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	pending := b.Add("b", 0, 0)
	if err := b.Connect(a.ID, pending.ID).Err(); err != nil && !apperr.IsValidation(err) {
		t.Errorf("connect to a placeholder err = %v", err)
	}
	if err := b.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
}

func TestNoteBoard_LoadAndDisconnect(t *testing.T) {
	c := testClient(t)
	ctx := waitCtx(t)
	a, _ := c.Notes().Create(ctx, models.Note{Content: "a"})
	z, _ := c.Notes().Create(ctx, models.Note{Content: "z"})
	e, err := c.Edges().Create(ctx, models.Edge{Source: a.ID, Target: z.ID})
	if err != nil {
		t.Fatal(err)
	}

	b := NewNoteBoard(c.Notes(), c.Edges(), quiet())
	if err := b.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if len(b.Notes()) != 2 || len(b.Edges()) != 1 {
		t.Fatalf("loaded %d notes, %d edges", len(b.Notes()), len(b.Edges()))
	}

	if _, err := b.Disconnect(e.ID).Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if edges, _ := c.Edges().List(ctx); len(edges) != 0 {
		t.Errorf("server edges = %+v", edges)
	}
}

func TestNoteBoard_LoadFailureKeepsCache(t *testing.T) {
	srv, _ := testutil.TestServer(t, "")
	c, err := remote.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	b := NewNoteBoard(c.Notes(), c.Edges(), quiet())
	if _, err := b.Add("kept", 0, 0).Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}

	srv.Close()
	if err := b.Load(waitCtx(t)); err == nil {
		t.Fatal("load against a closed server should fail")
	}
	if n := len(b.Notes()); n != 1 {
		t.Errorf("notes = %d, want the cached note kept", n)
	}
}

func TestTaskList_AuthExpiredNotification(t *testing.T) {
	srv, _ := testutil.TestServer(t, "secret")
	c, err := remote.New(srv.URL, remote.WithSessionToken("stale"))
	if err != nil {
		t.Fatal(err)
	}
	var got []syncer.Notification
	done := make(chan struct{})
	list := NewTaskList(c.Tasks(), quiet(), WithNotifier(syncer.NotifierFunc(func(n syncer.Notification) {
		got = append(got, n)
		close(done)
	})))

	if _, err := list.Add("x").Wait(waitCtx(t)); !apperr.IsAuthExpired(err) {
		t.Fatalf("err = %v, want auth expired", err)
	}
	<-done
	if len(got) != 1 || got[0].Level != syncer.LevelAuthExpired {
		t.Errorf("notifications = %+v", got)
	}
	if n := len(list.All()); n != 0 {
		t.Errorf("placeholder should be removed, have %d tasks", n)
	}
}

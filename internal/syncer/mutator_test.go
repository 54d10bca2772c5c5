package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/starford/checktick/internal/apperr"
	"github.com/starford/checktick/internal/cache"
	"github.com/starford/checktick/internal/models"
)

func toggleTask(t models.Task) models.Patch {
	return models.Patch{"completed": !t.Completed}
}

func newTaskMutator(clock Clock, remote *fakeRemote[models.Task], rec *recorder, seed ...models.Task) *Mutator[models.Task] {
	return NewMutator(Config[models.Task]{
		Entity:   "task",
		Remote:   remote,
		Cache:    cache.New[string](seed...),
		Notifier: rec,
		Clock:    clock,
		Toggle:   toggleTask,
	})
}

func TestMutator_BuyMilk(t *testing.T) {
	remote := newFakeRemote[models.Task]()
	rec := &recorder{}
	m := newTaskMutator(newFakeClock(), remote, rec)

	op := m.Create(models.Task{Title: "Buy milk"}.WithDefaults())
	if m.Cache().Len() != 1 {
		t.Fatalf("cache len = %d right after create, want 1", m.Cache().Len())
	}
	created, err := op.Wait(waitCtx(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if IsPlaceholder(created.ID) {
		t.Fatalf("created id %q is still a placeholder", created.ID)
	}
	list := m.Cache().List()
	if len(list) != 1 || list[0].ID != created.ID || list[0].Title != "Buy milk" {
		t.Fatalf("cache = %+v", list)
	}

	upd := m.Update(created.ID, models.Patch{"completed": true})
	got, _ := m.Cache().Get(created.ID)
	if !got.Completed {
		t.Fatal("cache not updated before the network response")
	}
	if _, err := upd.Wait(waitCtx(t)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := m.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}

	list = m.Cache().List()
	if len(list) != 1 || !list[0].Completed || list[0].Title != "Buy milk" {
		t.Errorf("final cache = %+v", list)
	}
	if n := len(rec.all()); n != 2 {
		t.Errorf("notifications = %d, want 2", n)
	}
}

func TestMutator_TypingIsOneWrite(t *testing.T) {
	clock := newFakeClock()
	remote := newFakeRemote(models.Note{ID: "n1", Color: models.ColorYellow})
	rec := &recorder{}
	m := NewMutator(Config[models.Note]{
		Entity:   "note",
		Remote:   remote,
		Cache:    cache.New[string](models.Note{ID: "n1", Color: models.ColorYellow}),
		Notifier: rec,
		Clock:    clock,
	})

	for _, text := range []string{"a", "ab", "abc"} {
		m.UpdateDebounced("n1", models.Patch{"content": text}, time.Second)
		got, _ := m.Cache().Get("n1")
		if got.Content != text {
			t.Fatalf("cache content = %q, want %q", got.Content, text)
		}
		clock.Advance(200 * time.Millisecond)
	}
	if n := len(remote.updateCalls()); n != 0 {
		t.Fatalf("writes while typing = %d", n)
	}
	clock.Advance(time.Second)
	if err := m.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}

	calls := remote.updateCalls()
	if len(calls) != 1 {
		t.Fatalf("writes = %d, want 1", len(calls))
	}
	if calls[0].Patch["content"] != "abc" {
		t.Errorf("sent content = %v, want abc", calls[0].Patch["content"])
	}
	if n := len(rec.all()); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
}

func TestMutator_FailedCreateLeavesNoPlaceholder(t *testing.T) {
	remote := newFakeRemote[models.Task]()
	remote.onCreate = func(models.Task) error {
		return &apperr.RemoteError{Method: "POST", Path: "/api/tasks", Status: 500, Message: "boom"}
	}
	rec := &recorder{}
	m := newTaskMutator(newFakeClock(), remote, rec, models.Task{ID: "task_a", Title: "existing"})

	op := m.Create(models.Task{Title: "new"})
	if _, err := op.Wait(waitCtx(t)); err == nil {
		t.Fatal("create should fail")
	}
	list := m.Cache().List()
	if len(list) != 1 || list[0].ID != "task_a" {
		t.Errorf("cache = %+v, want only the existing task", list)
	}
	got := rec.all()
	if len(got) != 1 || got[0].Level != LevelError || got[0].Kind != OpCreate {
		t.Errorf("notifications = %+v", got)
	}
}

func TestMutator_ValidationBlocksMutation(t *testing.T) {
	remote := newFakeRemote[models.Task]()
	rec := &recorder{}
	seed := models.Task{ID: "task_a", Title: "keep", Priority: models.PriorityLow}
	m := newTaskMutator(newFakeClock(), remote, rec, seed)

	if err := m.Create(models.Task{Title: ""}).Err(); !apperr.IsValidation(err) {
		t.Errorf("create err = %v, want validation", err)
	}
	if err := m.Update("task_a", models.Patch{"priority": "urgent"}).Err(); !apperr.IsValidation(err) {
		t.Errorf("update err = %v, want validation", err)
	}
	if err := m.Update("task_a", models.Patch{"task_id": "other"}).Err(); !apperr.IsValidation(err) {
		t.Errorf("id change err = %v, want validation", err)
	}
	if m.Cache().Len() != 1 {
		t.Errorf("cache len = %d", m.Cache().Len())
	}
	if got, _ := m.Cache().Get("task_a"); got.Priority != models.PriorityLow {
		t.Errorf("priority = %q, cache must stay untouched", got.Priority)
	}
	if err := m.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if remote.creates != 0 || len(remote.updateCalls()) != 0 {
		t.Error("nothing should reach the store")
	}
}

func TestMutator_UpdateMissing(t *testing.T) {
	m := newTaskMutator(newFakeClock(), newFakeRemote[models.Task](), &recorder{})
	if err := m.Update("nope", models.Patch{"title": "x"}).Err(); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMutator_UpdateFailureKeepsLocalState(t *testing.T) {
	seed := models.Task{ID: "task_a", Title: "old"}
	remote := newFakeRemote(seed)
	remote.onUpdate = func(string, models.Patch) error { return errors.New("offline") }
	m := newTaskMutator(newFakeClock(), remote, &recorder{}, seed)

	op := m.Update("task_a", models.Patch{"title": "new"})
	if _, err := op.Wait(waitCtx(t)); err == nil {
		t.Fatal("update should fail")
	}
	if got, _ := m.Cache().Get("task_a"); got.Title != "new" {
		t.Errorf("title = %q, local intent must survive", got.Title)
	}
	if op.Previous.Title != "old" {
		t.Errorf("previous = %q", op.Previous.Title)
	}
}

func TestMutator_DeleteRemovesImmediately(t *testing.T) {
	seed := []models.Task{{ID: "task_a", Title: "a"}, {ID: "task_b", Title: "b"}, {ID: "task_c", Title: "c"}}
	remote := newFakeRemote(seed...)
	release := make(chan struct{})
	remote.onDelete = func(string) error {
		<-release
		return errors.New("server down")
	}
	rec := &recorder{}
	m := newTaskMutator(newFakeClock(), remote, rec, seed...)

	op := m.Delete("task_b")
	if _, ok := m.Cache().Get("task_b"); ok {
		t.Fatal("entity still cached right after delete")
	}
	close(release)
	if _, err := op.Wait(waitCtx(t)); err == nil {
		t.Fatal("delete should fail")
	}
	if _, ok := m.Cache().Get("task_b"); ok {
		t.Fatal("failed delete must not re-insert on its own")
	}
	if !op.Rollback() {
		t.Fatal("rollback should be available after a failed delete")
	}
	if i := m.Cache().IndexOf("task_b"); i != 1 {
		t.Errorf("restored at %d, want 1", i)
	}
	if op.Rollback() {
		t.Error("rollback must only apply once")
	}
}

func TestMutator_DeleteWaitsForInFlightWrite(t *testing.T) {
	seed := models.Task{ID: "task_a", Title: "a"}
	remote := newFakeRemote(seed)
	entered := make(chan struct{})
	release := make(chan struct{})
	remote.onUpdate = func(string, models.Patch) error {
		close(entered)
		<-release
		return nil
	}
	m := newTaskMutator(newFakeClock(), remote, &recorder{}, seed)

	m.Update("task_a", models.Patch{"title": "b"})
	<-entered
	del := m.Delete("task_a")
	time.Sleep(30 * time.Millisecond)
	remote.mu.Lock()
	early := len(remote.deletes)
	remote.mu.Unlock()
	if early != 0 {
		t.Fatal("delete sent while a write was in flight")
	}
	close(release)
	if _, err := del.Wait(waitCtx(t)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := remote.get("task_a"); ok {
		t.Error("task should be gone from the store")
	}
}

func TestMutator_EditDuringCreate(t *testing.T) {
	remote := newFakeRemote[models.Task]()
	release := make(chan struct{})
	remote.onCreate = func(models.Task) error {
		<-release
		return nil
	}
	m := newTaskMutator(newFakeClock(), remote, &recorder{})

	op := m.Create(models.Task{Title: "draft"})
	tmp := op.ID
	if !m.Creating(tmp) {
		t.Fatal("placeholder should be creating")
	}
	edit := m.Update(tmp, models.Patch{"title": "edited"})
	if got, _ := m.Cache().Get(tmp); got.Title != "edited" {
		t.Fatalf("placeholder title = %q", got.Title)
	}
	close(release)

	created, err := op.Wait(waitCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := edit.Wait(waitCtx(t)); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := m.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}

	if m.Resolve(tmp) != created.ID {
		t.Errorf("Resolve(%s) = %s, want %s", tmp, m.Resolve(tmp), created.ID)
	}
	list := m.Cache().List()
	if len(list) != 1 || list[0].ID != created.ID || list[0].Title != "edited" {
		t.Errorf("cache = %+v", list)
	}
	stored, _ := remote.get(created.ID)
	if stored.Title != "edited" {
		t.Errorf("stored title = %q", stored.Title)
	}
}

func TestMutator_DeleteDuringCreate(t *testing.T) {
	remote := newFakeRemote[models.Task]()
	release := make(chan struct{})
	remote.onCreate = func(models.Task) error {
		<-release
		return nil
	}
	m := newTaskMutator(newFakeClock(), remote, &recorder{})

	op := m.Create(models.Task{Title: "short lived"})
	del := m.Delete(op.ID)
	if m.Cache().Len() != 0 {
		t.Fatal("cache should be empty after delete")
	}
	close(release)
	if _, err := del.Wait(waitCtx(t)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	remote.mu.Lock()
	defer remote.mu.Unlock()
	if len(remote.items) != 0 {
		t.Errorf("store still holds %d items", len(remote.items))
	}
	if m.Cache().Len() != 0 {
		t.Error("server entity must not reappear in the cache")
	}
}

func TestMutator_ToggleAdoptsServerTruth(t *testing.T) {
	seed := models.Task{ID: "task_a", Title: "water plants", Recurring: models.RecurDaily}
	remote := newFakeRemote(seed)
	doneAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	remote.decorate = func(t models.Task) models.Task {
		if t.Completed {
			t.CompletedAt = &doneAt
		}
		return t
	}
	hooked := make(chan models.Task, 1)
	m := NewMutator(Config[models.Task]{
		Entity: "task",
		Remote: remote,
		Cache:  cache.New[string](seed),
		Clock:  newFakeClock(),
		Toggle: toggleTask,
		AfterToggle: func(_ context.Context, updated models.Task) error {
			hooked <- updated
			return nil
		},
	})

	op := m.ToggleComplete("task_a")
	if got, _ := m.Cache().Get("task_a"); !got.Completed {
		t.Fatal("toggle not applied locally")
	}
	if _, err := op.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	got, _ := m.Cache().Get("task_a")
	if got.CompletedAt == nil || !got.CompletedAt.Equal(doneAt) {
		t.Errorf("completed_at = %v, want server value", got.CompletedAt)
	}
	select {
	case h := <-hooked:
		if h.ID != "task_a" {
			t.Errorf("hook got %q", h.ID)
		}
	default:
		t.Error("AfterToggle not called")
	}
}

func TestMutator_ToggleUnsupported(t *testing.T) {
	m := NewMutator(Config[models.Note]{Entity: "note", Remote: newFakeRemote[models.Note]()})
	if err := m.ToggleComplete("n1").Err(); err == nil {
		t.Error("toggle on a kind without a toggle strategy should fail")
	}
}

func TestMutator_Reconcile(t *testing.T) {
	clock := newFakeClock()
	seed := models.Task{ID: "task_a", Title: "a"}
	remote := newFakeRemote(seed)
	release := make(chan struct{})
	remote.onCreate = func(models.Task) error {
		<-release
		return nil
	}
	m := newTaskMutator(clock, remote, &recorder{}, seed)

	m.UpdateDebounced("task_a", models.Patch{"title": "a2"}, time.Minute)
	op := m.Create(models.Task{Title: "in flight"})

	m.Reconcile(m.Generation(), []models.Task{
		{ID: "task_a", Title: "a"},
		{ID: "task_z", Title: "from elsewhere"},
	})
	list := m.Cache().List()
	if len(list) != 3 {
		t.Fatalf("cache = %+v", list)
	}
	if list[0].Title != "a2" {
		t.Errorf("pending edit lost: %q", list[0].Title)
	}
	if list[1].ID != "task_z" || list[2].ID != op.ID {
		t.Errorf("order = %s, %s", list[1].ID, list[2].ID)
	}
	close(release)
	if err := m.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
}

func TestMutator_ReloadDuringDeleteKeepsItGone(t *testing.T) {
	seed := []models.Task{{ID: "task_a", Title: "a"}, {ID: "task_b", Title: "b"}}
	remote := newFakeRemote(seed...)
	release := make(chan struct{})
	remote.onDelete = func(string) error {
		<-release
		return nil
	}
	m := newTaskMutator(newFakeClock(), remote, &recorder{}, seed...)

	stale := m.Generation()
	op := m.Delete("task_b")
	m.Reconcile(m.Generation(), seed)
	if _, ok := m.Cache().Get("task_b"); ok {
		t.Fatal("listing taken while the delete was in flight brought the task back")
	}
	close(release)
	if _, err := op.Wait(waitCtx(t)); err != nil {
		t.Fatalf("delete: %v", err)
	}

	m.Reconcile(stale, seed)
	if _, ok := m.Cache().Get("task_b"); ok {
		t.Fatal("listing requested before the delete brought the task back")
	}
	if _, ok := remote.get("task_b"); ok {
		t.Error("task should be gone from the store")
	}

	m.Reconcile(m.Generation(), []models.Task{{ID: "task_a", Title: "a"}})
	list := m.Cache().List()
	if len(list) != 1 || list[0].ID != "task_a" {
		t.Errorf("cache = %+v", list)
	}
}

func TestMutator_StaleListingKeepsConfirmedCreate(t *testing.T) {
	seed := models.Task{ID: "task_a", Title: "a"}
	m := newTaskMutator(newFakeClock(), newFakeRemote(seed), &recorder{}, seed)

	since := m.Generation()
	created, err := m.Create(models.Task{Title: "Buy milk"}.WithDefaults()).Wait(waitCtx(t))
	if err != nil {
		t.Fatal(err)
	}

	m.Reconcile(since, []models.Task{seed})
	if _, ok := m.Cache().Get(created.ID); !ok {
		t.Fatalf("task %s created after the listing was requested was dropped", created.ID)
	}
	if i := m.Cache().IndexOf(created.ID); i != 1 {
		t.Errorf("created task at %d, want 1", i)
	}

	// A listing requested after the create is authoritative.
	m.Reconcile(m.Generation(), []models.Task{seed})
	if _, ok := m.Cache().Get(created.ID); ok {
		t.Error("task missing from a fresh listing should be dropped")
	}
}

func TestMutator_ToggleReportsToggle(t *testing.T) {
	seed := models.Task{ID: "task_a", Title: "a"}
	rec := &recorder{}
	m := newTaskMutator(newFakeClock(), newFakeRemote(seed), rec, seed)

	if _, err := m.ToggleComplete("task_a").Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	got := rec.all()
	if len(got) != 1 || got[0].Kind != OpToggle || got[0].Level != LevelSuccess {
		t.Errorf("notifications = %+v, want one successful toggle", got)
	}
}

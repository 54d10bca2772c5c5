package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/starford/checktick/internal/apperr"
	"github.com/starford/checktick/internal/models"
)

// fakeClock fires timers only when Advance moves past their deadline.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock and runs every due timer in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

type updateCall struct {
	ID    string
	Patch models.Patch
}

// fakeRemote is an in-memory store with hooks for failures and blocking.
type fakeRemote[E Entity[E]] struct {
	mu       sync.Mutex
	seq      int
	items    map[string]E
	creates  int
	updates  []updateCall
	deletes  []string
	reorders [][]models.OrderItem
	inFlight int
	maxIn    int

	onCreate  func(E) error
	onUpdate  func(id string, patch models.Patch) error
	onDelete  func(id string) error
	onReorder func([]models.OrderItem) error
	// decorate lets a test emulate server-side effects on updates.
	decorate func(E) E
}

func newFakeRemote[E Entity[E]](seed ...E) *fakeRemote[E] {
	r := &fakeRemote[E]{items: make(map[string]E)}
	for _, e := range seed {
		r.items[e.Key()] = e
	}
	return r
}

func (r *fakeRemote[E]) Create(_ context.Context, draft E) (E, error) {
	if r.onCreate != nil {
		if err := r.onCreate(draft); err != nil {
			var zero E
			return zero, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.creates++
	e := draft.WithKey(fmt.Sprintf("srv-%d", r.seq))
	r.items[e.Key()] = e
	return e, nil
}

func (r *fakeRemote[E]) Update(_ context.Context, id string, patch models.Patch) (E, error) {
	var zero E
	r.mu.Lock()
	r.updates = append(r.updates, updateCall{ID: id, Patch: patch.Clone()})
	r.inFlight++
	if r.inFlight > r.maxIn {
		r.maxIn = r.inFlight
	}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.inFlight--
		r.mu.Unlock()
	}()

	if r.onUpdate != nil {
		if err := r.onUpdate(id, patch); err != nil {
			return zero, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[id]
	if !ok {
		return zero, &apperr.RemoteError{Method: "PUT", Path: id, Status: 404, Err: apperr.ErrNotFound}
	}
	next, err := models.ApplyPatch(cur, patch)
	if err != nil {
		return zero, err
	}
	if r.decorate != nil {
		next = r.decorate(next)
	}
	r.items[id] = next
	return next, nil
}

func (r *fakeRemote[E]) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	r.deletes = append(r.deletes, id)
	r.mu.Unlock()
	if r.onDelete != nil {
		if err := r.onDelete(id); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *fakeRemote[E]) Reorder(_ context.Context, items []models.OrderItem) error {
	r.mu.Lock()
	r.reorders = append(r.reorders, items)
	r.mu.Unlock()
	if r.onReorder != nil {
		return r.onReorder(items)
	}
	return nil
}

func (r *fakeRemote[E]) get(id string) (E, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.items[id]
	return e, ok
}

func (r *fakeRemote[E]) updateCalls() []updateCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]updateCall(nil), r.updates...)
}

func (r *fakeRemote[E]) reorderCalls() [][]models.OrderItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]models.OrderItem(nil), r.reorders...)
}

// recorder collects notifications.
type recorder struct {
	mu   sync.Mutex
	list []Notification
}

func (r *recorder) Notify(n Notification) {
	r.mu.Lock()
	r.list = append(r.list, n)
	r.mu.Unlock()
}

func (r *recorder) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.list...)
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

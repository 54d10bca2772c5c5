package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/checktick/internal/apperr"
	"github.com/starford/checktick/internal/cache"
	"github.com/starford/checktick/internal/models"
)

// PlaceholderPrefix marks ids generated locally before the first successful
// create.
const PlaceholderPrefix = "tmp-"

// IsPlaceholder reports whether id was generated locally.
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}

// Entity is a cacheable, validatable record with a string id.
type Entity[E any] interface {
	Key() string
	WithKey(id string) E
	Validate() error
}

// Remote is the slice of the remote store one collection needs.
type Remote[E any] interface {
	Create(ctx context.Context, draft E) (E, error)
	Update(ctx context.Context, id string, patch models.Patch) (E, error)
	Delete(ctx context.Context, id string) error
}

// Config wires a Mutator. Zero values get defaults.
type Config[E Entity[E]] struct {
	Entity    string
	Remote    Remote[E]
	Cache     *cache.Cache[string, E]
	Persister *Persister[E]
	Notifier  Notifier
	Logger    *slog.Logger
	Clock     Clock
	Timeout   time.Duration

	// Toggle returns the patch flipping the entity's boolean state.
	Toggle func(E) models.Patch
	// AfterToggle runs once the toggle's server response is in the cache; the
	// store may have applied side effects the response does not show.
	AfterToggle func(ctx context.Context, updated E) error
}

// pendingCreate tracks a placeholder whose create request is in flight.
type pendingCreate[E any] struct {
	patch    models.Patch
	kind     OpKind
	waiters  []Settled[E]
	deleteOp *Operation[E]
}

// Mutator applies changes to the cache immediately and confirms them against
// the remote store in the background.
//
// Policy per operation: a failed create removes its placeholder; failed
// updates and deletes leave the local state ahead of the server and are only
// reported (deletes can be undone with Operation.Rollback).
type Mutator[E Entity[E]] struct {
	cfg       Config[E]
	cache     *cache.Cache[string, E]
	persister *Persister[E]

	mu      sync.Mutex
	creates map[string]*pendingCreate[E]
	aliases map[string]string
	// deleting holds ids whose remote delete has not resolved yet.
	deleting map[string]struct{}
	// gen advances whenever a create or delete is confirmed; created and
	// deleted record the generation of each confirmation so a listing
	// requested before it cannot undo it.
	gen     uint64
	created map[string]uint64
	deleted map[string]uint64
	wg      sync.WaitGroup
}

// NewMutator builds a mutator. When cfg.Persister is nil a persister writing
// through cfg.Remote.Update is created.
func NewMutator[E Entity[E]](cfg Config[E]) *Mutator[E] {
	if cfg.Notifier == nil {
		cfg.Notifier = Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.New[string, E]()
	}
	if cfg.Persister == nil {
		cfg.Persister = NewPersister(PersisterConfig{
			Entity:   cfg.Entity,
			Clock:    cfg.Clock,
			Timeout:  cfg.Timeout,
			Notifier: cfg.Notifier,
			Logger:   cfg.Logger,
		}, cfg.Remote.Update)
	}
	return &Mutator[E]{
		cfg:       cfg,
		cache:     cfg.Cache,
		persister: cfg.Persister,
		creates:   make(map[string]*pendingCreate[E]),
		aliases:   make(map[string]string),
		deleting:  make(map[string]struct{}),
		created:   make(map[string]uint64),
		deleted:   make(map[string]uint64),
	}
}

// Cache returns the cache the mutator writes to.
func (m *Mutator[E]) Cache() *cache.Cache[string, E] { return m.cache }

// Persister returns the persister carrying updates.
func (m *Mutator[E]) Persister() *Persister[E] { return m.persister }

// Resolve maps a placeholder id to its server id once the create succeeded.
func (m *Mutator[E]) Resolve(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveLocked(id)
}

func (m *Mutator[E]) resolveLocked(id string) string {
	if real, ok := m.aliases[id]; ok {
		return real
	}
	return id
}

// Creating reports whether id is a placeholder whose create is in flight.
func (m *Mutator[E]) Creating(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.creates[id]
	return ok
}

// Create inserts draft under a placeholder id and asks the store to create it.
// On success the placeholder is swapped for the server entity at the same
// position; on failure it is removed.
func (m *Mutator[E]) Create(draft E) *Operation[E] {
	if err := draft.Validate(); err != nil {
		m.report(OpCreate, "", nil, err)
		return failed[E](OpCreate, "", nil, err)
	}

	tmp := PlaceholderPrefix + uuid.NewString()
	op := newOperation[E](OpCreate, tmp, nil)

	m.mu.Lock()
	m.creates[tmp] = &pendingCreate[E]{}
	m.cache.Upsert(draft.WithKey(tmp))
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
		created, err := m.cfg.Remote.Create(ctx, draft.WithKey(""))
		cancel()
		m.settleCreate(tmp, op, created, err)
	}()
	return op
}

func (m *Mutator[E]) settleCreate(tmp string, op *Operation[E], created E, err error) {
	var zero E

	m.mu.Lock()
	pc := m.creates[tmp]
	delete(m.creates, tmp)

	if err != nil {
		m.cache.Remove(tmp)
		m.mu.Unlock()

		for _, fn := range pc.waiters {
			fn(zero, err)
		}
		m.report(OpCreate, tmp, nil, err)
		op.resolve(zero, err)
		if pc.deleteOp != nil {
			// Nothing reached the store, so the delete is trivially done.
			m.report(OpDelete, tmp, nil, nil)
			pc.deleteOp.resolve(pc.deleteOp.Previous, nil)
		}
		return
	}

	id := created.Key()
	m.aliases[tmp] = id
	m.gen++
	m.created[id] = m.gen

	if pc.deleteOp != nil {
		m.deleting[id] = struct{}{}
		m.mu.Unlock()
		for _, fn := range pc.waiters {
			fn(zero, apperr.ErrCanceled)
		}
		m.report(OpCreate, id, nil, nil)
		op.resolve(created, nil)
		m.deleteRemote(id, pc.deleteOp)
		return
	}

	local := created
	if len(pc.patch) > 0 {
		if patched, perr := models.ApplyPatch(created, pc.patch); perr == nil {
			local = patched.WithKey(id)
		}
	}
	m.cache.Replace(tmp, local)
	if len(pc.patch) > 0 {
		waiters := pc.waiters
		m.persister.ScheduleAs(pc.kind, id, pc.patch, 0, func(result E, err error) {
			for _, fn := range waiters {
				fn(result, err)
			}
		})
	}
	m.mu.Unlock()

	m.report(OpCreate, id, nil, nil)
	op.resolve(local, nil)
}

// Update applies patch locally and writes it immediately.
func (m *Mutator[E]) Update(id string, patch models.Patch) *Operation[E] {
	return m.UpdateDebounced(id, patch, 0)
}

// UpdateDebounced applies patch locally and schedules the write after delay,
// coalescing with other edits of the same entity.
func (m *Mutator[E]) UpdateDebounced(id string, patch models.Patch, delay time.Duration) *Operation[E] {
	return m.update(OpUpdate, id, func(E) models.Patch { return patch }, delay, nil)
}

// ToggleComplete flips the entity's boolean state locally, writes it at once
// and then replaces the cached entity with the store's response.
func (m *Mutator[E]) ToggleComplete(id string) *Operation[E] {
	if m.cfg.Toggle == nil {
		err := fmt.Errorf("syncer: %s does not support toggling", m.cfg.Entity)
		return failed[E](OpToggle, id, nil, err)
	}
	return m.update(OpToggle, id, m.cfg.Toggle, 0, m.adoptServerTruth)
}

// FlushNow sends the pending edits of id right away, e.g. at drag stop.
func (m *Mutator[E]) FlushNow(id string) {
	m.persister.FlushNow(m.Resolve(id))
}

func (m *Mutator[E]) update(kind OpKind, id string, patchFor func(E) models.Patch, delay time.Duration, onSuccess func(E)) *Operation[E] {
	m.mu.Lock()
	id = m.resolveLocked(id)

	var prev E
	var patch models.Patch
	_, found, err := m.cache.Update(id, func(cur E) (E, error) {
		prev = cur
		patch = patchFor(cur)
		next, err := models.ApplyPatch(cur, patch)
		if err != nil {
			return cur, err
		}
		if next.Key() != cur.Key() {
			return cur, apperr.Invalid("id", "cannot be changed")
		}
		if err := next.Validate(); err != nil {
			return cur, err
		}
		return next, nil
	})
	if !found {
		err = fmt.Errorf("%s %s: %w", m.cfg.Entity, id, apperr.ErrNotFound)
	}
	if err != nil {
		m.mu.Unlock()
		m.report(kind, id, patch, err)
		return failed[E](kind, id, patch, err)
	}

	op := newOperation[E](kind, id, patch)
	op.Previous = prev
	settle := func(result E, err error) {
		if err == nil && onSuccess != nil {
			onSuccess(result)
		}
		op.resolve(result, err)
	}

	if pc, creating := m.creates[id]; creating {
		pc.patch = pc.patch.Merge(patch)
		pc.kind = mergeKind(pc.kind, kind)
		pc.waiters = append(pc.waiters, settle)
		m.mu.Unlock()
		return op
	}
	m.persister.ScheduleAs(kind, id, patch, delay, settle)
	m.mu.Unlock()
	return op
}

// adoptServerTruth stores the server's copy unless newer local edits for the
// same entity are still waiting to be sent.
func (m *Mutator[E]) adoptServerTruth(server E) {
	id := server.Key()
	if _, pending := m.persister.Pending(id); !pending {
		m.cache.Update(id, func(E) (E, error) { return server, nil })
	}
	if m.cfg.AfterToggle == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
	defer cancel()
	if err := m.cfg.AfterToggle(ctx, server); err != nil {
		m.cfg.Logger.Warn("after toggle hook failed",
			slog.String("entity", m.cfg.Entity),
			slog.String("id", id),
			slog.String("error", err.Error()))
	}
}

// Delete removes the entity from the cache and deletes it remotely once any
// in-flight write for it has settled.
func (m *Mutator[E]) Delete(id string) *Operation[E] {
	m.mu.Lock()
	id = m.resolveLocked(id)
	prev, idx, ok := m.cache.Remove(id)
	if !ok {
		m.mu.Unlock()
		err := fmt.Errorf("%s %s: %w", m.cfg.Entity, id, apperr.ErrNotFound)
		m.report(OpDelete, id, nil, err)
		return failed[E](OpDelete, id, nil, err)
	}
	op := newOperation[E](OpDelete, id, nil)
	op.Previous = prev

	if pc, creating := m.creates[id]; creating {
		pc.deleteOp = op
		m.mu.Unlock()
		return op
	}
	op.setRollback(func() { m.cache.InsertAt(idx, prev) })
	m.deleting[id] = struct{}{}
	m.mu.Unlock()

	m.deleteRemote(id, op)
	return op
}

func (m *Mutator[E]) deleteRemote(id string, op *Operation[E]) {
	idle := m.persister.Cancel(id)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		<-idle
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
		err := m.cfg.Remote.Delete(ctx, id)
		cancel()

		m.mu.Lock()
		delete(m.deleting, id)
		delete(m.created, id)
		if err == nil {
			m.gen++
			m.deleted[id] = m.gen
		}
		m.mu.Unlock()

		m.report(OpDelete, id, nil, err)
		op.resolve(op.Previous, err)
	}()
}

// Generation returns a token to capture before requesting a listing and to
// hand to Reconcile with the result.
func (m *Mutator[E]) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// Reconcile replaces the cache with a server listing requested at generation
// since, keeping local intent: pending patches are re-applied, entities
// deleted locally stay gone, entities created after the listing was requested
// are kept, and in-flight placeholders are kept at the end.
func (m *Mutator[E]) Reconcile(since uint64, server []E) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Rearrange(func(cur []E) []E {
		out := make([]E, 0, len(server)+len(m.creates))
		seen := make(map[string]bool, len(server))
		for _, e := range server {
			id := e.Key()
			if seen[id] {
				continue
			}
			seen[id] = true
			if m.removedLocked(id, since) {
				continue
			}
			if patch, ok := m.persister.Pending(id); ok {
				if patched, err := models.ApplyPatch(e, patch); err == nil {
					e = patched
				}
			}
			out = append(out, e)
		}
		var placeholders []E
		for _, e := range cur {
			id := e.Key()
			if seen[id] {
				continue
			}
			if _, creating := m.creates[id]; creating {
				placeholders = append(placeholders, e)
				continue
			}
			if g, ok := m.created[id]; ok && g > since {
				out = append(out, e)
			}
		}
		out = append(out, placeholders...)
		return out
	})
	for id, g := range m.created {
		if g <= since {
			delete(m.created, id)
		}
	}
	for id, g := range m.deleted {
		if g <= since {
			delete(m.deleted, id)
		}
	}
}

// removedLocked reports whether id was deleted locally and the listing
// requested at since cannot reflect it yet.
func (m *Mutator[E]) removedLocked(id string, since uint64) bool {
	if _, ok := m.deleting[id]; ok {
		return true
	}
	g, ok := m.deleted[id]
	return ok && g > since
}

// Wait blocks until every pending write, create and delete has settled.
func (m *Mutator[E]) Wait(ctx context.Context) error {
	if err := m.persister.Flush(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	// Creates may have scheduled follow-up writes for edits made meanwhile.
	return m.persister.Flush(ctx)
}

// mergeKind keeps a toggle visible when it is coalesced with plain edits.
func mergeKind(cur, next OpKind) OpKind {
	if cur == OpToggle {
		return cur
	}
	return next
}

func (m *Mutator[E]) report(kind OpKind, id string, patch models.Patch, err error) {
	if err != nil && !apperr.IsAuthExpired(err) {
		m.cfg.Logger.Debug("operation failed",
			slog.String("entity", m.cfg.Entity),
			slog.String("op", string(kind)),
			slog.String("id", id),
			slog.String("error", err.Error()))
	}
	m.cfg.Notifier.Notify(outcome(m.cfg.Entity, kind, id, patch, err))
}

package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/checktick/internal/apperr"
	"github.com/starford/checktick/internal/models"
)

// DefaultRequestTimeout bounds every remote call issued by the core.
const DefaultRequestTimeout = 10 * time.Second

// SendFunc writes a merged patch for one entity and returns the stored entity.
type SendFunc[E any] func(ctx context.Context, id string, patch models.Patch) (E, error)

// Settled is called once with the outcome of the write that carried a patch.
type Settled[E any] func(result E, err error)

// PersisterConfig configures a Persister. Zero values get defaults.
type PersisterConfig struct {
	Entity   string
	Clock    Clock
	Timeout  time.Duration
	Notifier Notifier
	Logger   *slog.Logger
}

func (c PersisterConfig) withDefaults() PersisterConfig {
	if c.Clock == nil {
		c.Clock = SystemClock
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultRequestTimeout
	}
	if c.Notifier == nil {
		c.Notifier = Discard
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// pendingWrite is the coalesced state for one entity id.
type pendingWrite[E any] struct {
	patch    models.Patch
	kind     OpKind
	waiters  []Settled[E]
	timer    Timer
	gen      uint64
	deadline time.Time
	// due is set when the patch should go out as soon as the in-flight write
	// settles.
	due      bool
	inFlight bool
	idle     []chan struct{}
}

func (w *pendingWrite[E]) empty() bool {
	return len(w.patch) == 0 && len(w.waiters) == 0
}

// Persister coalesces edits per entity id into single delayed writes. At most
// one write per id is in flight; edits arriving meanwhile are queued as a
// fresh pending patch and sent after it settles.
type Persister[E any] struct {
	cfg  PersisterConfig
	send SendFunc[E]

	mu      sync.Mutex
	entries map[string]*pendingWrite[E]
	wg      sync.WaitGroup
}

// NewPersister returns a persister writing through send.
func NewPersister[E any](cfg PersisterConfig, send SendFunc[E]) *Persister[E] {
	return &Persister[E]{
		cfg:     cfg.withDefaults(),
		send:    send,
		entries: make(map[string]*pendingWrite[E]),
	}
}

// Schedule merges patch into the pending patch for id (later keys win) and
// restarts the id's timer. A delay <= 0 sends right away.
func (p *Persister[E]) Schedule(id string, patch models.Patch, delay time.Duration, onSettled Settled[E]) {
	p.ScheduleAs(OpUpdate, id, patch, delay, onSettled)
}

// ScheduleAs is Schedule with the operation kind the write is reported as.
// A toggle coalesced with plain edits is reported as a toggle.
func (p *Persister[E]) ScheduleAs(kind OpKind, id string, patch models.Patch, delay time.Duration, onSettled Settled[E]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.entries[id]
	if !ok {
		w = &pendingWrite[E]{}
		p.entries[id] = w
	}
	w.patch = w.patch.Merge(patch)
	w.kind = mergeKind(w.kind, kind)
	if onSettled != nil {
		w.waiters = append(w.waiters, onSettled)
	}
	p.stopTimerLocked(w)
	w.deadline = p.cfg.Clock.Now().Add(delay)
	if delay <= 0 {
		p.dispatchLocked(id, w)
		return
	}
	gen := w.gen
	w.timer = p.cfg.Clock.AfterFunc(delay, func() { p.fire(id, gen) })
}

// FlushNow sends the pending patch for id without waiting for its timer.
func (p *Persister[E]) FlushNow(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.entries[id]
	if !ok {
		return
	}
	p.stopTimerLocked(w)
	p.dispatchLocked(id, w)
}

// Cancel drops the pending patch for id. The returned channel is closed once
// no write for id is in flight.
func (p *Persister[E]) Cancel(id string) <-chan struct{} {
	idle := make(chan struct{})

	p.mu.Lock()
	w, ok := p.entries[id]
	if !ok {
		p.mu.Unlock()
		close(idle)
		return idle
	}
	p.stopTimerLocked(w)
	waiters := w.waiters
	w.patch, w.waiters, w.due, w.kind = nil, nil, false, ""
	if w.inFlight {
		w.idle = append(w.idle, idle)
	} else {
		delete(p.entries, id)
		close(idle)
	}
	p.mu.Unlock()

	var zero E
	for _, fn := range waiters {
		fn(zero, apperr.ErrCanceled)
	}
	return idle
}

// Pending returns a copy of the patch waiting to be sent for id.
func (p *Persister[E]) Pending(id string) (models.Patch, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.entries[id]
	if !ok || len(w.patch) == 0 {
		return nil, false
	}
	return w.patch.Clone(), true
}

// Deadline returns when the pending patch for id is due.
func (p *Persister[E]) Deadline(id string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.entries[id]
	if !ok || w.empty() {
		return time.Time{}, false
	}
	return w.deadline, true
}

// InFlight reports whether a write for id is outstanding.
func (p *Persister[E]) InFlight(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.entries[id]
	return ok && w.inFlight
}

// Flush sends every pending patch immediately and waits until all writes
// have settled or ctx ends.
func (p *Persister[E]) Flush(ctx context.Context) error {
	p.mu.Lock()
	for id, w := range p.entries {
		if w.empty() {
			continue
		}
		p.stopTimerLocked(w)
		p.dispatchLocked(id, w)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes everything that is pending. Edits scheduled afterwards are
// still accepted.
func (p *Persister[E]) Close(ctx context.Context) error {
	return p.Flush(ctx)
}

func (p *Persister[E]) fire(id string, gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.entries[id]
	if !ok || w.gen != gen || w.timer == nil {
		return
	}
	w.timer = nil
	p.dispatchLocked(id, w)
}

func (p *Persister[E]) stopTimerLocked(w *pendingWrite[E]) {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.gen++
}

func (p *Persister[E]) dispatchLocked(id string, w *pendingWrite[E]) {
	if w.empty() {
		return
	}
	if w.inFlight {
		w.due = true
		return
	}
	patch, waiters, kind := w.patch, w.waiters, w.kind
	w.patch, w.waiters, w.due, w.kind = nil, nil, false, ""
	w.inFlight = true
	p.wg.Add(1)
	go p.write(id, kind, patch, waiters)
}

func (p *Persister[E]) write(id string, kind OpKind, patch models.Patch, waiters []Settled[E]) {
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	result, err := p.send(ctx, id, patch)
	cancel()

	if err != nil {
		p.cfg.Logger.Warn("persist failed",
			slog.String("entity", p.cfg.Entity),
			slog.String("id", id),
			slog.Any("fields", patch.Keys()),
			slog.String("error", err.Error()))
	}
	p.cfg.Notifier.Notify(outcome(p.cfg.Entity, kind, id, patch, err))
	for _, fn := range waiters {
		fn(result, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.entries[id]
	w.inFlight = false
	for _, ch := range w.idle {
		close(ch)
	}
	w.idle = nil
	if w.due {
		p.dispatchLocked(id, w)
		return
	}
	if w.empty() && w.timer == nil {
		delete(p.entries, id)
	}
}
